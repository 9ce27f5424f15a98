package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerbot/pkg/dealer"
)

const defaultPublishTimeout = 2 * time.Second

type driverConfig struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
}

// DriverOption mutates Discord driver configuration.
type DriverOption func(*driverConfig)

// WithName configures the driver identity exposed to the kernel.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout bounds how long one event may wait to be published.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler configures reporting of decode failures.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// Driver adapts Discord interactions into neutral events.
type Driver struct {
	cfg     driverConfig
	source  UpdateSource
	decoder Decoder
}

// NewDriver creates a Discord driver.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new discord driver: nil source")
	}
	if decoder == nil {
		return nil, fmt.Errorf("new discord driver: nil decoder")
	}

	cfg := driverConfig{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{cfg: cfg, source: source, decoder: decoder}, nil
}

// Name returns the driver identifier.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start consumes Discord updates and publishes neutral events until ctx ends.
func (d *Driver) Start(ctx context.Context, dispatcher dealer.EventDispatcher) error {
	if dispatcher == nil {
		return fmt.Errorf("start discord driver: nil dispatcher")
	}

	err := d.source.Consume(ctx, func(handlerCtx context.Context, update Update) error {
		return d.handleUpdate(handlerCtx, update, dispatcher)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("start discord driver: consume updates: %w", err)
	}

	return nil
}

// handleUpdate decodes one update and publishes it with bounded latency.
func (d *Driver) handleUpdate(ctx context.Context, update Update, dispatcher dealer.EventDispatcher) error {
	event, err := d.decodeSafely(ctx, update)
	if err != nil {
		d.cfg.onAsyncError(ctx, err)
		return fmt.Errorf("handle update %s: %w", update.ID, err)
	}
	event.Source = dealer.EventSource{Platform: DriverPlatform, ID: d.cfg.name}
	if event.Platform == "" {
		event.Platform = DriverPlatform
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.publishTimeout)
	defer cancel()

	if err := dispatcher.Publish(publishCtx, event); err != nil {
		return fmt.Errorf("handle update %s publish: %w", update.ID, err)
	}

	return nil
}

func (d *Driver) decodeSafely(ctx context.Context, update Update) (decoded *dealer.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("decode discord update %s panic: %v", update.ID, recovered)
		}
	}()

	decoded, err = d.decoder.Decode(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("decode discord update %s: %w", update.ID, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("decode discord update %s: nil event", update.ID)
	}

	return decoded, nil
}

// Shutdown releases resources not controlled by the Start context.
func (d *Driver) Shutdown(context.Context) error {
	return nil
}
