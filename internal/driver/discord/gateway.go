package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const defaultUpdateBuffer = 64

// gatewaySession is the subset of *discordgo.Session used by GatewaySource.
type gatewaySession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// GatewaySource streams interactions received over the Discord gateway.
//
// discordgo runs each event handler on its own goroutine, so handlers only
// enqueue into a bounded channel and Consume drains it sequentially.
type GatewaySource struct {
	session gatewaySession
	buffer  int
	logger  *slog.Logger
	now     func() time.Time
	onError func(context.Context, error)
}

// GatewayOption mutates GatewaySource configuration.
type GatewayOption func(*GatewaySource)

// WithUpdateBuffer configures how many interactions can wait for dispatch.
func WithUpdateBuffer(size int) GatewayOption {
	return func(source *GatewaySource) {
		if size > 0 {
			source.buffer = size
		}
	}
}

// WithGatewayLogger configures gateway lifecycle logging.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(source *GatewaySource) {
		if logger != nil {
			source.logger = logger
		}
	}
}

// WithGatewayErrorHandler configures reporting for per-update failures.
func WithGatewayErrorHandler(handler func(context.Context, error)) GatewayOption {
	return func(source *GatewaySource) {
		if handler != nil {
			source.onError = handler
		}
	}
}

// NewGatewaySource creates a source backed by a discordgo session.
func NewGatewaySource(session gatewaySession, options ...GatewayOption) (*GatewaySource, error) {
	if session == nil {
		return nil, fmt.Errorf("new discord gateway source: nil session")
	}

	source := &GatewaySource{
		session: session,
		buffer:  defaultUpdateBuffer,
		logger:  slog.Default(),
		now:     time.Now,
		onError: func(context.Context, error) {},
	}
	for _, option := range options {
		option(source)
	}

	return source, nil
}

// Consume opens the gateway session and forwards interactions to handler
// until ctx is canceled. Per-update failures are reported, not returned.
func (s *GatewaySource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume discord gateway: nil handler")
	}

	updates := make(chan Update, s.buffer)
	removeReady := s.session.AddHandler(func(_ *discordgo.Session, ready *discordgo.Ready) {
		if ready == nil || ready.User == nil {
			return
		}
		s.logger.Info("discord gateway ready",
			"user", ready.User.Username,
			"user_id", ready.User.ID,
			"guilds", len(ready.Guilds),
		)
	})
	defer removeReady()

	removeInteraction := s.session.AddHandler(func(_ *discordgo.Session, created *discordgo.InteractionCreate) {
		if created == nil {
			return
		}
		s.enqueue(ctx, updates, created.Interaction)
	})
	defer removeInteraction()

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("consume discord gateway: open session: %w", err)
	}
	defer func() {
		if err := s.session.Close(); err != nil {
			s.logger.Warn("discord gateway close failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			if err := handler(ctx, update); err != nil {
				s.onError(ctx, fmt.Errorf("consume discord update %s: %w", update.ID, err))
			}
		}
	}
}

func (s *GatewaySource) enqueue(ctx context.Context, updates chan<- Update, interaction *discordgo.Interaction) {
	update, accepted, err := s.mapSafely(interaction)
	if err != nil {
		s.onError(ctx, err)
		return
	}
	if !accepted {
		return
	}

	select {
	case updates <- update:
	case <-ctx.Done():
	default:
		s.onError(ctx, fmt.Errorf("enqueue discord update %s: buffer full", update.ID))
	}
}

// mapSafely keeps a bad mapping path from crashing a discordgo handler goroutine.
func (s *GatewaySource) mapSafely(interaction *discordgo.Interaction) (update Update, accepted bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("map discord interaction panic: %v", recovered)
		}
	}()

	return mapInteraction(interaction, s.now())
}
