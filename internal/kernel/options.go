package kernel

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultModuleHookTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// config holds kernel settings after options are applied.
type config struct {
	moduleHookTimeout time.Duration
	shutdownTimeout   time.Duration
	bus               BusDefaults
	logger            *slog.Logger
	onAsyncError      func(context.Context, string, error)
}

// Option mutates kernel construction configuration.
type Option func(*config)

func defaultConfig() config {
	logger := slog.Default()

	return config{
		moduleHookTimeout: defaultModuleHookTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
		bus:               DefaultBusDefaults(),
		logger:            logger,
		onAsyncError:      logAsyncError(logger),
	}
}

func logAsyncError(logger *slog.Logger) func(context.Context, string, error) {
	return func(ctx context.Context, scope string, err error) {
		logger.ErrorContext(ctx, "dealer async error", "scope", scope, "error", err)
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.moduleHookTimeout = timeout
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown, including draining queued events.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.shutdownTimeout = timeout
		}
	}
}

// WithDefaultSubscriptionBuffer sets the queue depth of subscriptions that
// do not declare one.
func WithDefaultSubscriptionBuffer(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.bus.Buffer = size
		}
	}
}

// WithDefaultSubscriptionWorkers sets the worker count of subscriptions that
// do not declare one.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return func(cfg *config) {
		if workers > 0 {
			cfg.bus.Workers = workers
		}
	}
}

// WithDefaultHandlerTimeout sets the per-event deadline of subscriptions that
// do not declare one. dealer.HandlerTimeoutNone removes the default deadline.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout != 0 {
			cfg.bus.HandlerTimeout = timeout
		}
	}
}

// WithLogger sets the kernel logger and routes async errors to it.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			return
		}
		cfg.logger = logger
		cfg.onAsyncError = logAsyncError(logger)
	}
}

// WithAsyncErrorHandler replaces the sink for errors raised off the caller's
// goroutine: handler failures, dropped events, rollback failures.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}
