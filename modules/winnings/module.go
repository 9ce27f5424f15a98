// Package winnings answers /calculate with the output of the winnings script.
package winnings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dealerbot/pkg/dealer"
	"dealerbot/services/gitsync"
	"dealerbot/services/script"
)

const (
	calculateCommandName = "calculate"

	// acknowledgeWorkers bounds concurrent deferrals, not concurrent runs.
	acknowledgeWorkers = 4

	// ScriptErrorReply replaces the output when the script fails to run.
	ScriptErrorReply = "There was an error running the Python script."
	// EmptyOutputReply replaces the output when the script prints nothing.
	EmptyOutputReply = "No output from the Python script."
)

// Syncer refreshes the script checkout before a run.
type Syncer interface {
	Pull(ctx context.Context) (string, error)
}

// ScriptRunner runs the winnings script once.
type ScriptRunner interface {
	Run(ctx context.Context) (script.Result, error)
}

// Module runs the winnings script for each /calculate invocation and edits
// the deferred reply with its output.
//
// Invocations are acknowledged on receipt. The sync, run and edit stages of
// each invocation continue on their own goroutine, which OnShutdown waits for.
type Module struct {
	workers    int
	slots      chan struct{}
	runs       sync.WaitGroup
	logger     *slog.Logger
	dispatcher dealer.SinkDispatcher
	syncer     Syncer
	runner     ScriptRunner
}

// Option mutates module configuration.
type Option func(*Module)

// WithLogger configures module logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithWorkers caps how many scripts may run at once. Invocations over the cap
// are still acknowledged and wait for a free slot. Zero leaves runs unbounded.
func WithWorkers(workers int) Option {
	return func(m *Module) {
		if workers > 0 {
			m.workers = workers
		}
	}
}

// New creates a winnings module.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
	}
	for _, option := range options {
		option(module)
	}
	if module.workers > 0 {
		module.slots = make(chan struct{}, module.workers)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "winnings"
}

// Spec declares the /calculate command and its handler.
//
// The handler only acknowledges the interaction before handing the run off,
// so its subscription never waits on a script.
func (m *Module) Spec() dealer.ModuleSpec {
	subscription := dealer.NewDefaultSubscriptionSpec("winnings-commands")
	subscription.Workers = acknowledgeWorkers
	subscription.HandlerTimeout = dealer.HandlerTimeoutNone
	subscription.Backpressure = dealer.BackpressureBlock

	return dealer.ModuleSpec{
		Handlers: []dealer.ModuleHandler{
			{
				Capability: dealer.Capability{
					Name:        "winnings-calculator",
					Description: "runs the winnings script and replies with its output",
					Interest: dealer.InterestSet{
						Kinds:              []dealer.EventKind{dealer.EventKindCommandReceived},
						RequireCommand:     true,
						RequireInteraction: true,
						CommandNames:       []string{calculateCommandName},
					},
					RequiredServices: []string{
						dealer.ServiceSinkDispatcher,
						script.ServiceName,
					},
				},
				Subscription: subscription,
				Handler:      m.handleCalculate,
			},
		},
		Commands: []dealer.CommandSpec{
			{
				Name:        calculateCommandName,
				Description: "Replies with Winnings!",
			},
		},
	}
}

// OnRegister resolves the dispatcher, the script runner and, when
// registered, the checkout syncer.
func (m *Module) OnRegister(_ context.Context, runtime dealer.ModuleRuntime) error {
	services := runtime.Services()

	dispatcher, err := dealer.ResolveAs[dealer.SinkDispatcher](services, dealer.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("winnings resolve sink dispatcher: %w", err)
	}
	runner, err := dealer.ResolveAs[ScriptRunner](services, script.ServiceName)
	if err != nil {
		return fmt.Errorf("winnings resolve script runner: %w", err)
	}

	m.dispatcher = dispatcher
	m.runner = runner

	syncer, err := dealer.ResolveAs[Syncer](services, gitsync.ServiceName)
	switch {
	case err == nil:
		m.syncer = syncer
	case errors.Is(err, dealer.ErrServiceNotFound):
		m.logger.Info("winnings checkout sync disabled", "service", gitsync.ServiceName)
	default:
		return fmt.Errorf("winnings resolve git syncer: %w", err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown waits for in-flight runs to edit their replies.
func (m *Module) OnShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("winnings wait for in-flight runs: %w", ctx.Err())
	}
}

// handleCalculate defers the reply and hands the rest of the invocation to
// its own goroutine. The run is detached from ctx so shutdown never abandons
// a deferred reply.
func (m *Module) handleCalculate(ctx context.Context, event *dealer.Event) error {
	if event == nil || event.Command == nil || event.Interaction == nil {
		return nil
	}
	if event.Kind != dealer.EventKindCommandReceived || event.Command.Name != calculateCommandName {
		return nil
	}
	if m.dispatcher == nil || m.runner == nil {
		return fmt.Errorf("winnings handle command: module not registered")
	}

	target, err := dealer.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("winnings derive outbound target: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	startedAt := time.Now()
	logger := m.logger.With(
		"module", m.Name(),
		"interaction_id", event.Interaction.ID,
		"actor_id", event.Actor.ID,
		"guild_id", event.Conversation.GuildID,
	)

	if err := m.dispatcher.DeferReply(runCtx, dealer.DeferReplyRequest{Target: target}); err != nil {
		logger.ErrorContext(runCtx, "winnings defer reply failed", "error", err)
	}

	m.runs.Go(func() {
		m.finish(runCtx, logger, target, startedAt)
	})

	return nil
}

// finish syncs, runs the script and edits the deferred reply exactly once.
func (m *Module) finish(ctx context.Context, logger *slog.Logger, target dealer.OutboundTarget, startedAt time.Time) {
	if m.slots != nil {
		m.slots <- struct{}{}
		defer func() { <-m.slots }()
	}

	m.sync(ctx, logger)
	reply := m.compute(ctx, logger)

	err := m.dispatcher.EditReply(ctx, dealer.EditReplyRequest{Target: target, Text: reply})
	switch {
	case dealer.IsOutboundExpired(err):
		// The token outlived its window; there is nobody left to answer.
		logger.WarnContext(ctx, "winnings reply expired before the run finished",
			"elapsed", time.Since(startedAt),
			"error", err,
		)
	case err != nil:
		logger.ErrorContext(ctx, "winnings edit reply failed",
			"elapsed", time.Since(startedAt),
			"error", err,
		)
	default:
		logger.InfoContext(ctx, "winnings reply sent", "length", len(reply))
	}
}

// sync updates the checkout. Failures are logged and otherwise ignored.
func (m *Module) sync(ctx context.Context, logger *slog.Logger) {
	if m.syncer == nil {
		return
	}
	if _, err := m.syncer.Pull(ctx); err != nil {
		logger.WarnContext(ctx, "winnings checkout sync failed", "error", err)
	}
}

// compute runs the script and picks the reply text.
func (m *Module) compute(ctx context.Context, logger *slog.Logger) string {
	result, err := m.runner.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "winnings script failed", "run_id", result.RunID, "error", err)
		return ScriptErrorReply
	}
	if result.Output == "" {
		return EmptyOutputReply
	}

	return result.Output
}

var (
	_ dealer.Module          = (*Module)(nil)
	_ dealer.ModuleRegistrar = (*Module)(nil)
	_ ScriptRunner           = (*script.Runner)(nil)
	_ Syncer                 = (*gitsync.Syncer)(nil)
)
