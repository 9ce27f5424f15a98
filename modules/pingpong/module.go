package pingpong

import (
	"context"
	"fmt"

	"dealerbot/pkg/dealer"
)

const pingCommandName = "ping"

// Module replies with "pong!" when it receives a /ping command event.
type Module struct {
	dispatcher dealer.SinkDispatcher
}

// New creates a ping-pong module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "pingpong"
}

// Spec declares interest in received ping command events.
func (m *Module) Spec() dealer.ModuleSpec {
	return dealer.ModuleSpec{
		Handlers: []dealer.ModuleHandler{
			{
				Capability: dealer.Capability{
					Name:        "ping-command-handler",
					Description: "responds with pong! for /ping commands",
					Interest: dealer.InterestSet{
						Kinds:              []dealer.EventKind{dealer.EventKindCommandReceived},
						RequireCommand:     true,
						RequireInteraction: true,
						CommandNames:       []string{pingCommandName},
					},
					RequiredServices: []string{dealer.ServiceSinkDispatcher},
				},
				Subscription: dealer.NewDefaultSubscriptionSpec("pingpong-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []dealer.CommandSpec{
			{
				Name:        pingCommandName,
				Description: "Replies with pong!",
			},
		},
	}
}

// OnRegister resolves outbound dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime dealer.ModuleRuntime) error {
	dispatcher, err := dealer.ResolveAs[dealer.SinkDispatcher](
		runtime.Services(),
		dealer.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("pingpong resolve sink dispatcher: %w", err)
	}

	m.dispatcher = dispatcher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *dealer.Event) error {
	if event == nil || event.Command == nil || event.Interaction == nil {
		return nil
	}
	if event.Kind != dealer.EventKindCommandReceived {
		return nil
	}
	if event.Command.Name != pingCommandName {
		return nil
	}

	target, err := dealer.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("pingpong derive outbound target: %w", err)
	}
	err = m.dispatcher.Reply(ctx, dealer.ReplyRequest{
		Target: target,
		Text:   "pong!",
	})
	if err != nil {
		return fmt.Errorf("pingpong send pong reply: %w", err)
	}

	return nil
}

var (
	_ dealer.Module          = (*Module)(nil)
	_ dealer.ModuleRegistrar = (*Module)(nil)
)
