package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dealerbot/pkg/dealer"
)

const helpCommandName = "help"

// Module replies with command reference text when it receives a /help command.
type Module struct {
	dispatcher     dealer.SinkDispatcher
	commandCatalog dealer.CommandCatalog
}

// New creates a help module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares interest in help command events.
func (m *Module) Spec() dealer.ModuleSpec {
	return dealer.ModuleSpec{
		Handlers: []dealer.ModuleHandler{
			{
				Capability: dealer.Capability{
					Name:        "help-command-handler",
					Description: "renders registered command help for /help",
					Interest: dealer.InterestSet{
						Kinds:              []dealer.EventKind{dealer.EventKindCommandReceived},
						RequireCommand:     true,
						RequireInteraction: true,
						CommandNames:       []string{helpCommandName},
					},
					RequiredServices: []string{
						dealer.ServiceSinkDispatcher,
						dealer.ServiceCommandCatalog,
					},
				},
				Subscription: dealer.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []dealer.CommandSpec{
			{
				Name:        helpCommandName,
				Description: "Shows all available commands",
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime dealer.ModuleRuntime) error {
	dispatcher, err := dealer.ResolveAs[dealer.SinkDispatcher](
		runtime.Services(),
		dealer.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("help resolve sink dispatcher: %w", err)
	}
	commandCatalog, err := dealer.ResolveAs[dealer.CommandCatalog](
		runtime.Services(),
		dealer.ServiceCommandCatalog,
	)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

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
	if event.Command.Name != helpCommandName {
		return nil
	}
	if m.dispatcher == nil {
		return fmt.Errorf("help handle command: sink dispatcher not configured")
	}
	if m.commandCatalog == nil {
		return fmt.Errorf("help handle command: command catalog not configured")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}

	target, err := dealer.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	err = m.dispatcher.Reply(ctx, dealer.ReplyRequest{
		Target:    target,
		Text:      renderHelp(commands),
		Ephemeral: true,
	})
	if err != nil {
		return fmt.Errorf("help send help reply: %w", err)
	}

	return nil
}

func renderHelp(commands []dealer.RegisteredCommand) string {
	if len(commands) == 0 {
		return "Available commands:\n(none)"
	}

	sorted := append([]dealer.RegisteredCommand(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool {
		left := commandLabel(sorted[i].Command)
		right := commandLabel(sorted[j].Command)
		if left == right {
			return sorted[i].ModuleName < sorted[j].ModuleName
		}
		return left < right
	})

	lines := make([]string, 0, len(sorted)*4+1)
	lines = append(lines, "Available commands:\n")
	for index, command := range sorted {
		if index > 0 {
			lines = append(lines, "")
		}
		description := strings.TrimSpace(command.Command.Description)
		moduleName := strings.TrimSpace(command.ModuleName)
		if moduleName == "" {
			moduleName = "unknown"
		}

		lines = append(lines, commandLabel(command.Command))
		if len(command.Command.Options) != 0 {
			lines = append(lines, fmt.Sprintf("usage: %s", renderCommandOptions(command.Command.Options)))
		}
		if description != "" {
			lines = append(lines, description)
		}
		lines = append(lines, fmt.Sprintf("(%s)", moduleName))
	}

	return strings.Join(lines, "\n")
}

func commandLabel(command dealer.CommandSpec) string {
	return "/" + dealer.NormalizeCommandName(command.Name)
}

// renderCommandOptions keeps declaration order, which puts required options first.
func renderCommandOptions(options []dealer.CommandOptionSpec) string {
	descriptors := make([]string, 0, len(options))
	for _, option := range options {
		descriptor := renderCommandOption(option)
		if descriptor != "" {
			descriptors = append(descriptors, descriptor)
		}
	}
	if len(descriptors) == 0 {
		return "(none)"
	}

	return strings.Join(descriptors, " ")
}

func renderCommandOption(option dealer.CommandOptionSpec) string {
	name := dealer.NormalizeCommandName(option.Name)
	if name == "" {
		return ""
	}

	descriptor := name
	if option.Type != "" {
		descriptor += ":" + string(option.Type)
	}
	if option.Required {
		return "<" + descriptor + ">"
	}

	return "[" + descriptor + "]"
}

var (
	_ dealer.Module          = (*Module)(nil)
	_ dealer.ModuleRegistrar = (*Module)(nil)
)
