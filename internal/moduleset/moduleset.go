// Package moduleset lists the runtime modules shared by the bot and the
// deploy tool.
package moduleset

import (
	"log/slog"

	"dealerbot/modules/help"
	"dealerbot/modules/pingpong"
	"dealerbot/modules/winnings"
	"dealerbot/pkg/dealer"
)

// Options configures module construction.
type Options struct {
	Logger          *slog.Logger
	WinningsWorkers int
}

// Build returns every runtime module in registration order.
func Build(options Options) []dealer.Module {
	return []dealer.Module{
		winnings.New(
			winnings.WithLogger(options.Logger),
			winnings.WithWorkers(options.WinningsWorkers),
		),
		pingpong.New(),
		help.New(),
	}
}

// Names returns the runtime module names in registration order.
func Names() []string {
	modules := Build(Options{})
	names := make([]string, 0, len(modules))
	for _, module := range modules {
		names = append(names, module.Name())
	}

	return names
}

// Commands returns the commands each module declares, keyed by module name.
func Commands() map[string][]dealer.CommandSpec {
	modules := Build(Options{})
	commands := make(map[string][]dealer.CommandSpec, len(modules))
	for _, module := range modules {
		commands[module.Name()] = append([]dealer.CommandSpec(nil), module.Spec().Commands...)
	}

	return commands
}

// Lookup finds the command a module declares under name.
func Lookup(moduleName string, commandName string) (dealer.CommandSpec, bool) {
	for _, command := range Commands()[moduleName] {
		if dealer.NormalizeCommandName(command.Name) == dealer.NormalizeCommandName(commandName) {
			return command, true
		}
	}

	return dealer.CommandSpec{}, false
}
