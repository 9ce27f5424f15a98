package kernel

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"dealerbot/pkg/dealer"
)

// kernelCommandCatalog serves the kernel's command registry as a service.
type kernelCommandCatalog struct {
	kernel *Kernel
}

// ListCommands returns every claimed command sorted by name. Names are unique
// across modules, so the order is total.
func (c *kernelCommandCatalog) ListCommands(ctx context.Context) ([]dealer.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	if c == nil || c.kernel == nil {
		return nil, fmt.Errorf("list commands: nil catalog")
	}

	c.kernel.mu.RLock()
	commands := make([]dealer.RegisteredCommand, 0, len(c.kernel.commands))
	for _, registration := range c.kernel.commands {
		commands = append(commands, dealer.RegisteredCommand{
			ModuleName: registration.moduleName,
			Command:    cloneCommandSpec(registration.spec),
		})
	}
	c.kernel.mu.RUnlock()

	slices.SortFunc(commands, func(a, b dealer.RegisteredCommand) int {
		return strings.Compare(a.Command.Name, b.Command.Name)
	})

	return commands, nil
}

var _ dealer.CommandCatalog = (*kernelCommandCatalog)(nil)
