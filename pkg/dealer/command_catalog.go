package dealer

import (
	"context"
)

// ServiceCommandCatalog is the canonical service registry key for command discovery.
const ServiceCommandCatalog = "dealer.command_catalog"

// RegisteredCommand describes one runtime command registration entry.
type RegisteredCommand struct {
	// ModuleName identifies which module registered this command.
	ModuleName string
	// Command is the registered command specification.
	Command CommandSpec
}

// CommandCatalog lists the commands modules have claimed. Safe for concurrent use.
type CommandCatalog interface {
	// ListCommands returns a copy of every registered command, ordered by name.
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
