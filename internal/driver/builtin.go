package driver

import (
	"context"
	"fmt"
	"log/slog"

	"dealerbot/internal/driver/discord"
)

// NewBuiltinRegistry constructs the driver registry with every built-in driver.
// defaults fills Discord credentials a driver config leaves empty.
func NewBuiltinRegistry(defaults discord.Defaults) (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type:     discord.DriverType,
			Platform: discord.DriverPlatform,
			Builder: func(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
				source, runtimeDriver, sinkDispatcher, err := discord.BuildRuntimeFromConfig(
					definition.Name,
					logger,
					definition.Config,
					defaults,
				)
				if err != nil {
					return Runtime{}, fmt.Errorf("build discord runtime from config: %w", err)
				}

				return Runtime{
					Source:         source,
					Driver:         runtimeDriver,
					SinkDispatcher: sinkDispatcher,
				}, nil
			},
		},
	})
}
