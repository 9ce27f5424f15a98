// Package deploy registers the discovered command set with the platform.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"dealerbot/internal/commandfs"
	"dealerbot/internal/driver/discord"

	"github.com/bwmarrin/discordgo"
)

// DescriptorSource yields the descriptors to register, in order.
type DescriptorSource interface {
	LoadAll() ([]commandfs.Descriptor, error)
}

// Registrar replaces the registered command set in one call.
type Registrar interface {
	BulkOverwrite(ctx context.Context, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// Report summarizes one deploy run.
type Report struct {
	// Submitted counts commands sent in the overwrite.
	Submitted int
	// Registered counts commands the platform reports back.
	Registered int
	// DryRun reports that nothing was submitted.
	DryRun bool
}

// Deployer runs the discover, aggregate and submit flow.
type Deployer struct {
	source    DescriptorSource
	registrar Registrar
	logger    *slog.Logger
	dryRunOut io.Writer
}

// Option mutates Deployer configuration.
type Option func(*Deployer)

// WithLogger configures progress logging.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDryRun prints the payload to out instead of submitting it.
func WithDryRun(out io.Writer) Option {
	return func(d *Deployer) {
		d.dryRunOut = out
	}
}

// New creates a deployer. registrar may be nil only for dry runs.
func New(source DescriptorSource, registrar Registrar, options ...Option) (*Deployer, error) {
	if source == nil {
		return nil, fmt.Errorf("new deployer: nil descriptor source")
	}

	deployer := &Deployer{
		source:    source,
		registrar: registrar,
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(deployer)
	}
	if deployer.registrar == nil && deployer.dryRunOut == nil {
		return nil, fmt.Errorf("new deployer: nil registrar")
	}

	return deployer, nil
}

// Run loads every descriptor and submits them as one bulk overwrite.
// Failures are returned, not logged.
func (d *Deployer) Run(ctx context.Context) (Report, error) {
	descriptors, err := d.source.LoadAll()
	if err != nil {
		return Report{}, fmt.Errorf("discover commands: %w", err)
	}

	payload, err := BuildPayload(descriptors)
	if err != nil {
		return Report{}, err
	}

	report := Report{Submitted: len(payload)}
	d.logger.InfoContext(ctx, fmt.Sprintf("Started refreshing %d application (/) commands.", len(payload)))

	if d.dryRunOut != nil {
		report.DryRun = true
		encoder := json.NewEncoder(d.dryRunOut)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(payload); err != nil {
			return report, fmt.Errorf("write dry run payload: %w", err)
		}
		d.logger.InfoContext(ctx, "dry run: commands were not submitted", "commands", len(payload))
		return report, nil
	}

	registered, err := d.registrar.BulkOverwrite(ctx, payload)
	if err != nil {
		return report, fmt.Errorf("register commands: %w", err)
	}

	report.Registered = len(registered)
	d.logger.InfoContext(ctx, fmt.Sprintf("Successfully reloaded %d application (/) commands.", len(registered)))

	return report, nil
}

// BuildPayload converts descriptors to wire commands, keeping their order.
func BuildPayload(descriptors []commandfs.Descriptor) ([]*discordgo.ApplicationCommand, error) {
	payload := make([]*discordgo.ApplicationCommand, 0, len(descriptors))
	for _, descriptor := range descriptors {
		command, err := discord.ApplicationCommandFromSpec(descriptor.Data)
		if err != nil {
			return nil, fmt.Errorf("build payload from %s: %w", descriptor.Path, err)
		}
		payload = append(payload, command)
	}

	return payload, nil
}
