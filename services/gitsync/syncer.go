// Package gitsync refreshes a local checkout before the winnings script runs.
package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealerbot/services/script"
)

// ServiceName is the service registry key for the shared syncer.
const ServiceName = "dealer.git_sync"

// DefaultCommand is the command line used when none is configured.
var DefaultCommand = []string{"git", "pull"}

// Syncer runs one repository update command in a work dir.
type Syncer struct {
	runner *script.Runner
	logger *slog.Logger
}

// Option mutates Syncer configuration.
type Option func(*config)

type config struct {
	command []string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// WithCommand overrides the update command line.
func WithCommand(argv ...string) Option {
	return func(cfg *config) {
		if len(argv) > 0 {
			cfg.command = append([]string(nil), argv...)
		}
	}
}

// WithDir sets the checkout directory; empty means the process cwd.
func WithDir(dir string) Option {
	return func(cfg *config) {
		cfg.dir = dir
	}
}

// WithTimeout bounds one update. Zero waits forever.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

// WithLogger configures sync logging.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// New creates a syncer running `git pull` unless configured otherwise.
func New(options ...Option) (*Syncer, error) {
	cfg := config{
		command: append([]string(nil), DefaultCommand...),
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(&cfg)
	}

	runner, err := script.New(
		cfg.command,
		script.WithDir(cfg.dir),
		script.WithTimeout(cfg.timeout),
		script.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("new git syncer: %w", err)
	}

	return &Syncer{runner: runner, logger: cfg.logger}, nil
}

// Pull runs the update command and logs its stdout.
//
// A non-zero exit is returned as an error so callers can decide whether the
// failure matters.
func (s *Syncer) Pull(ctx context.Context) (string, error) {
	command := strings.Join(s.runner.Command(), " ")

	result, err := s.runner.Run(ctx)
	if err != nil {
		return result.Output, fmt.Errorf("%s: %w", command, err)
	}
	if result.ExitCode != 0 {
		return result.Output, fmt.Errorf("%s: exit status %d", command, result.ExitCode)
	}

	s.logger.InfoContext(ctx, "git sync output",
		"run_id", result.RunID,
		"stdout", strings.TrimSpace(result.Output),
	)

	return result.Output, nil
}
