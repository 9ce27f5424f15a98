// Package script runs one external program per call and collects its stdout.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// ServiceName is the service registry key for the shared script runner.
	ServiceName = "dealer.script_runner"

	defaultWaitDelay = 2 * time.Second
	maxStderrBytes   = 4096
)

var (
	// ErrStart reports that the program could not be spawned.
	ErrStart = errors.New("script start failed")
	// ErrTimeout reports that the program outlived the configured timeout.
	ErrTimeout = errors.New("script timed out")
)

// Result is the outcome of one program run.
type Result struct {
	// RunID correlates log lines for one run.
	RunID string
	// Output is every stdout chunk concatenated in arrival order.
	Output string
	// ExitCode is the program exit status, or -1 when it never exited normally.
	ExitCode int
	// Duration is the wall time between spawn and exit.
	Duration time.Duration
}

// Runner spawns one configured command line.
type Runner struct {
	argv    []string
	dir     string
	env     []string
	timeout time.Duration
	logger  *slog.Logger
}

// Option mutates Runner configuration.
type Option func(*Runner)

// WithDir sets the working directory; empty means the process cwd.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = strings.TrimSpace(dir)
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(pairs ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, pairs...)
	}
}

// WithTimeout bounds each run. Zero waits for the program forever.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout >= 0 {
			r.timeout = timeout
		}
	}
}

// WithLogger configures run logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a runner for argv, where argv[0] is resolved through PATH.
func New(argv []string, options ...Option) (*Runner, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("new script runner: empty command")
	}

	runner := &Runner{
		argv:   append([]string(nil), argv...),
		logger: slog.Default(),
	}
	for _, option := range options {
		option(runner)
	}

	return runner, nil
}

// Command returns the configured command line.
func (r *Runner) Command() []string {
	return append([]string(nil), r.argv...)
}

// Run spawns the program, waits for it to exit and returns its stdout.
//
// A non-zero exit status is not an error: the output is still returned and
// the status is reported in Result.ExitCode. Errors wrap ErrStart, ErrTimeout
// or the wait failure; the partial output collected so far is returned with them.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	result := Result{RunID: uuid.NewString(), ExitCode: -1}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.argv[0], r.argv[1:]...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	cmd.WaitDelay = defaultWaitDelay

	stdout := &chunkCollector{}
	stderr := &limitWriter{limit: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger := r.logger.With("run_id", result.RunID, "command", strings.Join(r.argv, " "))
	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		logger.ErrorContext(ctx, "script start failed", "error", err)
		return result, fmt.Errorf("run %s: %w: %w", r.argv[0], ErrStart, err)
	}
	logger.DebugContext(ctx, "script started", "pid", cmd.Process.Pid, "dir", r.dir)

	waitErr := cmd.Wait()
	result.Duration = time.Since(startedAt)
	output, chunks := stdout.collected()
	result.Output = output
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			logger.ErrorContext(ctx, "script timed out", "timeout", r.timeout, "stderr", stderr.String())
			return result, fmt.Errorf("run %s: %w after %s", r.argv[0], ErrTimeout, r.timeout)
		}

		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) || ctx.Err() != nil {
			logger.ErrorContext(ctx, "script wait failed", "error", waitErr, "stderr", stderr.String())
			return result, fmt.Errorf("run %s: %w", r.argv[0], waitErr)
		}

		logger.WarnContext(ctx, "script exited with non-zero status",
			"exit_code", result.ExitCode,
			"stderr", stderr.String(),
		)
	}

	logger.InfoContext(ctx, "script finished",
		"exit_code", result.ExitCode,
		"chunks", chunks,
		"bytes", len(result.Output),
		"duration", result.Duration,
	)

	return result, nil
}

// chunkCollector concatenates stdout writes in arrival order.
type chunkCollector struct {
	mu     sync.Mutex
	buf    strings.Builder
	chunks int
}

func (c *chunkCollector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunks++
	return c.buf.Write(p)
}

func (c *chunkCollector) collected() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.String(), c.chunks
}

// limitWriter keeps the first limit bytes and discards the rest.
type limitWriter struct {
	mu    sync.Mutex
	buf   strings.Builder
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}

	return w.buf.Write(p)
}

func (w *limitWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.buf.String()
}
