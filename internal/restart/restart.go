// Package restart carries out the node's last-resort recovery.
//
// On a microcontroller the answer to an unreachable broker is a reboot. On
// Linux the process exits with ExitCode and its supervisor (systemd with
// Restart=always, a container runtime) starts it again; or, in command mode,
// a configured command such as `systemctl reboot` runs first.
package restart

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// ExitCode is the process exit status that asks the supervisor for a restart.
const ExitCode = 3

// Modes accepted by New.
const (
	ModeExit    = "exit"
	ModeCommand = "command"
)

// defaultTimeout bounds the restart command.
const defaultTimeout = 30 * time.Second

var (
	// ErrUnknownMode is returned by New for an unsupported mode.
	ErrUnknownMode = errors.New("restart: unknown mode")

	// ErrCommandFailed is returned when the restart command fails.
	ErrCommandFailed = errors.New("restart: command failed")
)

// Restarter performs a restart of the node.
type Restarter interface {
	Restart(ctx context.Context, reason string) error
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Logger is the logging surface a Policy needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Policy is the configured Restarter. It remembers the first reason it was
// asked to restart for, which main reads to choose the exit code.
type Policy struct {
	mode    string
	command []string
	timeout time.Duration
	run     Runner
	logger  Logger

	mu     sync.Mutex
	reason string
}

// New builds a Policy from configuration.
func New(cfg config.RestartConfig, logger Logger) (*Policy, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	p := &Policy{
		mode:    cfg.Mode,
		command: cfg.Command,
		timeout: cfg.Timeout,
		run:     execRunner,
		logger:  logger,
	}
	if p.mode == "" {
		p.mode = ModeExit
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}

	switch p.mode {
	case ModeExit:
	case ModeCommand:
		if len(p.command) == 0 {
			return nil, fmt.Errorf("%w: command mode needs a command", ErrUnknownMode)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, p.mode)
	}
	return p, nil
}

// SetRunner replaces the command runner. Used by tests.
func (p *Policy) SetRunner(run Runner) {
	p.run = run
}

// Restart records reason and, in command mode, runs the restart command.
//
// In exit mode this only records the request; the caller unwinds and the
// process exits with ExitCode.
func (p *Policy) Restart(ctx context.Context, reason string) error {
	p.mu.Lock()
	if p.reason == "" {
		p.reason = reason
	}
	p.mu.Unlock()

	p.logger.Warn("restart requested", "reason", reason, "mode", p.mode)

	if p.mode != ModeCommand {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := p.run(runCtx, p.command[0], p.command[1:]...)
	if err != nil {
		p.logger.Error("restart command failed",
			"command", strings.Join(p.command, " "),
			"output", strings.TrimSpace(string(output)),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return nil
}

// Requested reports whether Restart was called, and the first reason given.
func (p *Policy) Requested() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason, p.reason != ""
}

// Mode returns the configured mode.
func (p *Policy) Mode() string {
	return p.mode
}
