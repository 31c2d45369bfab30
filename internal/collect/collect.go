// internal/collect/collect.go
package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrNotAvailable means the tool is not installed or the hardware is absent.
// It is never fatal to a run.
var ErrNotAvailable = errors.New("collector not available")

// Collector gathers one kind of record
type Collector[T any] interface {
	Name() string
	Collect(ctx context.Context) (T, error)
}

// Runner executes external tools. Tests substitute canned output.
type Runner interface {
	LookPath(name string) (string, error)
	// Run returns stdout and stderr even when the command exits non-zero
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real commands with LC_ALL=C for locale-stable output
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// lookup maps a missing binary to ErrNotAvailable
func lookup(r Runner, name string) error {
	if _, err := r.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrNotAvailable, name)
	}
	return nil
}

// toolError formats a failed command with its stderr
func toolError(name string, stderr []byte, err error) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return fmt.Errorf("%s failed: %s: %w", name, msg, err)
}

// Gather runs c and applies the failure policy: ErrNotAvailable yields the
// zero value, any other failure is returned only when required and otherwise
// logged and replaced by the zero value.
func Gather[T any](ctx context.Context, c Collector[T], required bool) (T, error) {
	var zero T
	v, err := c.Collect(ctx)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrNotAvailable):
		slog.Info("collector not available", "collector", c.Name(), "reason", err)
		return zero, nil
	case required:
		return zero, fmt.Errorf("%s: %w", c.Name(), err)
	default:
		slog.Warn("collector failed, continuing without it", "collector", c.Name(), "error", err)
		return zero, nil
	}
}
