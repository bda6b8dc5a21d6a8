// Package runner wraps external tool invocation so call sites receive a
// typed result instead of matching on error strings. Every build-critical
// command in the pipeline (mkfs, mount, bootstrap, btrfs) goes through it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external tool invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ToolError reports a tool that exited nonzero or failed to start.
type ToolError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("command %q failed", e.Command)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, lastLine(s))
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner executes external commands. The pipeline holds one Runner for its
// whole lifetime; tests substitute a stub.
type Runner interface {
	// Run executes the command, streaming its output to the process
	// streams, and blocks until it exits.
	Run(ctx context.Context, cmd Command) error
	// Output executes the command and returns its captured stdout.
	Output(ctx context.Context, cmd Command) (string, error)
}

// Exec is the production Runner backed by os/exec.
type Exec struct {
	Logger *slog.Logger
	// Stdout and Stderr receive streamed output from Run; they default to
	// the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (r *Exec) Run(ctx context.Context, cmd Command) error {
	r.logger().Debug("running command", "command", cmd.String())

	c := r.build(ctx, cmd)
	c.Stdout = r.stdout()

	var stderr bytes.Buffer
	c.Stderr = io.MultiWriter(r.stderr(), &stderr)

	if err := c.Run(); err != nil {
		return wrapExecError(cmd, stderr.String(), err)
	}
	return nil
}

func (r *Exec) Output(ctx context.Context, cmd Command) (string, error) {
	r.logger().Debug("running command", "command", cmd.String())

	c := r.build(ctx, cmd)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return "", wrapExecError(cmd, stderr.String(), err)
	}
	return stdout.String(), nil
}

func (r *Exec) build(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c
}

func (r *Exec) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Exec) stdout() io.Writer {
	if r != nil && r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Exec) stderr() io.Writer {
	if r != nil && r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

func wrapExecError(cmd Command, stderr string, err error) error {
	toolErr := &ToolError{
		Command: cmd.String(),
		Stderr:  stderr,
		Err:     err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	return toolErr
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
