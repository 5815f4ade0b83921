package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	Command string        // Shell command line, run via sh -c
	Dir     string        // Working directory
	Timeout time.Duration // 0 = no timeout
	Env     []string      // Extra environment, appended to the process env
}

// Result is what a command produced, regardless of success.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Output returns stdout and stderr joined, stdout first.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// CommandRunner executes step commands. A non-zero exit code is data,
// not an error; errors mean the command could not run to completion
// (spawn failure, timeout, cancellation).
type CommandRunner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecCommandRunner runs commands through the shell via os/exec.
type ExecCommandRunner struct {
	// GraceDelay is how long a signalled command gets to exit before
	// it is killed. Defaults to 5s.
	GraceDelay time.Duration
}

// NewExecCommandRunner returns the production command runner.
func NewExecCommandRunner() *ExecCommandRunner {
	return &ExecCommandRunner{GraceDelay: 5 * time.Second}
}

func (r *ExecCommandRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// SIGTERM on cancel, SIGKILL after the grace delay.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.GraceDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	start := time.Now()
	runErr := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	// Timeout on the attempt context, with the parent still live.
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = -1
		return res, fmt.Errorf("command timed out after %s: %w", spec.Timeout, context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("run command: %w", runErr)
	}

	return res, nil
}

var _ CommandRunner = (*ExecCommandRunner)(nil)
