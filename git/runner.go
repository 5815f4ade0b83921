package git

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// CommandRunner executes external commands on behalf of a Context.
// The production implementation is ExecRunner; tests inject
// SequentialMockRunner to script command results.
type CommandRunner interface {
	// Run executes name with args in dir and returns trimmed stdout.
	// On failure it still returns whatever stdout was produced, with
	// an error carrying the stderr text.
	Run(dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if runErr == nil {
		return out, nil
	}

	// Prefer stderr for the error text; git writes diagnostics there.
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = out
	}
	if msg == "" {
		return out, runErr
	}
	return out, errors.New(msg)
}
