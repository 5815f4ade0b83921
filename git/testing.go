package git

import (
	"fmt"
	"strings"
	"sync"
)

// SequentialMockRunner replays scripted command results in order.
// Each Run call consumes the next queued result regardless of the
// command, so tests read as a transcript of the expected git calls.
type SequentialMockRunner struct {
	mu      sync.Mutex
	results []mockResult

	// Calls records every command as "name arg1 arg2 ..." for assertions.
	Calls []string
}

type mockResult struct {
	stdout string
	stderr string
	err    error
}

// NewSequentialMockRunner returns an empty mock runner.
func NewSequentialMockRunner() *SequentialMockRunner {
	return &SequentialMockRunner{}
}

// AddOutput queues a result with the given stdout and error.
func (r *SequentialMockRunner) AddOutput(stdout string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, mockResult{stdout: stdout, err: err})
}

// AddOutputError queues a result with stderr text. A non-empty stderr
// is surfaced as an error even when err is nil, matching how real git
// failures come back from ExecRunner.
func (r *SequentialMockRunner) AddOutputError(stdout, stderr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, mockResult{stdout: stdout, stderr: stderr, err: err})
}

func (r *SequentialMockRunner) Run(dir, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := name + " " + strings.Join(args, " ")
	r.Calls = append(r.Calls, call)

	if len(r.results) == 0 {
		return "", fmt.Errorf("unexpected command: %s", call)
	}
	res := r.results[0]
	r.results = r.results[1:]

	if res.err != nil {
		return res.stdout, res.err
	}
	if res.stderr != "" {
		return res.stdout, fmt.Errorf("%s", res.stderr)
	}
	return res.stdout, nil
}
