package testutil

import (
	"context"
	"sync"

	"github.com/randalmurphal/conductor/runner"
)

// RecordingRunner implements runner.CommandRunner for tests. It replays
// scripted results in order and records every spec it receives. An
// empty queue reports success with no output, so happy-path tests need
// no scripting at all.
type RecordingRunner struct {
	mu    sync.Mutex
	queue []scriptedRun
	specs []runner.Spec
}

type scriptedRun struct {
	res runner.Result
	err error
}

var _ runner.CommandRunner = (*RecordingRunner)(nil)

// NewRecordingRunner returns an empty recording runner.
func NewRecordingRunner() *RecordingRunner {
	return &RecordingRunner{}
}

// Queue schedules the result for a future Run call.
func (r *RecordingRunner) Queue(res runner.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, scriptedRun{res: res})
}

// QueueFailure schedules a run that could not complete, such as a spawn
// failure or timeout.
func (r *RecordingRunner) QueueFailure(res runner.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, scriptedRun{res: res, err: err})
}

// Specs returns every spec received, in order.
func (r *RecordingRunner) Specs() []runner.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.Spec(nil), r.specs...)
}

// Commands returns the command lines received, in order.
func (r *RecordingRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmds := make([]string, len(r.specs))
	for i, s := range r.specs {
		cmds[i] = s.Command
	}
	return cmds
}

func (r *RecordingRunner) Run(ctx context.Context, spec runner.Spec) (runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return runner.Result{ExitCode: -1}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs = append(r.specs, spec)
	if len(r.queue) == 0 {
		return runner.Result{}, nil
	}
	s := r.queue[0]
	r.queue = r.queue[1:]
	return s.res, s.err
}
