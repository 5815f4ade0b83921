package runner

import "errors"

// Execution errors.
var (
	// ErrNoCommand indicates a command step with an empty command line.
	ErrNoCommand = errors.New("step has no command")

	// ErrPatternMismatch indicates the command exited as expected but
	// its output did not match the step's output pattern.
	ErrPatternMismatch = errors.New("output did not match expected pattern")
)

// StepError wraps a step failure with enough context for a blocker.
type StepError struct {
	StepID   string // Step that failed
	Command  string // Command that ran, if any
	ExitCode int    // Exit code, -1 when the command never finished
	Output   string // Combined truncated output
	Err      error  // Underlying error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return "step " + e.StepID + ": " + e.Err.Error()
	}
	return "step " + e.StepID + " failed"
}

func (e *StepError) Unwrap() error {
	return e.Err
}
