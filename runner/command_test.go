package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExecCommandRunner_CapturesStdout(t *testing.T) {
	r := NewExecCommandRunner()
	res, err := r.Run(context.Background(), Spec{Command: "echo hello", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestExecCommandRunner_NonZeroExitIsData(t *testing.T) {
	r := NewExecCommandRunner()
	res, err := r.Run(context.Background(), Spec{Command: "exit 3", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error: %v, want nil; exit codes are data", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestExecCommandRunner_SeparatesStderr(t *testing.T) {
	r := NewExecCommandRunner()
	res, err := r.Run(context.Background(), Spec{Command: "echo out; echo err >&2", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Stdout != "out\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out\n")
	}
	if res.Stderr != "err\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err\n")
	}
}

func TestExecCommandRunner_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewExecCommandRunner()
	res, err := r.Run(context.Background(), Spec{Command: "cat marker.txt", Dir: dir})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Stdout != "here" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "here")
	}
}

func TestExecCommandRunner_ExtraEnv(t *testing.T) {
	r := NewExecCommandRunner()
	res, err := r.Run(context.Background(), Spec{
		Command: "echo $CONDUCTOR_TEST_VAR",
		Dir:     t.TempDir(),
		Env:     []string{"CONDUCTOR_TEST_VAR=42"},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "42" {
		t.Errorf("Stdout = %q, want 42", res.Stdout)
	}
}

func TestExecCommandRunner_Timeout(t *testing.T) {
	r := NewExecCommandRunner()
	r.GraceDelay = 100 * time.Millisecond

	start := time.Now()
	res, err := r.Run(context.Background(), Spec{
		Command: "sleep 10",
		Dir:     t.TempDir(),
		Timeout: 50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Run() = nil error, want timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded so retry treats it as transient", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %s; the command outlived SIGTERM and the grace delay", elapsed)
	}
}

func TestExecCommandRunner_ParentCancel(t *testing.T) {
	r := NewExecCommandRunner()
	r.GraceDelay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := r.Run(ctx, Spec{Command: "sleep 10", Dir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res.TimedOut {
		t.Error("TimedOut = true for a user cancel, want false")
	}
}

func TestResult_Output(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"stdout only", Result{Stdout: "a"}, "a"},
		{"stderr only", Result{Stderr: "b"}, "b"},
		{"both", Result{Stdout: "a", Stderr: "b"}, "a\nb"},
		{"empty", Result{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Output(); got != tt.want {
				t.Errorf("Output() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStepError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &StepError{StepID: "s1", Command: "make", ExitCode: 2, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() = false, want unwrap to inner")
	}
	if !strings.Contains(err.Error(), "s1") {
		t.Errorf("Error() = %q, want step id included", err.Error())
	}
}
