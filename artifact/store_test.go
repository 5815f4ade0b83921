package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/plan"
)

func testPlan() *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		ID:       "plan-1",
		IssueRef: "gh-42",
		Summary:  "add rate limiting",
		Batches: []plan.ExecutionBatch{
			{
				ID:   "b1",
				Name: "scaffolding",
				Steps: []plan.PlanStep{
					{ID: "s1", Description: "create limiter type", Action: plan.ActionCode, Risk: plan.RiskLow},
				},
			},
		},
		CreatedAt: time.Now(),
	}
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore("")

	if s.baseDir != ".conductor" {
		t.Errorf("baseDir = %q, want .conductor", s.baseDir)
	}
	if s.compressAbove != DefaultCompressAbove {
		t.Errorf("compressAbove = %d, want %d", s.compressAbove, DefaultCompressAbove)
	}
	if s.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", s.retention, DefaultRetention)
	}
	if s.minKeep != DefaultMinKeep {
		t.Errorf("minKeep = %d, want %d", s.minKeep, DefaultMinKeep)
	}
}

func TestStore_SaveLoadPlan(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.SavePlan("wf-1", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	loaded, err := s.LoadPlan("wf-1")
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if loaded.ID != "plan-1" || loaded.IssueRef != "gh-42" {
		t.Errorf("loaded plan = %+v", loaded)
	}
	if len(loaded.Batches) != 1 || len(loaded.Batches[0].Steps) != 1 {
		t.Errorf("plan structure lost: %+v", loaded.Batches)
	}
}

func TestStore_LoadPlan_NotFound(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.LoadPlan("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveLoadReview(t *testing.T) {
	s := NewStore(t.TempDir())

	review := &agent.ReviewResult{
		Approved: false,
		Verdict:  agent.VerdictRequestChanges,
		Summary:  "needs an error path",
		Findings: []agent.Finding{
			{File: "limiter.go", Line: 40, Severity: agent.SeverityError, Message: "missing nil check"},
		},
	}
	if err := s.SaveReview("wf-1", review); err != nil {
		t.Fatalf("SaveReview: %v", err)
	}

	loaded, err := s.LoadReview("wf-1")
	if err != nil {
		t.Fatalf("LoadReview: %v", err)
	}
	if loaded.Approved || loaded.Verdict != agent.VerdictRequestChanges {
		t.Errorf("loaded review = %+v", loaded)
	}
	if len(loaded.Findings) != 1 || loaded.Findings[0].File != "limiter.go" {
		t.Errorf("findings = %+v", loaded.Findings)
	}
}

func TestStore_SaveStepOutput(t *testing.T) {
	s := NewStore(t.TempDir())

	result := plan.StepResult{
		StepID:   "s1",
		Status:   plan.StepCompleted,
		Output:   "truncated...",
		ExitCode: 0,
	}
	if err := s.SaveStepOutput("wf-1", result, "full output here"); err != nil {
		t.Fatalf("SaveStepOutput: %v", err)
	}

	loaded, err := s.LoadStepResult("wf-1", "s1")
	if err != nil {
		t.Fatalf("LoadStepResult: %v", err)
	}
	if loaded.Status != plan.StepCompleted {
		t.Errorf("status = %q", loaded.Status)
	}

	out, err := s.StepOutput("wf-1", "s1")
	if err != nil {
		t.Fatalf("StepOutput: %v", err)
	}
	if out != "full output here" {
		t.Errorf("output = %q", out)
	}
}

func TestStore_StepOutput_Compressed(t *testing.T) {
	s := NewStore(t.TempDir(), WithCompressAbove(64))

	full := strings.Repeat("a line of output\n", 100)
	result := plan.StepResult{StepID: "s1", Status: plan.StepCompleted}
	if err := s.SaveStepOutput("wf-1", result, full); err != nil {
		t.Fatalf("SaveStepOutput: %v", err)
	}

	logPath := filepath.Join(s.RunDir("wf-1"), "steps", "s1.log")
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("uncompressed log should not exist")
	}
	if _, err := os.Stat(logPath + ".gz"); err != nil {
		t.Fatalf("compressed log missing: %v", err)
	}

	out, err := s.StepOutput("wf-1", "s1")
	if err != nil {
		t.Fatalf("StepOutput: %v", err)
	}
	if out != full {
		t.Error("decompressed output mismatch")
	}
}

func TestStore_StepOutput_RerunOverwrites(t *testing.T) {
	s := NewStore(t.TempDir(), WithCompressAbove(64))

	result := plan.StepResult{StepID: "s1", Status: plan.StepFailed}
	big := strings.Repeat("x", 200)
	if err := s.SaveStepOutput("wf-1", result, big); err != nil {
		t.Fatalf("SaveStepOutput: %v", err)
	}

	// The retry produces a small output; the stale compressed log must
	// not shadow it.
	result.Status = plan.StepCompleted
	if err := s.SaveStepOutput("wf-1", result, "ok"); err != nil {
		t.Fatalf("SaveStepOutput retry: %v", err)
	}

	out, err := s.StepOutput("wf-1", "s1")
	if err != nil {
		t.Fatalf("StepOutput: %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q, want ok", out)
	}
}

func TestStore_SaveLoadDiff(t *testing.T) {
	s := NewStore(t.TempDir())

	diff := "diff --git a/limiter.go b/limiter.go\n+func New() {}\n"
	if err := s.SaveDiff("wf-1", "b1", diff); err != nil {
		t.Fatalf("SaveDiff: %v", err)
	}

	loaded, err := s.LoadDiff("wf-1", "b1")
	if err != nil {
		t.Fatalf("LoadDiff: %v", err)
	}
	if loaded != diff {
		t.Errorf("diff = %q", loaded)
	}

	if _, err := s.LoadDiff("wf-1", "b2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing diff error = %v, want ErrNotFound", err)
	}
}

func TestStore_Runs(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.SavePlan("wf-old", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	backdate(t, s.RunDir("wf-old"), 48*time.Hour)
	if err := s.SavePlan("wf-new", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %v", runs)
	}
	if runs[0] != "wf-new" || runs[1] != "wf-old" {
		t.Errorf("runs = %v, want newest first", runs)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.SavePlan("wf-1", testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	if err := s.Delete("wf-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.LoadPlan("wf-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("plan should be gone, got %v", err)
	}
}

func TestFsName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wf_abc123", "wf_abc123"},
		{"b1-p2", "b1-p2"},
		{"step one", "step_one"},
		{"../etc/passwd", ".._etc_passwd"},
		{"..", "_"},
		{"", "_"},
		{"héllo", "h_llo"},
	}
	for _, tt := range tests {
		if got := fsName(tt.in); got != tt.want {
			t.Errorf("fsName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// backdate pushes every file under dir into the past.
func backdate(t *testing.T, dir string, by time.Duration) {
	t.Helper()
	old := time.Now().Add(-by)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chtimes(path, old, old)
	})
	if err != nil {
		t.Fatalf("backdate %s: %v", dir, err)
	}
}
