package artifact

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/randalmurphal/conductor/agent"
	"github.com/randalmurphal/conductor/plan"
)

// ErrNotFound indicates the requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Defaults for the store.
const (
	DefaultCompressAbove = int64(10 * 1024) // gzip step logs above 10KB
	DefaultArchiveAfter  = 7 * 24 * time.Hour
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultMinKeep       = 20
)

// Standard artifact names within a run directory.
const (
	filePlan   = "plan.json"
	fileReview = "review.json"
	dirSteps   = "steps"
	dirDiffs   = "diffs"
)

// Store writes run artifacts beneath a base directory.
type Store struct {
	baseDir       string
	compressAbove int64
	archiveAfter  time.Duration
	retention     time.Duration
	minKeep       int
}

// Option configures a Store.
type Option func(*Store)

// WithCompressAbove sets the size above which step logs are gzipped.
// Zero or negative disables compression.
func WithCompressAbove(n int64) Option {
	return func(s *Store) { s.compressAbove = n }
}

// WithArchiveAfter sets how long a run may sit idle before Sweep
// archives it. Zero disables archiving.
func WithArchiveAfter(d time.Duration) Option {
	return func(s *Store) { s.archiveAfter = d }
}

// WithRetention sets how long runs and archives are kept before Sweep
// deletes them. Zero disables deletion.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithMinKeep sets the number of most recent runs Sweep always keeps.
func WithMinKeep(n int) Option {
	return func(s *Store) { s.minKeep = n }
}

// NewStore creates a store rooted at baseDir. Directories are created
// lazily on the first save.
func NewStore(baseDir string, opts ...Option) *Store {
	if baseDir == "" {
		baseDir = ".conductor"
	}
	s := &Store{
		baseDir:       baseDir,
		compressAbove: DefaultCompressAbove,
		archiveAfter:  DefaultArchiveAfter,
		retention:     DefaultRetention,
		minKeep:       DefaultMinKeep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseDir returns the base directory.
func (s *Store) BaseDir() string { return s.baseDir }

// RunDir returns the directory holding a workflow's artifacts.
func (s *Store) RunDir(workflowID string) string {
	return filepath.Join(s.baseDir, "runs", fsName(workflowID))
}

// Runs lists the workflow IDs that have artifacts, newest first.
func (s *Store) Runs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type run struct {
		id  string
		mod time.Time
	}
	runs := make([]run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runs = append(runs, run{id: e.Name(), mod: newestMtime(filepath.Join(s.baseDir, "runs", e.Name()))})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].mod.After(runs[j].mod) })

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}

// SavePlan writes the validated execution plan for a workflow.
func (s *Store) SavePlan(workflowID string, p *plan.ExecutionPlan) error {
	if p == nil {
		return fmt.Errorf("save plan: plan is nil")
	}
	return s.writeJSON(filepath.Join(s.RunDir(workflowID), filePlan), p)
}

// LoadPlan reads a workflow's execution plan.
func (s *Store) LoadPlan(workflowID string) (*plan.ExecutionPlan, error) {
	var p plan.ExecutionPlan
	if err := s.readJSON(filepath.Join(s.RunDir(workflowID), filePlan), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveReview writes the final review result for a workflow.
func (s *Store) SaveReview(workflowID string, res *agent.ReviewResult) error {
	if res == nil {
		return fmt.Errorf("save review: result is nil")
	}
	return s.writeJSON(filepath.Join(s.RunDir(workflowID), fileReview), res)
}

// LoadReview reads a workflow's review result.
func (s *Store) LoadReview(workflowID string) (*agent.ReviewResult, error) {
	var res agent.ReviewResult
	if err := s.readJSON(filepath.Join(s.RunDir(workflowID), fileReview), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveStepOutput records a step result plus its full command output.
// The result (with its truncated output) goes to steps/<id>.json; the
// full output goes to steps/<id>.log, gzipped when large. Re-running a
// step overwrites the earlier record.
func (s *Store) SaveStepOutput(workflowID string, result plan.StepResult, fullOutput string) error {
	stepsDir := filepath.Join(s.RunDir(workflowID), dirSteps)
	name := fsName(result.StepID)

	if err := s.writeJSON(filepath.Join(stepsDir, name+".json"), result); err != nil {
		return err
	}
	if fullOutput == "" {
		return nil
	}

	logPath := filepath.Join(stepsDir, name+".log")
	data := []byte(fullOutput)
	if s.compressAbove > 0 && int64(len(data)) >= s.compressAbove {
		os.Remove(logPath)
		return writeCompressed(logPath+".gz", data)
	}
	os.Remove(logPath + ".gz")
	return writeFile(logPath, data)
}

// LoadStepResult reads the recorded result for a step.
func (s *Store) LoadStepResult(workflowID, stepID string) (*plan.StepResult, error) {
	var res plan.StepResult
	path := filepath.Join(s.RunDir(workflowID), dirSteps, fsName(stepID)+".json")
	if err := s.readJSON(path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StepOutput reads the full output of a step, decompressing if needed.
func (s *Store) StepOutput(workflowID, stepID string) (string, error) {
	logPath := filepath.Join(s.RunDir(workflowID), dirSteps, fsName(stepID)+".log")

	data, err := os.ReadFile(logPath)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	data, err = readCompressed(logPath + ".gz")
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("step %s output: %w", stepID, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}

// SaveDiff writes the git diff produced by a batch.
func (s *Store) SaveDiff(workflowID, batchID, diff string) error {
	path := filepath.Join(s.RunDir(workflowID), dirDiffs, fsName(batchID)+".diff")
	return writeFile(path, []byte(diff))
}

// LoadDiff reads the diff recorded for a batch.
func (s *Store) LoadDiff(workflowID, batchID string) (string, error) {
	path := filepath.Join(s.RunDir(workflowID), dirDiffs, fsName(batchID)+".diff")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("batch %s diff: %w", batchID, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}

// Delete removes every artifact of a workflow, including its archive.
func (s *Store) Delete(workflowID string) error {
	if err := os.RemoveAll(s.RunDir(workflowID)); err != nil {
		return err
	}
	archive := filepath.Join(s.baseDir, "archive", fsName(workflowID)+".tar.gz")
	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ============================================================================
// Low-level helpers
// ============================================================================

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeCompressed(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// fsName makes an identifier safe to use as a file name. Workflow IDs
// are generated internally, but step and batch IDs come from plans.
func fsName(id string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	if strings.Trim(mapped, ".") == "" {
		return "_"
	}
	return mapped
}

// newestMtime returns the most recent modification time of any file
// under dir. Falls back to the directory's own mtime.
func newestMtime(dir string) time.Time {
	var newest time.Time
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest
}
