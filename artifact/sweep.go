package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Sweep applies the retention policy. Runs idle longer than the
// archive threshold are compressed into <base>/archive/<id>.tar.gz;
// runs and archives idle longer than the retention period are deleted.
// The minKeep most recent runs are never touched. Returns the number
// of runs archived or deleted.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed, err := s.sweepRuns(ctx)
	if err != nil {
		return removed, err
	}
	archives, err := s.sweepArchives(ctx)
	return removed + archives, err
}

func (s *Store) sweepRuns(ctx context.Context) (int, error) {
	runsDir := filepath.Join(s.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type run struct {
		id   string
		idle time.Time
	}
	runs := make([]run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runs = append(runs, run{id: e.Name(), idle: newestMtime(filepath.Join(runsDir, e.Name()))})
	}

	// Newest first; everything within minKeep is off limits.
	sort.Slice(runs, func(i, j int) bool { return runs[i].idle.After(runs[j].idle) })
	if len(runs) <= s.minKeep {
		return 0, nil
	}

	now := time.Now()
	removed := 0
	for _, r := range runs[s.minKeep:] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		age := now.Sub(r.idle)
		runDir := filepath.Join(runsDir, r.id)

		switch {
		case s.retention > 0 && age > s.retention:
			if err := os.RemoveAll(runDir); err != nil {
				return removed, fmt.Errorf("delete run %s: %w", r.id, err)
			}
			removed++
		case s.archiveAfter > 0 && age > s.archiveAfter:
			if err := s.archiveRun(r.id); err != nil {
				return removed, fmt.Errorf("archive run %s: %w", r.id, err)
			}
			removed++
		}
	}
	return removed, nil
}

func (s *Store) sweepArchives(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	archiveDir := filepath.Join(s.baseDir, "archive")
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > s.retention {
			if err := os.Remove(filepath.Join(archiveDir, e.Name())); err != nil {
				return removed, fmt.Errorf("delete archive %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}

// archiveRun compresses a run directory into the archive and removes
// the original.
func (s *Store) archiveRun(runID string) error {
	runDir := filepath.Join(s.baseDir, "runs", runID)
	archiveDir := filepath.Join(s.baseDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	archivePath := filepath.Join(archiveDir, runID+".tar.gz")
	if err := writeTarball(archivePath, runDir, runID); err != nil {
		os.Remove(archivePath)
		return err
	}

	return os.RemoveAll(runDir)
}

// Restore unpacks an archived run back into the runs directory.
func (s *Store) Restore(workflowID string) error {
	id := fsName(workflowID)
	archivePath := filepath.Join(s.baseDir, "archive", id+".tar.gz")
	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive for %s: %w", workflowID, ErrNotFound)
		}
		return err
	}

	if err := extractTarball(archivePath, filepath.Join(s.baseDir, "runs")); err != nil {
		return fmt.Errorf("restore %s: %w", workflowID, err)
	}
	return os.Remove(archivePath)
}

func writeTarball(archivePath, srcDir, topDir string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(topDir, rel))

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

func extractTarball(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// Reject entries that would escape the destination.
		target := filepath.Join(destDir, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
