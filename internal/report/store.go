package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store persists run reports under a base directory, one directory per run:
// <baseDir>/runs/<runID>/report.json
//
// Writes use the temp file + rename pattern, so readers never observe a
// partially written report and no locking is required.
type Store struct {
	baseDir string
}

// NewStore creates a filesystem-backed report store, creating the base
// directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

// Path returns the report path for a run ID.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.runDir(runID), "report.json")
}

// Save atomically writes the report for the given run.
func (s *Store) Save(runID string, r *Report) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}

	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tmp := s.Path(runID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, s.Path(runID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize report: %w", err)
	}

	slog.Info("Report saved", "run_id", runID, "path", s.Path(runID))
	return nil
}

// Load reads a previously saved report.
func (s *Store) Load(runID string) (*Report, error) {
	data, err := os.ReadFile(s.Path(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// RunInfo is report metadata for listings, without the full result payload.
type RunInfo struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Solvers   int       `json:"solvers"`
	Succeeded int       `json:"succeeded"`
}

// List returns metadata for every stored run, newest first. Unreadable run
// directories are skipped with a warning rather than failing the listing.
func (s *Store) List() ([]RunInfo, error) {
	runsDir := filepath.Join(s.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := make([]RunInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := s.Load(e.Name())
		if err != nil {
			slog.Warn("Skipping unreadable run", "run_id", e.Name(), "error", err)
			continue
		}
		info := RunInfo{RunID: e.Name(), Timestamp: r.Timestamp, Solvers: len(r.Results)}
		for _, res := range r.Results {
			if res.Success {
				info.Succeeded++
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}
