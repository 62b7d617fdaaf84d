package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/marketpipe/marketpipe/logging"
)

// DiskStore persists run history to disk as one JSON file per run.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu   sync.Mutex
	runs []RunRecord
}

// NewDiskStore creates a disk-backed store. The directory is created if it
// doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger.With("component", "run_store"),
		maxCount: maxCount,
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	runs, err := s.load()
	if err != nil {
		s.logger.Warn("failed to load existing runs", "error", err)
		// Continue without existing data.
	} else {
		s.runs = runs
	}

	return s, nil
}

// History returns all runs, most recent first, without task logs.
func (s *DiskStore) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunRecord, len(s.runs))
	for i, run := range s.runs {
		run.TaskLogs = nil
		result[i] = run
	}
	return result
}

// Logs returns the captured task logs for a specific run.
func (s *DiskStore) Logs(id string) map[string][]logging.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run.TaskLogs
		}
	}
	return nil
}

// Save persists a run to disk and updates the in-memory copy.
func (s *DiskStore) Save(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Timestamped filenames keep the directory listing chronological.
	filename := record.StartedAt.Format("2006-01-02T15-04-05") + "_" + record.ID + ".json"
	path := filepath.Join(s.dir, filename)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	// Prepend to keep most recent first.
	s.runs = append([]RunRecord{record}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-reads all runs from disk.
func (s *DiskStore) Reload() error {
	runs, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	return nil
}

// load reads every run file in the history directory.
func (s *DiskStore) load() ([]RunRecord, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var runs []RunRecord
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		runs = append(runs, run)
	}

	// Most recent first.
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return runs, nil
}
