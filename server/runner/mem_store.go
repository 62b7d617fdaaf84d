package runner

import (
	"sync"

	"github.com/marketpipe/marketpipe/logging"
)

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	mu       sync.Mutex
	runs     []RunRecord
	maxCount int
}

// NewMemoryStore creates a new in-memory store holding at most maxCount runs.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	return &MemoryStore{maxCount: maxCount}
}

// History returns all runs, most recent first, without task logs.
func (s *MemoryStore) History() []RunRecord {
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
func (s *MemoryStore) Logs(id string) map[string][]logging.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run.TaskLogs
		}
	}
	return nil
}

// Save stores a run in memory, pruning the oldest beyond the size limit.
func (s *MemoryStore) Save(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend to keep most recent first.
	s.runs = append([]RunRecord{record}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
