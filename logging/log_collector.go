package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"` // "debug", "info", "warn", "error"
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"` // Structured fields
}

// LogCollector provides thread-safe storage of log entries keyed by
// pipeline task name, so a run summary can report per-task logs.
type LogCollector struct {
	mu   sync.RWMutex
	logs map[string][]LogEntry // task name -> log entries
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[string][]LogEntry),
	}
}

// AddLog adds a log entry for the specified task (thread-safe).
func (c *LogCollector) AddLog(task string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs[task] = append(c.logs[task], entry)
}

// GetLogs retrieves all log entries for a specific task (thread-safe).
func (c *LogCollector) GetLogs(task string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[task]
	if !exists {
		return nil
	}

	// Return a copy to prevent external modification
	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// GetAllLogs returns all logs grouped by task name (thread-safe).
// Returns a deep copy of the internal map to prevent external modification.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for task, logs := range c.logs {
		logsCopy := make([]LogEntry, len(logs))
		copy(logsCopy, logs)
		result[task] = logsCopy
	}

	return result
}

// Clear resets the log collector, removing all stored logs (thread-safe).
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
}
