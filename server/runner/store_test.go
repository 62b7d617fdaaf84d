package runner

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/pipeline"
	"github.com/marketpipe/marketpipe/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(id string, startedAt time.Time) RunRecord {
	return RunRecord{
		ID:        id,
		StartedAt: startedAt,
		EndedAt:   startedAt.Add(5 * time.Second),
		Summary: &pipeline.RunSummary{
			RunID:   id,
			Sources: []string{"csv"},
			Tasks: []pipeline.TaskReport{
				{Name: "extract_csv", Status: scheduler.StatusSucceeded},
				{Name: "transform_csv_data", Status: scheduler.StatusSucceeded},
			},
			Succeeded: 6,
			Success:   true,
		},
		TaskLogs: map[string][]logging.LogEntry{
			"extract_csv": {{Time: startedAt, Level: "INFO", Message: "extraction complete"}},
		},
	}
}

func TestMemoryStoreSaveAndHistory(t *testing.T) {
	store := NewMemoryStore(10)
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(testRecord("run-1", base)))
	require.NoError(t, store.Save(testRecord("run-2", base.Add(time.Hour))))

	history := store.History()
	require.Len(t, history, 2)
	// Most recent first, logs stripped.
	assert.Equal(t, "run-2", history[0].ID)
	assert.Equal(t, "run-1", history[1].ID)
	assert.Nil(t, history[0].TaskLogs)

	logs := store.Logs("run-1")
	require.Contains(t, logs, "extract_csv")
	assert.Equal(t, "extraction complete", logs["extract_csv"][0].Message)
	assert.Nil(t, store.Logs("missing"))
}

func TestMemoryStorePrunesOldest(t *testing.T) {
	store := NewMemoryStore(2)
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.Save(testRecord(id, base.Add(time.Duration(i)*time.Hour))))
	}

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "run-3", history[0].ID)
	assert.Equal(t, "run-2", history[1].ID)
	assert.Nil(t, store.Logs("run-1"))
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(testRecord("run-1", base)))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".json", filepath.Ext(files[0].Name()))

	// A fresh store loads the persisted history.
	reloaded, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)

	history := reloaded.History()
	require.Len(t, history, 1)
	assert.Equal(t, "run-1", history[0].ID)
	require.NotNil(t, history[0].Summary)
	assert.True(t, history[0].Summary.Success)

	// Task reports survive the restart, status included.
	require.Len(t, history[0].Summary.Tasks, 2)
	assert.Equal(t, "extract_csv", history[0].Summary.Tasks[0].Name)
	assert.Equal(t, scheduler.StatusSucceeded, history[0].Summary.Tasks[0].Status)

	logs := reloaded.Logs("run-1")
	require.Contains(t, logs, "extract_csv")
}

func TestDiskStoreOrdersMostRecentFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(testRecord("run-1", base)))
	require.NoError(t, store.Save(testRecord("run-2", base.Add(time.Hour))))

	require.NoError(t, store.Reload())
	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "run-2", history[0].ID)
}

func TestDiskStoreSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0644))

	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)
	assert.Empty(t, store.History())
}

func TestDiskStoreEnforcesMaxCount(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 2, testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.Save(testRecord(id, base.Add(time.Duration(i)*time.Hour))))
	}

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "run-3", history[0].ID)

	// Files remain on disk; only the in-memory view is bounded.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}
