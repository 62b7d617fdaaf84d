package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_StateTransitions(t *testing.T) {
	task := NewTask("t", succeed("done", nil, ""))
	assert.Equal(t, StatusPending, task.Status())

	task.run(context.Background(), Inputs{})
	assert.Equal(t, StatusSucceeded, task.Status())
	assert.Equal(t, "done", task.Result())
	assert.NoError(t, task.Err())
}

func TestTask_RunCapturesError(t *testing.T) {
	opErr := errors.New("disk full")
	task := NewTask("t", fail(opErr))

	task.run(context.Background(), Inputs{})

	assert.Equal(t, StatusFailed, task.Status())
	assert.ErrorIs(t, task.Err(), opErr)
	assert.Nil(t, task.Result())
}

func TestTask_SkipNeverRuns(t *testing.T) {
	invoked := false
	task := NewTask("t", func(ctx context.Context, in Inputs) (any, error) {
		invoked = true
		return nil, nil
	}, "upstream")

	task.skip("upstream")

	assert.False(t, invoked)
	assert.Equal(t, StatusFailed, task.Status())

	var skip *SkipError
	require.ErrorAs(t, task.Err(), &skip)
	assert.Equal(t, "upstream", skip.Dependency)
}

func TestTask_AddDependencyDeduplicates(t *testing.T) {
	task := NewTask("t", succeed(nil, nil, ""), "a", "a", "b")
	task.AddDependency("b")
	task.AddDependency("c")

	assert.Equal(t, []string{"a", "b", "c"}, task.Dependencies())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
}

func TestStatus_JSONRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusRunning, StatusSucceeded, StatusFailed} {
		data, err := json.Marshal(status)
		require.NoError(t, err)

		var back Status
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, status, back)
	}
}

func TestStatus_UnmarshalUnknown(t *testing.T) {
	var s Status
	require.Error(t, s.UnmarshalJSON([]byte(`"done"`)))
	require.Error(t, s.UnmarshalJSON([]byte(`3`)))
}
