package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	event := New("inst-1", TaskStartedEvent)

	require.NotEmpty(t, event.ID)
	assert.Equal(t, "inst-1", event.InstanceID)
	assert.Equal(t, TaskStartedEvent, event.Type)
	assert.Equal(t, TaskStartedEvent, event.GetType())
	assert.False(t, event.Timestamp.IsZero())
	assert.Empty(t, event.TaskInstanceID)
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New("inst-1", WorkflowStartedEvent)
	b := New("inst-1", WorkflowStartedEvent)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestWithTaskAndData(t *testing.T) {
	event := New("inst-1", TaskFailedEvent).
		WithTask("ti-9").
		WithData(map[string]any{"error": "boom", "attempt": 3})

	assert.Equal(t, "ti-9", event.TaskInstanceID)
	assert.Equal(t, "boom", event.Data["error"])
	assert.Equal(t, 3, event.Data["attempt"])
}
