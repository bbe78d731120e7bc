package definitions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/models"
)

const orderDocument = `{
	"name": "order-routing",
	"entry_task_id": "inspect",
	"active": true,
	"triggers": [
		{"id": "nightly", "type": "scheduled", "configuration": {"cron": "0 2 * * *"}}
	],
	"tasks": {
		"inspect": {
			"name": "Inspect order",
			"kind": "decision",
			"conditions": [
				{"when": "amount > 1000", "target": "review"},
				{"when": "amount <= 1000", "target": "approve"}
			]
		},
		"review": {
			"name": "Manual review",
			"kind": "action",
			"handler": "log",
			"timeout": "30s",
			"retry": {
				"max_attempts": 5,
				"initial_delay_ms": 100,
				"max_delay_ms": 2000,
				"backoff_multiplier": 2.0
			}
		},
		"approve": {
			"name": "Auto approve",
			"kind": "action",
			"handler": "log"
		}
	}
}`

func TestIngestDocument(t *testing.T) {
	store := newTestStore(t)

	def, err := store.IngestDocument(context.Background(), []byte(orderDocument))
	require.NoError(t, err)

	assert.Equal(t, "order-routing", def.Name)
	assert.Equal(t, "inspect", def.EntryTaskID)
	assert.Equal(t, "1", def.Version)
	require.Len(t, def.Triggers, 1)
	assert.Equal(t, models.TriggerTypeScheduled, def.Triggers[0].Type)

	inspect := def.Task("inspect")
	require.NotNil(t, inspect)
	require.Len(t, inspect.Conditions, 2)
	assert.Equal(t, "amount", inspect.Conditions[0].When.Field)
	assert.Equal(t, models.OperatorGt, inspect.Conditions[0].When.Operator)
	assert.Equal(t, float64(1000), inspect.Conditions[0].When.Value)
	assert.Equal(t, "review", inspect.Conditions[0].Target)

	review := def.Task("review")
	require.NotNil(t, review)
	assert.Equal(t, 30*time.Second, review.Timeout)
	require.NotNil(t, review.Retry)
	assert.Equal(t, 5, review.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, review.Retry.InitialDelay)
}

func TestIngestDocumentRejectsSchemaViolations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", `{"entry_task_id": "a", "tasks": {"a": {"name": "A", "kind": "action", "handler": "log"}}}`},
		{"empty tasks", `{"name": "empty", "entry_task_id": "a", "tasks": {}}`},
		{"unknown kind", `{"name": "bad-kind", "entry_task_id": "a", "tasks": {"a": {"name": "A", "kind": "magic"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.IngestDocument(ctx, []byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDefinition))
		})
	}
}

func TestIngestDocumentRejectsBadConditionText(t *testing.T) {
	store := newTestStore(t)

	doc := `{
		"name": "bad-condition",
		"entry_task_id": "decide",
		"tasks": {
			"decide": {
				"name": "Decide",
				"kind": "decision",
				"conditions": [{"when": "amount ~~ 10", "target": "decide"}]
			}
		}
	}`

	_, err := store.IngestDocument(context.Background(), []byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestIngestDocumentRejectsBadTimeout(t *testing.T) {
	store := newTestStore(t)

	doc := `{
		"name": "bad-timeout",
		"entry_task_id": "a",
		"tasks": {
			"a": {"name": "A", "kind": "action", "handler": "log", "timeout": "soon"}
		}
	}`

	_, err := store.IngestDocument(context.Background(), []byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}
