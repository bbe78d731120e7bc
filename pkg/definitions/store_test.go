package definitions

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence/memory"
	"github.com/skein-dev/skein/pkg/registry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.Default()

	return NewStore(logger, memory.NewPersistence().Definitions(), registry.NewRegistry(logger))
}

func linearDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:        "payment-flow",
		EntryTaskID: "validate",
		Active:      true,
		Tasks: map[string]*models.TaskDefinition{
			"validate": {
				ID:        "validate",
				Name:      "Validate order",
				Kind:      models.TaskKindAction,
				Handler:   "transform",
				NextTasks: []string{"charge"},
			},
			"charge": {
				ID:      "charge",
				Name:    "Charge card",
				Kind:    models.TaskKindAction,
				Handler: "http_request",
			},
		},
	}
}

func TestStoreRegisterAssignsIdentityAndVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Register(ctx, linearDefinition())
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "1", first.Version)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := store.Register(ctx, linearDefinition())
	require.NoError(t, err)
	assert.Equal(t, "2", second.Version)
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := store.Latest(ctx, "payment-flow")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreRegisterRejectsBrokenGraphs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(def *models.WorkflowDefinition)
		problem string
	}{
		{
			name:    "missing entry task",
			mutate:  func(def *models.WorkflowDefinition) { def.EntryTaskID = "nope" },
			problem: "entry task",
		},
		{
			name: "dangling reference",
			mutate: func(def *models.WorkflowDefinition) {
				def.Tasks["charge"].NextTasks = []string{"ghost"}
			},
			problem: "unknown task",
		},
		{
			name: "cycle",
			mutate: func(def *models.WorkflowDefinition) {
				def.Tasks["charge"].NextTasks = []string{"validate"}
			},
			problem: "cycle",
		},
		{
			name: "action without handler",
			mutate: func(def *models.WorkflowDefinition) {
				def.Tasks["charge"].Handler = ""
			},
			problem: "no handler",
		},
		{
			name: "decision without branches",
			mutate: func(def *models.WorkflowDefinition) {
				def.Tasks["charge"].Kind = models.TaskKindDecision
			},
			problem: "no condition branches",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := linearDefinition()
			tt.mutate(def)

			_, err := store.Register(ctx, def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDefinition))
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestStoreRegisterCollectsAllProblems(t *testing.T) {
	store := newTestStore(t)

	def := linearDefinition()
	def.EntryTaskID = "nope"
	def.Tasks["charge"].Handler = ""

	_, err := store.Register(context.Background(), def)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.GreaterOrEqual(t, len(vErr.Problems), 2)
}

func TestStoreRegisterRejectsBadRetryPolicy(t *testing.T) {
	store := newTestStore(t)

	def := linearDefinition()
	def.Tasks["charge"].Retry = &models.RetryPolicy{MaxAttempts: 0, BackoffMultiplier: 0.5}

	_, err := store.Register(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "backoff_multiplier")
}
