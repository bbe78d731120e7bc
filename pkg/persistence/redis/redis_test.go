package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

func setupRedis(t *testing.T) *Persistence {
	t.Helper()

	if os.Getenv("SKEIN_INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set SKEIN_INTEGRATION_TESTS=1 to run.")
	}

	redisURL := os.Getenv("SKEIN_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	require.NoError(t, client.FlushDB(context.Background()).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return NewPersistenceWithClient(client)
}

func TestRedisIntegration_DefinitionVersions(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	first := &models.WorkflowDefinition{
		ID:          uuid.NewString(),
		Name:        "order-flow",
		Version:     "1",
		EntryTaskID: "start",
		Tasks: map[string]*models.TaskDefinition{
			"start": {ID: "start", Kind: models.TaskKindAction, Handler: "log"},
		},
	}
	second := &models.WorkflowDefinition{
		ID:          uuid.NewString(),
		Name:        "order-flow",
		Version:     "2",
		EntryTaskID: "start",
		Tasks: map[string]*models.TaskDefinition{
			"start": {ID: "start", Kind: models.TaskKindAction, Handler: "log"},
		},
	}

	require.NoError(t, store.Definitions().Save(ctx, first))
	require.NoError(t, store.Definitions().Save(ctx, second))

	latest, err := store.Definitions().LatestByName(ctx, "order-flow")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "2", latest.Version)

	all, err := store.Definitions().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.Definitions().GetByID(ctx, "missing")
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestRedisIntegration_InstanceUpsert(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	instance := &models.WorkflowInstance{
		ID:           uuid.NewString(),
		DefinitionID: uuid.NewString(),
		Status:       models.InstanceStatusRunning,
	}
	require.NoError(t, store.Instances().Save(ctx, instance))

	instance.Status = models.InstanceStatusCompleted
	require.NoError(t, store.Instances().Save(ctx, instance))

	got, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, got.Status)

	_, err = store.Instances().GetByID(ctx, "missing")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestRedisIntegration_EventOrdering(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	instanceID := uuid.NewString()
	types := []events.EventType{
		events.WorkflowStartedEvent,
		events.TaskStartedEvent,
		events.TaskCompletedEvent,
		events.WorkflowCompletedEvent,
	}

	for _, eventType := range types {
		require.NoError(t, store.Events().Append(ctx, events.New(instanceID, eventType)))
	}

	log, err := store.Events().ListByInstance(ctx, instanceID)
	require.NoError(t, err)
	require.Len(t, log, len(types))

	for i, event := range log {
		assert.Equal(t, types[i], event.Type)
	}

	other, err := store.Events().ListByInstance(ctx, "no-events")
	require.NoError(t, err)
	assert.Empty(t, other)
}
