package file

import (
	"context"
	"testing"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition(id, name string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          id,
		Name:        name,
		EntryTaskID: "start",
		Tasks: map[string]*models.TaskDefinition{
			"start": {ID: "start", Name: "Start", Kind: models.TaskKindAction, Handler: "noop"},
		},
	}
}

func TestFilePersistence_DefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.Definitions().Save(ctx, testDefinition("d1", "orders")))

	def, err := p.Definitions().GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "orders", def.Name)
	assert.Equal(t, "start", def.EntryTaskID)
	require.Contains(t, def.Tasks, "start")
	assert.Equal(t, models.TaskKindAction, def.Tasks["start"].Kind)
}

func TestFilePersistence_LatestByName(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.Definitions().Save(ctx, testDefinition("d1", "orders")))
	require.NoError(t, p.Definitions().Save(ctx, testDefinition("d2", "orders")))

	latest, err := p.Definitions().LatestByName(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "d2", latest.ID)

	_, err = p.Definitions().LatestByName(ctx, "missing")
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestFilePersistence_List_SkipsVersionIndex(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.Definitions().Save(ctx, testDefinition("d1", "orders")))
	require.NoError(t, p.Definitions().Save(ctx, testDefinition("d2", "billing")))

	defs, err := p.Definitions().List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestFilePersistence_InstanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	instance := &models.WorkflowInstance{
		ID:           "i1",
		DefinitionID: "d1",
		Status:       models.InstanceStatusCompleted,
		Context:      map[string]any{"result": "ok"},
		Tasks: map[string]*models.TaskInstance{
			"start": {ID: "ti1", TaskID: "start", Status: models.TaskStatusCompleted, Attempt: 1},
		},
	}

	require.NoError(t, p.Instances().Save(ctx, instance))

	got, err := p.Instances().GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Context["result"])
	assert.Equal(t, 1, got.Tasks["start"].Attempt)

	_, err = p.Instances().GetByID(ctx, "missing")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestFilePersistence_EventLogReplay(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	first := events.New("i1", events.WorkflowStartedEvent)
	second := events.New("i1", events.TaskStartedEvent).WithTask("ti1")

	require.NoError(t, p.Events().Append(ctx, first))
	require.NoError(t, p.Events().Append(ctx, second))

	list, err := p.Events().ListByInstance(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "ti1", list[1].TaskInstanceID)

	empty, err := p.Events().ListByInstance(ctx, "never-ran")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFilePersistence_HealthCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(ctx))
	assert.Error(t, NewPersistence("/nonexistent/skein-data").HealthCheck(ctx))
}
