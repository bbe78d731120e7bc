package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/executor"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence/memory"
	"github.com/skein-dev/skein/pkg/registry"
)

func newScheduler(t *testing.T) (*Scheduler, *memory.Persistence) {
	t.Helper()

	logger := slog.Default()
	store := memory.NewPersistence()
	retry := executor.NewRetryCoordinator(logger, executor.NewExecutor(logger, registry.NewRegistry(logger)))
	eng := engine.NewEngine(logger, store, retry)

	return NewScheduler(logger, store.Definitions(), eng), store
}

func scheduledDefinition(cronExpr string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          uuid.NewString(),
		Name:        "nightly-report",
		EntryTaskID: "report",
		Active:      true,
		Triggers: []models.TriggerDescriptor{
			{ID: "nightly", Type: models.TriggerTypeScheduled, Configuration: map[string]any{"cron": cronExpr}},
		},
		Tasks: map[string]*models.TaskDefinition{
			"report": {ID: "report", Name: "report", Kind: models.TaskKindAction, Handler: "report"},
		},
	}
}

func TestStartSchedulesActiveDefinitions(t *testing.T) {
	scheduler, store := newScheduler(t)
	ctx := context.Background()

	require.NoError(t, store.Definitions().Save(ctx, scheduledDefinition("0 2 * * *")))

	inactive := scheduledDefinition("0 3 * * *")
	inactive.Active = false
	require.NoError(t, store.Definitions().Save(ctx, inactive))

	manualOnly := scheduledDefinition("")
	manualOnly.Triggers = []models.TriggerDescriptor{{ID: "m", Type: models.TriggerTypeManual}}
	require.NoError(t, store.Definitions().Save(ctx, manualOnly))

	require.NoError(t, scheduler.Start(ctx))
	defer func() { require.NoError(t, scheduler.Stop(ctx)) }()

	assert.Equal(t, 1, scheduler.EntryCount())
}

func TestScheduleRejectsBadCron(t *testing.T) {
	scheduler, _ := newScheduler(t)

	err := scheduler.Schedule(scheduledDefinition("every day at noon"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nightly")

	err = scheduler.Schedule(scheduledDefinition(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cron expression")
}

func TestUnschedule(t *testing.T) {
	scheduler, _ := newScheduler(t)

	def := scheduledDefinition("*/5 * * * *")
	require.NoError(t, scheduler.Schedule(def))
	assert.Equal(t, 1, scheduler.EntryCount())

	scheduler.Unschedule(def.ID)
	assert.Equal(t, 0, scheduler.EntryCount())
}

func TestFireStartsInstance(t *testing.T) {
	scheduler, store := newScheduler(t)
	ctx := context.Background()

	def := scheduledDefinition("0 2 * * *")
	require.NoError(t, store.Definitions().Save(ctx, def))

	scheduler.fire(def.ID, "nightly")

	require.Eventually(t, func() bool {
		instances, err := store.Instances().List(ctx)
		if err != nil || len(instances) != 1 {
			return false
		}

		return instances[0].Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	instances, err := store.Instances().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeScheduled, instances[0].TriggerType)
	assert.Equal(t, "nightly", instances[0].TriggeredBy)
	assert.Equal(t, models.InstanceStatusCompleted, instances[0].Status)
}
