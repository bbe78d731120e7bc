package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/analytics"
	"github.com/skein-dev/skein/pkg/definitions"
	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/executor"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence/memory"
	"github.com/skein-dev/skein/pkg/registry"
	"github.com/skein-dev/skein/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	logger := slog.Default()
	store := memory.NewPersistence()
	reg := registry.NewRegistry(logger)
	defStore := definitions.NewStore(logger, store.Definitions(), reg)
	retry := executor.NewRetryCoordinator(logger, executor.NewExecutor(logger, reg))
	eng := engine.NewEngine(logger, store, retry)
	stats := analytics.NewService(store.Instances())

	handlers := web.NewAPIHandlers(defStore, eng, stats, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return app, eng
}

const testDocument = `{
	"name": "order-flow",
	"entry_task_id": "start",
	"active": true,
	"tasks": {
		"start": {"name": "Start", "kind": "action", "handler": "log"}
	}
}`

func postDefinition(t *testing.T, app *fiber.App) models.WorkflowDefinition {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/definitions/", bytes.NewReader([]byte(testDocument)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var def models.WorkflowDefinition
	decode(t, resp, &def)

	return def
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestCreateAndFetchDefinition(t *testing.T) {
	app, _ := setupTestApp(t)

	def := postDefinition(t, app)
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "order-flow", def.Name)
	assert.Equal(t, "1", def.Version)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/definitions/"+def.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/definitions/latest/order-flow", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var latest models.WorkflowDefinition
	decode(t, resp, &latest)
	assert.Equal(t, def.ID, latest.ID)
}

func TestCreateDefinitionRejectsInvalidDocument(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/definitions/", bytes.NewReader([]byte(`{"name": "x"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem map[string]any
	decode(t, resp, &problem)
	assert.Equal(t, "validation_error", problem["type"])
}

func TestListDefinitions(t *testing.T) {
	app, _ := setupTestApp(t)

	postDefinition(t, app)
	postDefinition(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/definitions/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		TotalCount int `json:"total_count"`
	}
	decode(t, resp, &result)
	assert.Equal(t, 2, result.TotalCount)
}

func TestGetDefinitionNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/definitions/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartInstanceAndPoll(t *testing.T) {
	app, eng := setupTestApp(t)
	def := postDefinition(t, app)

	body := []byte(`{"input": {"amount": 5}, "triggered_by": "tester"}`)
	req := httptest.NewRequest(http.MethodPost, "/definitions/"+def.ID+"/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var instance models.WorkflowInstance
	decode(t, resp, &instance)
	assert.Equal(t, models.TriggerTypeAPI, instance.TriggerType)
	assert.Equal(t, "tester", instance.TriggeredBy)

	require.Eventually(t, func() bool {
		current, err := eng.GetInstance(context.Background(), instance.ID)

		return err == nil && current.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+instance.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var polled models.WorkflowInstance
	decode(t, resp, &polled)
	assert.Equal(t, models.InstanceStatusCompleted, polled.Status)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+instance.ID+"/events", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var events struct {
		TotalCount int `json:"total_count"`
	}
	decode(t, resp, &events)
	assert.Equal(t, 4, events.TotalCount)
}

func TestStartInstanceUnknownDefinition(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/definitions/missing/start", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelFinishedInstanceConflicts(t *testing.T) {
	app, eng := setupTestApp(t)
	def := postDefinition(t, app)

	instance, err := eng.Run(context.Background(), engine.StartRequest{
		DefinitionID: def.ID,
		TriggerType:  models.TriggerTypeManual,
	})
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/instances/"+instance.ID+"/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelUnknownInstance(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/instances/missing/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	app, eng := setupTestApp(t)
	def := postDefinition(t, app)

	_, err := eng.Run(context.Background(), engine.StartRequest{
		DefinitionID: def.ID,
		TriggerType:  models.TriggerTypeManual,
	})
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stats/instances", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats analytics.InstanceStats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.InDelta(t, 1.0, stats.SuccessRate, 0.001)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/stats/tasks", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var taskStats []analytics.TaskStats
	decode(t, resp, &taskStats)
	require.Len(t, taskStats, 1)
	assert.Equal(t, "start", taskStats[0].TaskID)
	assert.Equal(t, 1, taskStats[0].Successes)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
