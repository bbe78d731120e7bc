// Package web exposes the REST API for workflow definitions, instances and
// statistics.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/skein-dev/skein/pkg/analytics"
	"github.com/skein-dev/skein/pkg/definitions"
	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

type APIHandlers struct {
	store       *definitions.Store
	engine      *engine.Engine
	analytics   *analytics.Service
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	store *definitions.Store,
	eng *engine.Engine,
	stats *analytics.Service,
	persist persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:       store,
		engine:      eng,
		analytics:   stats,
		persistence: persist,
		validator:   validate,
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	defs := app.Group("/definitions")
	defs.Post("/", h.CreateDefinition)
	defs.Get("/", h.ListDefinitions)
	defs.Get("/latest/:name", h.GetLatestDefinition)
	defs.Get("/:id", h.GetDefinition)
	defs.Post("/:id/start", h.StartInstance)

	instances := app.Group("/instances")
	instances.Get("/:id", h.GetInstance)
	instances.Get("/:id/events", h.ListInstanceEvents)
	instances.Post("/:id/cancel", h.CancelInstance)

	stats := app.Group("/stats")
	stats.Get("/instances", h.InstanceStats)
	stats.Get("/tasks", h.TaskStats)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	detail := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		detail = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  fiber.Map{"persistence": detail},
		"timestamp": time.Now().UTC(),
	})
}

// CreateDefinition ingests a raw workflow document and registers it as a new
// version of its name.
func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	def, err := h.store.IngestDocument(c.Context(), c.Body())
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	defs, err := h.store.List(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": defs,
		"total_count": len(defs),
	})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	def, err := h.store.Get(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetLatestDefinition(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Definition name is required")
	}

	def, err := h.store.Latest(c.Context(), name)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(def)
}

// StartInstance begins an asynchronous run and replies 202 with the created
// instance; callers poll GET /instances/:id or subscribe on the event bus.
func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	var req StartInstanceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = c.IP()
	}

	instance, err := h.engine.Start(c.Context(), engine.StartRequest{
		DefinitionID: id,
		Input:        req.Input,
		TriggeredBy:  triggeredBy,
		TriggerType:  models.TriggerTypeAPI,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ListInstanceEvents(c fiber.Ctx) error {
	id := c.Params("id")

	// Distinguish an unknown instance from one with no events yet.
	if _, err := h.engine.GetInstance(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	log, err := h.engine.ListEvents(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"events":      log,
		"total_count": len(log),
	})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Cancel(c.Context(), id); err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "workflow instance not found")
		}

		return conflict(c, err.Error())
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) InstanceStats(c fiber.Ctx) error {
	stats, err := h.analytics.InstanceStats(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) TaskStats(c fiber.Ctx) error {
	stats, err := h.analytics.TaskStats(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}
