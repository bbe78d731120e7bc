// Package main provides the Skein API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/skein-dev/skein/pkg/analytics"
	"github.com/skein-dev/skein/pkg/definitions"
	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/eventbus"
	"github.com/skein-dev/skein/pkg/executor"
	"github.com/skein-dev/skein/pkg/persistence"
	"github.com/skein-dev/skein/pkg/registry"
	"github.com/skein-dev/skein/pkg/scheduler"
	"github.com/skein-dev/skein/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *engine.Engine
	scheduler   *scheduler.Scheduler
	validate    *validator.Validate
	app         *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	opts ...engine.Option,
) *API {
	coordinator := executor.NewRetryCoordinator(logger, executor.NewExecutor(logger, reg))

	if eventBus != nil {
		opts = append(opts, engine.WithEventBus(eventBus))
	}

	eng := engine.NewEngine(logger, persist, coordinator, opts...)

	return &API{
		logger:      logger,
		persistence: persist,
		registry:    reg,
		engine:      eng,
		scheduler:   scheduler.NewScheduler(logger, persist.Definitions(), eng),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	store := definitions.NewStore(a.logger, a.persistence.Definitions(), a.registry)
	stats := analytics.NewService(a.persistence.Instances())

	handlers := web.NewAPIHandlers(store, a.engine, stats, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Skein API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	a.app = a.App()

	return a.app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) error {
	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
	}

	if a.app == nil {
		return nil
	}

	return a.app.ShutdownWithContext(ctx)
}
