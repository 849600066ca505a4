// Package main provides the flowrun API server.
package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	workflows  *services.Workflow
	executions *services.Execution
	registry   *registry.Registry
	metrics    http.Handler
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	workflows *services.Workflow,
	executions *services.Execution,
	registry *registry.Registry,
	metrics http.Handler,
) *API {
	return &API{
		logger:     logger,
		workflows:  workflows,
		executions: executions,
		registry:   registry,
		metrics:    metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflows, a.executions, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowrun API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics))
	}

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Listening", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}
