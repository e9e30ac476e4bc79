// Package main provides the ComfyChain API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/queue"
	"github.com/comfychain/comfychain/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Store
	queue    *queue.Queue
	uploader web.Uploader
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, store persistence.Store, q *queue.Queue, uploader web.Uploader) *API {
	return &API{
		logger:   logger,
		store:    store,
		queue:    q,
		uploader: uploader,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.queue, a.store, a.uploader, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ComfyChain API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
