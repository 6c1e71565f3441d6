// Package api exposes the analysis engine over HTTP. The transport is a
// thin shell: validation, status mapping and a couple of middleware; all
// behavior lives in the bundle service.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/config"
	"github.com/sizepanic/sizepanic/internal/observability"
)

// Server represents the HTTP server
type Server struct {
	app     *fiber.App
	config  *config.Config
	service *bundle.Service
}

// NewServer creates the HTTP server around a bundle service.
func NewServer(cfg *config.Config, service *bundle.Service, metrics *observability.Metrics) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "sizepanic",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	server := &Server{
		app:     app,
		config:  cfg,
		service: service,
	}

	handler := NewBundleHandler(service, cfg.Bundle.BatchLimit)

	app.Get("/health", server.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Post("/api/v1/analyze", handler.HandleAnalyze)
	app.Post("/api/v1/analyze/batch", handler.HandleAnalyzeBatch)

	return server
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("HTTP server listening")
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
