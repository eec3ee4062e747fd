// Package http exposes the KPI delta engine over a small JSON API.
package http

import (
	"context"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"

	"brandpulse/internal/config"
	"brandpulse/internal/engine"
)

// Server wraps the fiber app serving the API.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	engine *engine.Engine
	logger *slog.Logger
}

func NewServer(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
	})

	s := &Server{app: app, cfg: cfg, engine: eng, logger: logger}
	s.mountRoutes()
	return s
}

func (s *Server) mountRoutes() {
	s.app.Get("/health", s.healthHandler)

	api := s.app.Group("/api/v1")
	api.Get("/metrics", s.metricNamesHandler)
	api.Get("/tenants", s.tenantsHandler)

	tenant := api.Group("/tenants/:tenant")
	tenant.Get("/delta", s.deltaHandler)
	tenant.Get("/deltas", s.deltasHandler)
	tenant.Get("/daily/:date", s.dailyHandler)
	tenant.Post("/daily/batch", s.dailyBatchHandler)
}

// Listen blocks serving requests until Shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(":" + s.cfg.GetPort())
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
