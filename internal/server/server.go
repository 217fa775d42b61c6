package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/savanna-pay/savanna_pay/internal/config"
	"github.com/savanna-pay/savanna_pay/internal/reconcile"
	"github.com/savanna-pay/savanna_pay/internal/routes"
)

// Server wraps the Fiber application, shared dependencies and the
// reconciliation worker.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	reconciler *reconcile.Worker
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	worker, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, reconciler: worker}, nil
}

// Listen starts the reconciliation schedule and the HTTP server.
func (s *Server) Listen() error {
	if err := s.reconciler.Start(); err != nil {
		return err
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the HTTP server, then waits for an in-flight reconciliation
// run to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.reconciler.Stop()
	return err
}
