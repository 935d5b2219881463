package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// Table is the part of the coordination table the admin server uses.
type Table interface {
	ReadAll(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, rows [][]string) error
}

// AttemptLister reads the attempt ledger.
type AttemptLister interface {
	RecentAttempts(ctx context.Context, itemID string, limit int) ([]types.Attempt, error)
}

// LogSource returns recently buffered log lines.
type LogSource interface {
	GetLogs() []string
}

// Deps are the collaborators behind the admin routes. Ledger and Logs may be nil.
type Deps struct {
	Role   string
	Table  Table
	Ledger AttemptLister
	Logs   LogSource
	Logger zerolog.Logger
}

// Server is the worker's admin HTTP surface.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
}

// NewServer wires the routes.
func NewServer(deps Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	logger := deps.Logger.With().Str("component", "admin").Logger()

	app.Use(recover.New())
	app.Use(fiberlog.New(fiberlog.Config{Output: logger}))

	status := &StatusHandler{role: deps.Role, ledger: deps.Ledger, logs: deps.Logs}
	items := NewItemsHandler(deps.Table, logger)

	app.Get("/health", status.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/logs", status.Logs)
	app.Get("/attempts", status.Attempts)
	app.Get("/items", items.List)
	app.Post("/items", items.Add)

	return &Server{app: app, logger: logger}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Admin server starting")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}
