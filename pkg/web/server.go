// Package web serves the control API and live log stream.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/session"
	"github.com/teslashibe/go-jarvis/pkg/store"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
)

// Controller starts and stops listening; satisfied by *session.Controller.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	State() session.State
	SessionID() string
}

// AskFunc answers a one-off question.
type AskFunc func(ctx context.Context, question string) string

// MessageSource reads stored conversation lines; satisfied by *store.SQLite.
type MessageSource interface {
	RecentMessages(ctx context.Context, n int) ([]store.Message, error)
}

// LatestSource reports the last lab reading; satisfied by *telemetry.Poller.
type LatestSource interface {
	Latest() (telemetry.Reading, bool)
}

// Server is the control API.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	ctrl     Controller
	ask      AskFunc
	logs     *hub.Hub
	messages MessageSource
	conv     *conversation.Context
	lab      LatestSource

	// runCtx parents listening sessions started over HTTP, so they end
	// with the server rather than with the request.
	runCtx     context.Context
	requestLog bool
}

// Option configures a Server.
type Option func(*Server)

// WithAsk enables POST /api/ask.
func WithAsk(f AskFunc) Option {
	return func(s *Server) { s.ask = f }
}

// WithMessages serves /api/conversation from persistent history.
func WithMessages(m MessageSource) Option {
	return func(s *Server) { s.messages = m }
}

// WithConversation serves /api/conversation from the in-memory history
// when no persistent history is configured.
func WithConversation(c *conversation.Context) Option {
	return func(s *Server) { s.conv = c }
}

// WithTelemetry enables GET /api/telemetry.
func WithTelemetry(l LatestSource) Option {
	return func(s *Server) { s.lab = l }
}

// WithRequestLog enables fiber's per-request access log.
func WithRequestLog(on bool) Option {
	return func(s *Server) { s.requestLog = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the API. logs may be nil to disable /api/logs and /ws/logs.
func NewServer(addr string, ctrl Controller, logs *hub.Hub, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		ctrl:   ctrl,
		logs:   logs,
		logger: slog.Default(),
		runCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")

	app := fiber.New(fiber.Config{
		AppName:               "jarvis",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if s.requestLog {
		app.Use(fiberlog.New())
	}

	api := app.Group("/api")
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Post("/ask", s.handleAsk)
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Get("/logs", s.handleLogs)
	api.Get("/telemetry", s.handleTelemetry)

	// Control endpoints are also served unprefixed for existing callers.
	app.Post("/start", s.handleStart)
	app.Post("/stop", s.handleStop)
	app.Post("/ask", s.handleAsk)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down gracefully. Sessions
// started through /api/start are bound to ctx.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("shutdown error", "error", err)
	}
	return nil
}
