// Package web serves the pupper HTTP API: health, tool catalogue,
// commands over HTTP and WebSocket, the live event stream and metrics.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/observability"
	"github.com/teslashibe/go-pupper/pkg/assistant"
	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/inference"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

// Assistant handles commands. *assistant.Session implements it.
type Assistant interface {
	Handle(ctx context.Context, text string) (string, error)
	State() assistant.State
	Conversation() []inference.Message
}

// Catalog lists the discovered tools. *tools.Dispatcher implements it.
type Catalog interface {
	Catalog() ([]tools.Tool, error)
}

// Config configures the server.
type Config struct {
	Addr      string
	Assistant Assistant
	Tools     Catalog

	// Events backs /ws/events. Optional; the caller runs it.
	Events *hub.Hub

	// Metrics backs /metrics. Optional.
	Metrics *observability.Metrics

	Logger *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	// ctx bounds commands that arrive over the command socket.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("web")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}

	app := fiber.New(fiber.Config{
		AppName:               "pupper",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tools", s.handleListTools)
	api.Post("/command", s.handleCommand)
	api.Get("/conversation", s.handleConversation)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/command", websocket.New(s.handleCommandWS))
	if cfg.Events != nil {
		app.Get("/ws/events", websocket.New(cfg.Events.Serve))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address.
func (s *Server) Listen() error {
	s.logger.Info("http api listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http api listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}
