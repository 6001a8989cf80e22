// Package server exposes Kai over HTTP: the browser UI, the websocket
// event channel, generated audio, the Telegram webhook and a few
// operational endpoints.
package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/hub"
	"github.com/teslashibe/go-kai/pkg/kai"
	"github.com/teslashibe/go-kai/pkg/session"
)

// Config wires a Server.
type Config struct {
	Hub      *hub.Hub
	Kai      *kai.Orchestrator
	Counters *diag.Counters

	StaticDir string // index.html and /static assets
	AudioDir  string // served at /static/audio
	Version   string

	// AccessLog receives one line per request. Nil disables it.
	AccessLog io.Writer
	Logger    *slog.Logger
}

// Server is the Kai HTTP server.
type Server struct {
	app     *fiber.App
	cfg     Config
	logger  *slog.Logger
	started time.Time

	// ctx is cancelled on Shutdown and bounds every connection's work.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Counters == nil {
		cfg.Counters = diag.New()
	}
	if err := cfg.Counters.Gauge("kai_sessions", "Connected browser sessions.", func() float64 {
		return float64(cfg.Kai.Sessions().Len())
	}); err != nil {
		logger.Warn("sessions gauge not registered", "error", err)
	}
	if err := cfg.Counters.Gauge("kai_ws_clients", "Open websocket connections.", func() float64 {
		return float64(cfg.Hub.ClientCount())
	}); err != nil {
		logger.Warn("clients gauge not registered", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kai",
		DisableStartupMessage: true,
		BodyLimit:             4 * 1024 * 1024,
	})

	app.Use(fiberrecover.New())
	if cfg.AccessLog != nil {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Output: cfg.AccessLog,
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	app.Use(cors.New())

	// Telegram webhook
	app.Post("/telegram", s.handleTelegram)

	// Operational endpoints
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Counters.Handler()))
	api := app.Group("/api")
	api.Get("/sessions", s.handleSessions)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 16 * 1024,
	}))

	// Generated audio before the general static mount
	if cfg.AudioDir != "" {
		app.Static("/static/audio", cfg.AudioDir, fiber.Static{MaxAge: 0})
	}
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections, cancels in-flight work and waits
// for handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

// handleTelegram answers 200 whatever happens so the bot platform does
// not redeliver.
func (s *Server) handleTelegram(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("webhook handler panic", "panic", r)
			err = c.SendStatus(fiber.StatusOK)
		}
	}()

	// fasthttp reuses the request buffer after the handler returns
	body := bytes.Clone(c.Body())
	s.cfg.Kai.HandleWebhook(body)
	return c.SendStatus(fiber.StatusOK)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Sessions      int     `json:"sessions"`
	Clients       int     `json:"clients"`
	BridgeMode    bool    `json:"bridge_mode"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		Sessions:      s.cfg.Kai.Sessions().Len(),
		Clients:       s.cfg.Hub.ClientCount(),
		BridgeMode:    s.cfg.Kai.BridgeMode(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	list := s.cfg.Kai.Sessions().List()
	if list == nil {
		list = []session.Info{}
	}
	return c.JSON(fiber.Map{
		"sessions": list,
		"count":    len(list),
	})
}

// handleWS runs one browser connection from connect to disconnect.
func (s *Server) handleWS(c *websocket.Conn) {
	id := session.NewID()
	client := hub.NewClient(s.cfg.Hub, id, c)
	s.cfg.Kai.Connect(id)

	ctx, cancel := context.WithCancel(s.ctx)
	w := newWorker(id, s.cfg.Kai, s.cfg.Hub, s.cfg.Counters, s.logger)
	w.start(ctx)

	client.Run(w.dispatch)

	cancel()
	w.wait()
	s.cfg.Kai.Disconnect(id)
}
