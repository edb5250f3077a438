// Package debugserver is an observability-only HTTP surface for a running
// lifecycled process: health, Prometheus metrics, and a websocket feed of
// lifecycle events. There is no control surface here — deploy/reload
// stay CLI-only per spec.md's non-goals; this package only ever reads.
// Grounded on the teacher's internal/server (echo.Echo + middleware +
// graceful Start/Shutdown).
package debugserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/caxtonio/agentcore/internal/orchestrator"
)

// Config configures the debug server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server is the observability HTTP surface.
type Server struct {
	echo *echo.Echo
	cfg  Config
	log  zerolog.Logger
}

// New builds a Server over orch's event stream and registry's metrics.
func New(cfg Config, orch *orchestrator.Orchestrator, registry *prometheus.Registry, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, cfg: cfg, log: log}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("debugserver request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealthz(orch))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	ws := newEventsHandler(orch, log)
	e.GET("/events", ws.handle)

	return s
}

func (s *Server) handleHealthz(orch *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats := orch.Stats()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":         "healthy",
			"total_agents":   stats.TotalAgents,
			"running_agents": stats.RunningAgents,
			"failed_agents":  stats.FailedAgents,
		})
	}
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting debug server")
	if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("debug server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("debug server shutdown: %w", err)
	}
	return nil
}
