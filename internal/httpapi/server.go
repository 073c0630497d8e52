// Package httpapi wires the Echo application: the websocket upgrade route,
// a health check, and a Prometheus scrape endpoint. There is no HTTP route
// for reading a session snapshot.
//
// Grounded on the teacher's internal/httpapi/server.go: same Echo setup
// (HideBanner/HidePort, middleware.Recover, a slog request logger), same
// Run(ctx, addr) graceful-shutdown shape. The teacher's blob upload/download
// routes have no equivalent here — queue entries reference URLs, and actual
// audio upload is out of scope per SPEC_FULL.md's non-goals.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavesync/syncd/internal/registry"
	"github.com/wavesync/syncd/internal/ws"
)

// Server is the Echo application exposing health, metrics, and the
// websocket upgrade route.
type Server struct {
	echo *echo.Echo
	reg  *registry.Registry
}

// New constructs an Echo app with websocket + health/metrics routes.
func New(reg *registry.Registry, wsHandler *ws.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, reg: reg}
	s.registerRoutes(wsHandler)
	return s
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			if path == "/ws" || path == "/health" || path == "/metrics" {
				slog.Debug("http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			} else {
				slog.Info("http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(wsHandler *ws.Handler) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	wsHandler.Register(s.echo)
}

type healthResponse struct {
	Status         string `json:"status"`
	SessionsActive int    `json:"sessions_active"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:         "ok",
		SessionsActive: s.reg.Count(),
	})
}

// Run starts Echo and blocks until ctx cancellation or startup failure. If
// tlsConfig is non-nil, the listener serves HTTPS with it instead of plain
// HTTP.
func (s *Server) Run(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = s.startTLS(addr, tlsConfig)
		} else {
			err = s.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

// startTLS serves the Echo app over a listener wrapped with tlsConfig,
// bypassing echo.StartTLS's file-path-based cert loading since the caller
// already holds an in-memory tls.Config (the self-signed dev cert path).
func (s *Server) startTLS(addr string, tlsConfig *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: s.echo}
	return srv.Serve(tls.NewListener(ln, tlsConfig))
}
