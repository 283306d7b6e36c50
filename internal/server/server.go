// Package server assembles the echo instance that serves every registered
// Handler.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/forum/internal/auth"
)

// Handler registers a group of routes.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

var (
	jwtExactSkipPaths = map[string]struct{}{
		"/ping":    {},
		"/health":  {},
		"/metrics": {},
		"/smileys": {},
	}
	// Anonymous readers may fetch messages.
	jwtReadSkipPrefixes = []string{
		"/messages/",
	}
)

func NewServer(log *slog.Logger, addr, jwtSecret string, handlers ...Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().Method, c.Request().URL.Path)
	}))
	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) Start() error                   { return s.echo.Start(s.addr) }
func (s *Server) Stop(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func shouldSkipJWT(method, path string) bool {
	if _, ok := jwtExactSkipPaths[path]; ok {
		return true
	}
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	for _, prefix := range jwtReadSkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
