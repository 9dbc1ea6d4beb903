package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gatehub/internal/config"
	ws "gatehub/internal/microservices/websocket"
	"gatehub/internal/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server hosts the WebSocket endpoint and its small HTTP surface
type Server struct {
	cfg    *config.Config
	Hub    *ws.Hub
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

type Deps struct {
	Emitter  *ws.Emitter
	Recorder ws.ProgressRecorder    // nil when PROGRESS_STORE=none
	Health   map[string]HealthCheck // name -> check
}

// constructor for Server
func New(cfg *config.Config, deps Deps) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		Hub:    ws.NewHub(),
		engine: gin.New(),
		logger: slog.Default(),
	}
	s.engine.Use(gin.Recovery())
	s.routes(deps)

	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(deps Deps) {
	wsHandler := ws.WSHandler(s.Hub, deps.Emitter, ws.HandlerOptions{
		AllowedOrigins: s.cfg.CORSOrigins,
		EchoRateLimit:  rate.Limit(s.cfg.EchoRateLimit),
		EchoRateBurst:  s.cfg.EchoRateBurst,
	})
	if s.cfg.AuthEnabled() {
		s.engine.GET(s.cfg.WSPath, middleware.WSAuth(middleware.NewTokenValidator(s.cfg.JWTSecret)), wsHandler)
	} else {
		s.engine.GET(s.cfg.WSPath, wsHandler)
	}

	s.engine.GET("/runs/:id", ws.RunProgressHandler(deps.Recorder))
	s.engine.GET("/healthz", s.healthHandler(deps.Health))
}

func (s *Server) healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"clients":      s.Hub.Count(),
			"dependencies": deps,
		})
	}
}

// Handler exposes the router, used by tests with httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("ws_server_listening", "addr", s.http.Addr, "path", s.cfg.WSPath, "auth", s.cfg.AuthEnabled())
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, then closes every live WebSocket
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx) // hijacked connections are not tracked by http.Server
	s.Hub.CloseAll()
	return err
}
