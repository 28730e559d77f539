// Package api is the HTTP ingestion surface over the analysis pipeline.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zabbixstack/zabbix-rca/internal/config"
)

// Server wraps the gin router and HTTP lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer constructs the HTTP server and registers all routes.
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", handlers.HandleHealth)
	router.GET("/ready", handlers.HandleReady)

	v1 := router.Group("/api/v1")
	v1.POST("/webhook/zabbix", handlers.HandleZabbixWebhook)
	v1.GET("/analysis/:event_id", handlers.HandleGetAnalysis)
	v1.GET("/stats", handlers.HandleStats)

	return &Server{
		cfg:    cfg,
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router exposes the underlying handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

// requestLogger emits one structured log line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}
