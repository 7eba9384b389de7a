// Package server exposes the consensus engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/record"
)

const serviceName = "jazamiti-consensus"

// Engine is the consensus surface the server depends on.
type Engine interface {
	ValidateWithConsensus(ctx context.Context, rec record.Record) consensus.Result
	GenerateInsightsWithConsensus(ctx context.Context, ds record.Dataset) []provider.InsightReport
	ValidateConfiguration() config.Report
	Status() consensus.ServiceStatus
}

// Server wires the HTTP routes to an Engine.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	version string
	router  *gin.Engine
}

// New builds the router. A nil logger falls back to slog.Default().
func New(engine Engine, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		logger:  logger,
		version: version,
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), s.requestLogger())
	s.registerRoutes(r)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// registerRoutes registers every route.
//
//	GET  /health              - Liveness
//	GET  /metrics             - Prometheus metrics
//	GET  /v1/status           - Backend availability
//	GET  /v1/config/validate  - Configuration report
//	POST /v1/validate         - Rule checks and consensus for one record
//	POST /v1/insights         - Per-backend analysis of a dataset
//
// The POST routes answer 503 while the configuration is invalid.
func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/status", s.HandleStatus)
		v1.GET("/config/validate", s.HandleConfigValidate)
		records := v1.Group("", s.requireValidConfig())
		records.POST("/validate", s.HandleValidate)
		records.POST("/insights", s.HandleInsights)
	}
}

// requireValidConfig rejects record processing while the configuration
// report carries errors.
func (s *Server) requireValidConfig() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := s.engine.ValidateConfiguration()
		if report.IsValid {
			c.Next()
			return
		}
		s.logger.Warn("Rejecting request under invalid configuration",
			"request_id", c.GetString("request_id"),
			"errors", report.Errors)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ConfigErrorResponse{
			ErrorResponse: ErrorResponse{Error: "Configuration is invalid", Code: "INVALID_CONFIGURATION"},
			Report:        report,
		})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := getOrCreateRequestID(c)
		c.Next()
		s.logger.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	c.Set("request_id", requestID)
	return requestID
}
