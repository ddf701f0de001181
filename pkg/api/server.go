package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskagent/pkg/api/middleware"
	"taskagent/pkg/coordination"
	"taskagent/pkg/models"
	tracing "taskagent/pkg/observability"
	"taskagent/pkg/storage"
	"taskagent/pkg/sysinfo"
)

// Executor runs scripts on behalf of the HTTP layer.
type Executor interface {
	Execute(ctx context.Context, req models.ExecutionRequest) models.ExecutionOutcome
	Running() int
}

// SystemProbe reports host facts for /info and /status.
type SystemProbe interface {
	Info(ctx context.Context) sysinfo.Info
	Status(ctx context.Context) (sysinfo.Status, error)
}

// Server encapsulates the HTTP API server and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger

	executor  Executor
	store     storage.ScriptStore
	publisher storage.OutcomePublisher
	registrar coordination.Registrar
	system    SystemProbe
	info      sysinfo.Info

	publishTimeout time.Duration
	publishing     sync.WaitGroup
	stopLimiter    func()
}

// Config holds API server configuration.
type Config struct {
	Port         string
	Executor     Executor
	Store        storage.ScriptStore
	Publisher    storage.OutcomePublisher // optional
	Registrar    coordination.Registrar   // optional
	System       SystemProbe
	MaxBodyBytes int64
	RateLimit    middleware.RateLimiterConfig
	// WriteTimeout must outlast the longest script run.
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// NewServer creates a new API server with all dependencies.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = storage.NopPublisher{}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 330 * time.Second
	}

	router := gin.New()
	rateLimit, stopLimiter := middleware.RateLimitMiddleware(cfg.RateLimit)

	// Middleware stack (order matters)
	router.Use(gin.CustomRecovery(recoveryHandler(cfg.Logger)))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.TracingMiddleware("taskagent"))
	router.Use(middleware.MetricsMiddleware())
	router.Use(requestLogger(cfg.Logger))
	router.Use(rateLimit)
	router.Use(middleware.BodySizeLimitMiddleware(cfg.MaxBodyBytes))

	s := &Server{
		router:         router,
		logger:         cfg.Logger,
		executor:       cfg.Executor,
		store:          cfg.Store,
		publisher:      cfg.Publisher,
		registrar:      cfg.Registrar,
		system:         cfg.System,
		publishTimeout: 5 * time.Second,
		stopLimiter:    stopLimiter,
	}
	s.info = s.system.Info(context.Background())

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight executions to
// finish, then flushes pending outcome events.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.stopLimiter()

	done := make(chan struct{})
	go func() {
		s.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("outcome events still pending at shutdown")
	}
	return err
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	s.router.POST("/execute", s.execute)
	s.router.GET("/scripts", s.listScripts)

	s.router.GET("/ping", s.ping)
	s.router.GET("/info", s.getInfo)
	s.router.GET("/status", s.getStatus)
	s.router.GET("/agents", s.listAgents)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// requestLogger is a middleware that logs HTTP requests.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		}
		if traceID := tracing.TraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request", fields...)
		case path == "/metrics" || path == "/ping":
			logger.Debug("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func recoveryHandler(logger *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// requestHost is the host the request was addressed to, without the port.
func requestHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "localhost"
	}
	return host
}
