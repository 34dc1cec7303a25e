// Package api exposes the suggestion pipeline and the case-record lifecycle
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/middleware"
	"github.com/homeopathy-case-engine/internal/service"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP surface dispatches to.
type Dependencies struct {
	Suggestions  *service.SuggestionService
	Learning     *service.LearningService
	Reference    domain.ReferenceStore
	HealthChecks map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	config      *domain.Config
	deps        Dependencies
	logger      *logrus.Logger
	router      *gin.Engine
	server      *http.Server
	rateLimiter *middleware.RateLimiter
	startedAt   time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		config:      cfg,
		deps:        deps,
		logger:      logger,
		router:      router,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		startedAt:   time.Now(),
	}

	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CallerIdentity())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	}

	s.setupRoutes()

	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	stop := make(chan struct{})
	defer close(stop)
	s.rateLimiter.StartCleanup(time.Minute, stop)

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimit(s.rateLimiter))
	{
		v1.POST("/suggest", s.handleSuggest)

		v1.GET("/cases/:id", s.handleGetCase)
		v1.PUT("/cases/:id/decision", s.handleUpdateDecision)
		v1.PUT("/cases/:id/outcome", s.handleUpdateOutcome)
		v1.GET("/patients/:patientId/cases", s.handleListPatientCases)

		v1.GET("/remedies", s.handleListRemedies)
		v1.GET("/remedies/:id", s.handleGetRemedy)
		v1.GET("/remedies/:id/statistics", s.handleRemedyStatistics)

		v1.GET("/rubrics", s.handleListRubrics)

		v1.POST("/symptoms/normalize", s.handleNormalizeSymptoms)
		v1.GET("/symptoms/:code/rubrics", s.handleSuggestRubrics)
		v1.GET("/symptoms/:code/patterns", s.handleSymptomPatterns)
	}
}

// handleHealth reports liveness and the state of each backing dependency.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.deps.HealthChecks))
	for name, check := range s.deps.HealthChecks {
		if err := check(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			checks[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+middleware.DoctorIDHeader+", X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
