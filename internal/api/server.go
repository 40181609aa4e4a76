package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medreportgen-server/internal/domain"
	"github.com/medreportgen-server/internal/metrics"
	"github.com/medreportgen-server/internal/middleware"
)

// RootMessage is returned by GET /.
const RootMessage = "MedReportGen AI Backend (Sickle Cell) is running. POST /generate"

// ModelStatus reports the state of the generation engine for health checks.
type ModelStatus interface {
	ModelName() string
	BreakerState() gobreaker.State
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	synthesizer   domain.ReportSynthesizer
	status        ModelStatus
	collector     *metrics.Collector
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance. collector may be nil, in which
// case no metrics are recorded or exposed.
func NewServer(configManager domain.ConfigManager, synthesizer domain.ReportSynthesizer, status ModelStatus, collector *metrics.Collector, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	useJSONFieldNames()

	router := gin.New()

	// Add middleware
	router.Use(gin.CustomRecovery(recoveryHandler(logger)))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	if collector != nil {
		router.Use(collector.GinMiddleware())
	}

	server := &Server{
		configManager: configManager,
		synthesizer:   synthesizer,
		status:        status,
		collector:     collector,
		logger:        logger,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the configured gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
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
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/generate", s.handleGenerate)

	cfg := s.configManager.GetConfig()
	if s.collector != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.collector.Handler()))
	}
}

// handleRoot handles liveness banner requests
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": RootMessage})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model_loaded": s.status != nil,
		"model":        s.modelName(),
		"breaker":      s.breakerState(),
	})
}

// handleGenerate synthesizes a report for one patient summary
func (s *Server) handleGenerate(c *gin.Context) {
	var input domain.PatientSummaryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.rejectInput(c, bindingErrors(err))
		return
	}

	summary, err := input.Resolve()
	if err != nil {
		s.rejectInput(c, bindingErrors(err))
		return
	}

	resp := s.synthesizer.Synthesize(c.Request.Context(), summary)
	if resp.Degraded() {
		_ = c.Error(resp.GenerationErr)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) rejectInput(c *gin.Context, details domain.ValidationErrors) {
	s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"errors":         len(details),
	}).Warn("Rejected patient summary")

	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": details})
}

func (s *Server) modelName() string {
	if s.status == nil {
		return ""
	}
	return s.status.ModelName()
}

func (s *Server) breakerState() string {
	if s.status == nil {
		return ""
	}
	return s.status.BreakerState().String()
}

// recoveryHandler answers a panicking request with a 500 APIError.
func recoveryHandler(logger *logrus.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered interface{}) {
		requestID := c.GetString(middleware.CorrelationIDKey)
		logger.WithFields(logrus.Fields{
			"correlation_id": requestID,
			"panic":          fmt.Sprint(recovered),
			"path":           c.Request.URL.Path,
		}).Error("Recovered from panic in request handler")

		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrInternalServer, "internal server error", "", requestID))
	}
}

// corsMiddleware allows the configured origins; "*" allows any origin
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CorrelationIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.CorrelationIDHeader},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			allowAll = true
		}
	}

	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}
