// Package server sets up the operational HTTP surface: health probes,
// Prometheus metrics and the admin API for catalog and inventory upkeep.
package server

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/config"
	"github.com/ozerovd/linemart/internal/health"
	"github.com/ozerovd/linemart/internal/inventory"
	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/metrics"
	"github.com/ozerovd/linemart/internal/payments"
	"github.com/ozerovd/linemart/internal/ratelimit"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/validation"
)

// Deps are the application services the HTTP surface exposes.
type Deps struct {
	Engine   *payments.Engine
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Catalog  *catalog.Catalog
	Pool     *inventory.Pool
	DB       *sql.DB          // nil if using in-memory
	Health   *health.Registry // optional subsystem checks
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	deps    Deps
	router  *gin.Engine
	httpSrv *http.Server
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: ratelimit.New(ratelimit.DefaultConfig()),
		logger:  logger.With("component", "server"),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Cap request bodies
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		switch {
		case status >= 500:
			s.logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			s.logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			s.logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Admin API, guarded by a shared secret and rate limited per IP
	admin := s.router.Group("/admin")
	admin.Use(s.limiter.Middleware())
	admin.Use(s.adminAuthMiddleware())
	{
		admin.POST("/audit", s.runAuditHandler)
		admin.GET("/operations/pending", s.pendingOperationsHandler)
		admin.GET("/operations/resolved", s.resolvedOperationsHandler)
		admin.GET("/users/:id/balance", s.userBalanceHandler)
		admin.PUT("/catalog", s.putItemHandler)
		admin.POST("/inventory/:item", s.provisionHandler)
		admin.GET("/inventory/:item", s.stockHandler)
	}
}

func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin_disabled",
			})
			return
		}
		secret := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// SetReady marks the server as ready to serve traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.ready.Store(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.limiter.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
