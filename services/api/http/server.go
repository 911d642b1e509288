package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qualiteair/hybride/services/api/config"
	hybridcfg "github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/export"
	"github.com/qualiteair/hybride/services/internal/hybrid"
)

// Reconciler produces reports for one set of filters.
type Reconciler interface {
	Build(ctx context.Context) (*export.Report, error)
	Sample(ctx context.Context) (*hybrid.Sample, error)
	Codes(ctx context.Context) (*hybrid.Codes, error)
}

// Factory binds a Reconciler to request filters.
type Factory func(f hybridcfg.Filters) Reconciler

// Server bundles router and dependencies for the report API.
type Server struct {
	cfg      config.Config
	defaults hybridcfg.Filters
	newRec   Factory
	engine   *gin.Engine
}

// New constructs a server with routes and middleware. Query parameters
// override the default filters per request.
func New(cfg config.Config, defaults hybridcfg.Filters, newRec Factory) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, defaults: defaults, newRec: newRec, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.registerV1Routes()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}

// statusFor maps run errors onto HTTP statuses: an unreachable store is a
// bad gateway, anything else from the stores is an internal error.
func statusFor(err error) int {
	if errors.Is(err, hybrid.ErrConnectivity) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
