// Package api exposes the locate-fee pricing service over HTTP, grounded on
// the teacher's internal/api/server.go and routes.go: a gin.Engine wrapped
// in a plain net/http.Server for graceful shutdown, with the route table
// built separately in routes.go.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/db"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
	"github.com/galatea-associates/locate-fee-engine/internal/metrics"
)

// PricingService is the subset of coordinator.Coordinator the HTTP layer
// depends on, kept narrow so handler tests can substitute a fake.
type PricingService interface {
	Calculate(ctx context.Context, req domain.CalculationRequest) (domain.CalculationResult, *apierr.Error)
	LookupRate(ctx context.Context, ticker, correlationID string) (domain.RateContext, *apierr.Error)
}

// Config bundles everything NewServer needs to wire routes and middleware.
type Config struct {
	Host             string
	Port             int
	APIKeys          []string
	MaxConcurrency   int
	RequestTimeout   time.Duration
	RateLimitEnabled bool
	CalculateMaxReqs int
	CalculateWindow  time.Duration
	ReadMaxReqs      int
	ReadWindow       time.Duration
	DB               *db.DB
}

// Server wraps a gin.Engine with graceful start/stop, mirroring the
// teacher's Server type.
type Server struct {
	router     *gin.Engine
	pricing    PricingService
	db         *db.DB
	addr       string
	server     *http.Server
	log        zerolog.Logger
	limiter    *rate.Limiter
	reqTimeout time.Duration
}

// NewServer builds a Server. Every route passes through recovery, request
// logging and CORS, in that order; the versioned API groups then add the
// backpressure check, API-key auth and per-IP rate limiting, in that order.
// /health and /metrics get none of those three.
func NewServer(cfg Config, pricing PricingService, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key", "X-Correlation-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 256
	}
	limiter := rate.NewLimiter(rate.Limit(maxConcurrency), maxConcurrency)

	s := &Server{
		router:     router,
		pricing:    pricing,
		db:         cfg.DB,
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		log:        log.With().Str("component", "api").Logger(),
		limiter:    limiter,
		reqTimeout: cfg.RequestTimeout,
	}

	rlm := NewRateLimiterMiddleware(cfg.RateLimitEnabled, cfg.CalculateMaxReqs, cfg.CalculateWindow, cfg.ReadMaxReqs, cfg.ReadWindow)
	keys := NewAPIKeyStore(cfg.APIKeys)

	s.setupRoutes(keys, rlm)

	return s
}

// Router exposes the underlying gin.Engine for tests using httptest.
func (s *Server) Router() http.Handler { return s.router }

// Start starts the HTTP server and blocks until it stops or fails.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("stopping API server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// backpressure rejects a request with 503 Busy when the server's token
// bucket is empty. The bucket holds MaxConcurrency tokens and refills at
// MaxConcurrency tokens per second, so it bounds the rate of admitted
// requests; requests still in flight are not counted. It is distinct from
// the per-IP RateLimiterMiddleware, which protects against abusive callers
// rather than the process itself.
func (s *Server) backpressure() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			metrics.BusyRejections.Inc()
			writeError(c, http.StatusServiceUnavailable, "SERVER_BUSY", "server is at capacity, try again shortly", "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoggerMiddleware is a custom gin request logger, grounded on the
// teacher's LoggerMiddleware in internal/api/server.go.
func LoggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		evt := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("correlation_id", c.GetString(correlationIDKey))

		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("API request")
	}
}
