package api

import (
	"github.com/gin-gonic/gin"

	"github.com/galatea-associates/locate-fee-engine/internal/metrics"
)

// setupRoutes wires the endpoints from SPEC_FULL §6/§7. /health and
// /metrics never see auth or rate limiting; the calculate and read groups
// each get their own sliding-window limiter class, per the teacher's
// ReadMiddleware vs. ControlMiddleware split.
func (s *Server) setupRoutes(keys *APIKeyStore, rlm *RateLimiterMiddleware) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	calculate := s.router.Group("/")
	calculate.Use(s.backpressure(), AuthMiddleware(keys), rlm.CalculateMiddleware())
	calculate.POST("/calculate-locate", s.handleCalculateLocate)

	read := s.router.Group("/")
	read.Use(s.backpressure(), AuthMiddleware(keys), rlm.ReadMiddleware())
	read.GET("/rates/:ticker", s.handleGetRate)
}
