// Package api is the operational HTTP surface: job inspection and
// cancellation, niche management, candidate search, post scheduling and
// audit history.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge/pkg/audit"
	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/database"
	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/services"
)

// Server wires the HTTP handlers over the domain services.
type Server struct {
	db         *database.Client
	kv         cache.Cache
	jobs       *services.JobService
	niches     *services.NicheService
	candidates *services.CandidateService
	posts      *services.PostService
	aggregator *discovery.Aggregator
	pool       *queue.Pool
	auditor    *audit.Auditor

	httpServer *http.Server
}

// NewServer builds the API server. pool and auditor may be nil on
// API-only replicas.
func NewServer(db *database.Client, kv cache.Cache, jobs *services.JobService, niches *services.NicheService, candidates *services.CandidateService, posts *services.PostService, aggregator *discovery.Aggregator, pool *queue.Pool, auditor *audit.Auditor) *Server {
	return &Server{
		db:         db,
		kv:         kv,
		jobs:       jobs,
		niches:     niches,
		candidates: candidates,
		posts:      posts,
		aggregator: aggregator,
		pool:       pool,
		auditor:    auditor,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/jobs", s.listJobs)
		v1.GET("/jobs/:id", s.getJob)
		v1.POST("/jobs/:id/cancel", s.cancelJob)

		v1.GET("/niches", s.listNiches)
		v1.PUT("/niches/:niche", s.upsertNiche)
		v1.GET("/niches/:niche/trends", s.nicheTrends)

		v1.GET("/candidates", s.searchCandidates)

		v1.GET("/posts", s.listPosts)
		v1.POST("/posts", s.schedulePost)
		v1.GET("/posts/:id/history", s.postHistory)

		v1.GET("/audit/reports", s.auditReports)
	}
	return router
}

// Start begins serving on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	result := gin.H{"status": "ok"}
	if err := s.db.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		result["status"] = "degraded"
		result["database"] = err.Error()
	}
	if err := s.kv.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		result["status"] = "degraded"
		result["cache"] = err.Error()
	}
	c.JSON(status, result)
}
