package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/reelforge/reelforge/pkg/models"
)

func (s *Server) listJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	jobs, err := s.jobs.List(c.Request.Context(), status, intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// cancelJob cancels a job running on this replica. Jobs claimed elsewhere
// return 409; the caller retries against the owning replica.
func (s *Server) cancelJob(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "this replica runs no workers"})
		return
	}
	id := c.Param("id")
	if !s.pool.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not running on this replica"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "cancelling": true})
}

func (s *Server) listNiches(c *gin.Context) {
	niches, err := s.niches.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"niches": niches})
}

type upsertNicheRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) upsertNiche(c *gin.Context) {
	var req upsertNicheRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if err := s.niches.Upsert(c.Request.Context(), c.Param("niche"), active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"niche": c.Param("niche"), "active": active})
}

func (s *Server) nicheTrends(c *gin.Context) {
	trends, err := s.niches.Trends(c.Request.Context(), c.Param("niche"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

// searchCandidates serves the stored index, falling back to a live
// aggregation when the index is thin.
func (s *Server) searchCandidates(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	candidates, err := s.aggregator.Search(c.Request.Context(), query, intQuery(c, "limit", 25))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (s *Server) listPosts(c *gin.Context) {
	posts, err := s.posts.ListPending(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

type schedulePostRequest struct {
	VideoRef     string         `json:"video_ref" binding:"required"`
	Platform     string         `json:"platform" binding:"required"`
	AccountID    string         `json:"account_id"`
	ScheduledFor time.Time      `json:"scheduled_for" binding:"required"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) schedulePost(c *gin.Context) {
	var req schedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := s.posts.Schedule(c.Request.Context(), &models.ScheduledPost{
		VideoRef:     req.VideoRef,
		Platform:     req.Platform,
		AccountID:    req.AccountID,
		ScheduledFor: req.ScheduledFor,
		Metadata:     req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) postHistory(c *gin.Context) {
	history, err := s.posts.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) auditReports(c *gin.Context) {
	if s.auditor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "auditing not configured"})
		return
	}
	raw, err := s.auditor.RecentReports(c.Request.Context(), int64(intQuery(c, "limit", 10)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/json")
	c.String(http.StatusOK, `{"reports":[`+joinRawJSON(raw)+`]}`)
}
