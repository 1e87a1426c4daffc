package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/audit"
	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/database"
	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/scanner"
	"github.com/reelforge/reelforge/pkg/services"
	testdb "github.com/reelforge/reelforge/test/database"
)

type serverEnv struct {
	router *gin.Engine
	client *database.Client
	jobs   *services.JobService
	niches *services.NicheService
	posts  *services.PostService
	cands  *services.CandidateService
	kv     cache.Cache
	redis  *miniredis.Miniredis
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	client := testdb.NewTestClient(t)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	kv := cache.NewRedisCacheFromClient(rc)

	jobs := services.NewJobService(client.Pool, nil)
	niches := services.NewNicheService(client.Pool)
	candidates := services.NewCandidateService(client.Pool)
	posts := services.NewPostService(client.Pool)

	registry := scanner.NewRegistry()
	require.NoError(t, registry.Register(scanner.NewFixture("youtube", nil)))
	aggregator := discovery.NewAggregator(config.DefaultDiscoveryConfig(), registry,
		candidates, kv, nil)

	auditor := audit.New(client.Pool, kv)
	server := NewServer(client, kv, jobs, niches, candidates, posts, aggregator, nil, auditor)

	return &serverEnv{
		router: server.Router(),
		client: client,
		jobs:   jobs,
		niches: niches,
		posts:  posts,
		cands:  candidates,
		kv:     kv,
		redis:  mr,
	}
}

func (env *serverEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	// A dead cache degrades the whole check.
	env.redis.Close()
	rec = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestJobsEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)
	ctx := context.Background()

	queued, err := env.jobs.Create(ctx, models.JobKindDiscovery, "api", "tech")
	require.NoError(t, err)
	done, err := env.jobs.Create(ctx, models.JobKindDiscovery, "api", "gaming")
	require.NoError(t, err)
	require.NoError(t, env.jobs.Complete(ctx, done.ID, "discovery:trends:gaming:7d"))

	rec := env.do(http.MethodGet, "/api/v1/jobs?status=queued", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	jobs := decodeBody(t, rec)["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, queued.ID, jobs[0].(map[string]any)["id"])

	rec = env.do(http.MethodGet, "/api/v1/jobs/"+done.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.JobStatusCompleted), decodeBody(t, rec)["status"])

	rec = env.do(http.MethodGet, "/api/v1/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobWithoutPool(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/jobs/j1/cancel", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNicheEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)
	ctx := context.Background()

	// PUT without a body activates the niche.
	rec := env.do(http.MethodPut, "/api/v1/niches/tech", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["active"])

	rec = env.do(http.MethodPut, "/api/v1/niches/tech", map[string]any{"active": false})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["active"])

	rec = env.do(http.MethodGet, "/api/v1/niches", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	niches := decodeBody(t, rec)["niches"].([]any)
	require.Len(t, niches, 1)
	assert.Equal(t, "tech", niches[0].(map[string]any)["niche"])

	require.NoError(t, env.niches.UpsertTrend(ctx, &models.NicheTrend{
		Niche:         "tech",
		Platform:      "youtube",
		TopKeywords:   []string{"ai"},
		AvgEngagement: 1000,
	}))
	rec = env.do(http.MethodGet, "/api/v1/niches/tech/trends", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	trends := decodeBody(t, rec)["trends"].([]any)
	require.Len(t, trends, 1)
	assert.Equal(t, "youtube", trends[0].(map[string]any)["platform"])
}

func TestSearchCandidates(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)
	ctx := context.Background()

	rec := env.do(http.MethodGet, "/api/v1/candidates", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Enough stored rows that the search never goes live.
	var batch []models.ContentCandidate
	for i := 0; i < 12; i++ {
		batch = append(batch, models.ContentCandidate{
			ID:           fmt.Sprintf("yt:robot-%d", i),
			Platform:     "youtube",
			URL:          fmt.Sprintf("https://youtube.com/watch?v=robot-%d", i),
			Title:        fmt.Sprintf("Robot dog %d", i),
			Views:        int64(1000 - i),
			DiscoveredAt: time.Now(),
		})
	}
	require.NoError(t, env.cands.Upsert(ctx, "tech", batch))

	rec = env.do(http.MethodGet, "/api/v1/candidates?q=robot&limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	candidates := decodeBody(t, rec)["candidates"].([]any)
	assert.Len(t, candidates, 5)
}

func TestPostEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/posts", map[string]any{"platform": "tiktok"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "video_ref and scheduled_for are required")

	due := time.Now().Add(time.Hour).UTC()
	rec = env.do(http.MethodPost, "/api/v1/posts", map[string]any{
		"video_ref":     "s3://reels/outputs/reel_1.mp4",
		"platform":      "tiktok",
		"scheduled_for": due.Format(time.RFC3339),
		"metadata":      map[string]any{"caption": "wait for it"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	postID := created["id"].(string)
	assert.Equal(t, string(models.PostStatusPending), created["status"])

	rec = env.do(http.MethodGet, "/api/v1/posts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	posts := decodeBody(t, rec)["posts"].([]any)
	require.Len(t, posts, 1)

	rec = env.do(http.MethodGet, "/api/v1/posts/"+postID+"/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["history"])
}

func TestAuditReports(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	env := newServerEnv(t)
	ctx := context.Background()

	require.NoError(t, env.kv.PushRing(ctx, audit.LogRingKey,
		map[string]any{"integrity_score": 100}, 10))

	rec := env.do(http.MethodGet, "/api/v1/audit/reports", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	reports := decodeBody(t, rec)["reports"].([]any)
	require.Len(t, reports, 1)
	assert.Equal(t, float64(100), reports[0].(map[string]any)["integrity_score"])
}
