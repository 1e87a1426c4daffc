package executors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/pipeline"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/scanner"
	"github.com/reelforge/reelforge/pkg/services"
	"github.com/reelforge/reelforge/pkg/strategy"
	testdb "github.com/reelforge/reelforge/test/database"
)

type passClip struct{ d float64 }

func (c passClip) Duration() float64 { return c.d }

// passEngine is a minimal rendering stand-in: every op passes the clip
// through and Encode just creates the output file.
type passEngine struct{}

func (passEngine) Open(_ context.Context, path string) (media.Clip, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return passClip{d: 30}, nil
}

func (passEngine) Apply(_ context.Context, clip media.Clip, _ media.Op) (media.Clip, error) {
	return clip, nil
}

func (passEngine) Encode(_ context.Context, _ media.Clip, outputPath string, _ media.EncodeOptions) error {
	return os.WriteFile(outputPath, []byte("rendered"), 0o644)
}

type fakeDownloader struct {
	err   error
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, _ *models.ContentCandidate, dir string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(dir, "source.mp4")
	return path, os.WriteFile(path, []byte("source"), 0o644)
}

func newTransformExecutorForTest(t *testing.T, candidates *services.CandidateService, downloader SourceDownloader) *TransformExecutor {
	t.Helper()
	pipe := pipeline.New(config.DefaultPipelineConfig(), passEngine{}, nil, nil, nil)
	return NewTransformExecutor(candidates, downloader, nil, strategy.NewPlanner(nil), pipe, t.TempDir())
}

func TestTransformExecutor_RendersCandidate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	candidates := services.NewCandidateService(client.Pool)
	ctx := context.Background()

	require.NoError(t, candidates.Upsert(ctx, "tech", []models.ContentCandidate{{
		ID:           "yt:abc",
		Platform:     "youtube",
		URL:          "https://youtube.com/watch?v=abc",
		Title:        "Robot dog",
		DiscoveredAt: time.Now(),
	}}))

	downloader := &fakeDownloader{}
	e := newTransformExecutorForTest(t, candidates, downloader)

	out, err := e.Execute(ctx, &models.Job{ID: "j1", InputRef: "yt:abc"}, noopProgress{})
	require.NoError(t, err)
	assert.Equal(t, 1, downloader.calls)
	assert.FileExists(t, out)

	// The per-job work dir is removed after the run.
	assert.NoDirExists(t, filepath.Join(filepath.Dir(out), "work", "j1"))
}

func TestTransformExecutor_UnknownCandidate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	candidates := services.NewCandidateService(client.Pool)

	e := newTransformExecutorForTest(t, candidates, &fakeDownloader{})

	_, err := e.Execute(context.Background(), &models.Job{ID: "j1", InputRef: "yt:missing"}, noopProgress{})
	require.Error(t, err)
	assert.Equal(t, models.FailureValidation, queue.FailureKindOf(err))
}

func TestTransformExecutor_DownloadFailureIsTransient(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	candidates := services.NewCandidateService(client.Pool)
	ctx := context.Background()

	require.NoError(t, candidates.Upsert(ctx, "tech", []models.ContentCandidate{{
		ID:           "yt:abc",
		Platform:     "youtube",
		URL:          "https://youtube.com/watch?v=abc",
		DiscoveredAt: time.Now(),
	}}))

	e := newTransformExecutorForTest(t, candidates, &fakeDownloader{err: errors.New("blocked upstream")})

	_, err := e.Execute(ctx, &models.Job{ID: "j1", InputRef: "yt:abc"}, noopProgress{})
	require.Error(t, err)
	assert.Equal(t, models.FailureTransient, queue.FailureKindOf(err))
}

func TestDiscoveryExecutor_AggregatesAndWritesTrends(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	candidates := services.NewCandidateService(client.Pool)
	niches := services.NewNicheService(client.Pool)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	registry := scanner.NewRegistry()
	require.NoError(t, registry.Register(scanner.NewFixture("youtube", []models.ContentCandidate{{
		ID:              "yt:abc",
		Platform:        "youtube",
		URL:             "https://youtube.com/watch?v=abc",
		Title:           "Robot dog",
		Views:           1000,
		EngagementScore: 0.4,
		DiscoveredAt:    time.Now(),
		Tags:            []string{"ai"},
	}})))

	aggregator := discovery.NewAggregator(config.DefaultDiscoveryConfig(), registry,
		candidates, cache.NewRedisCacheFromClient(rc), nil)
	e := NewDiscoveryExecutor(aggregator, niches, models.Horizon7d)

	out, err := e.Execute(ctx, &models.Job{ID: "j1", InputRef: "tech"}, noopProgress{})
	require.NoError(t, err)
	assert.Equal(t, discovery.TrendsKey("tech", models.Horizon7d), out)

	// Candidates persisted and trends recomputed.
	stored, err := candidates.Get(ctx, "yt:abc")
	require.NoError(t, err)
	assert.Equal(t, "tech", stored.Niche)

	trends, err := niches.Trends(ctx, "tech")
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, "youtube", trends[0].Platform)
	assert.Equal(t, []string{"ai"}, trends[0].TopKeywords)
}
