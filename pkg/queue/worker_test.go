package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
	testdb "github.com/reelforge/reelforge/test/database"
)

type stubExecutor struct {
	kind    models.JobKind
	output  string
	err     error
	execute func(ctx context.Context, job *models.Job, progress ProgressReporter) (string, error)
	calls   int
}

func (e *stubExecutor) Kind() models.JobKind { return e.kind }

func (e *stubExecutor) Execute(ctx context.Context, job *models.Job, progress ProgressReporter) (string, error) {
	e.calls++
	if e.execute != nil {
		return e.execute(ctx, job, progress)
	}
	return e.output, e.err
}

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.OrphanDetectionInterval = 50 * time.Millisecond
	cfg.OrphanThreshold = time.Second
	cfg.GracefulShutdownTimeout = 5 * time.Second
	return cfg
}

func TestWorker_ClaimsOldestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	first, err := jobs.Create(ctx, models.JobKindDiscovery, "", "niche-a")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = jobs.Create(ctx, models.JobKindDiscovery, "", "niche-b")
	require.NoError(t, err)

	w := newWorker(0, "pod-1", client.Pool, jobs, NewExecutorRegistry(), testQueueConfig(), newActiveJobs())
	claimed, err := w.claim(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	require.NotNil(t, claimed.PodID)
	assert.Equal(t, "pod-1", *claimed.PodID)
	assert.NotNil(t, claimed.LastHeartbeatAt)
}

func TestWorker_ClaimEmptyQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)

	w := newWorker(0, "pod-1", client.Pool, jobs, NewExecutorRegistry(), testQueueConfig(), newActiveJobs())
	_, err := w.claim(context.Background())
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestWorker_ClaimRespectsGlobalCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	// One job already running on another replica fills the global limit.
	running, err := jobs.Create(ctx, models.JobKindDiscovery, "", "niche-a")
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx,
		`UPDATE jobs SET status = 'running', pod_id = 'other-pod', last_heartbeat_at = now() WHERE id = $1`,
		running.ID)
	require.NoError(t, err)

	_, err = jobs.Create(ctx, models.JobKindDiscovery, "", "niche-b")
	require.NoError(t, err)

	cfg := testQueueConfig()
	cfg.MaxConcurrentJobs = 1
	w := newWorker(0, "pod-1", client.Pool, jobs, NewExecutorRegistry(), cfg, newActiveJobs())

	_, err = w.claim(ctx)
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestWorker_ExecuteCompletesJob(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	executor := &stubExecutor{kind: models.JobKindDiscovery, output: "trends:ai:7d"}
	registry := NewExecutorRegistry(executor)

	job, err := jobs.Create(ctx, models.JobKindDiscovery, "", "ai")
	require.NoError(t, err)

	w := newWorker(0, "pod-1", client.Pool, jobs, registry, testQueueConfig(), newActiveJobs())
	claimed, err := w.claim(ctx)
	require.NoError(t, err)
	w.execute(ctx, claimed)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.OutputRef)
	assert.Equal(t, "trends:ai:7d", *got.OutputRef)
	assert.Equal(t, 1, executor.calls)
}

func TestWorker_ExecuteRecordsFailureKind(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	executor := &stubExecutor{
		kind: models.JobKindTransform,
		err:  Failf(models.FailureValidation, "candidate not found"),
	}
	registry := NewExecutorRegistry(executor)

	job, err := jobs.Create(ctx, models.JobKindTransform, "", "missing-candidate")
	require.NoError(t, err)

	w := newWorker(0, "pod-1", client.Pool, jobs, registry, testQueueConfig(), newActiveJobs())
	claimed, err := w.claim(ctx)
	require.NoError(t, err)
	w.execute(ctx, claimed)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.FailureValidation, got.FailureKind)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "candidate not found")
}

func TestWorker_ExecuteUnknownKindFailsFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	job, err := jobs.Create(ctx, models.JobKind("unknown_kind"), "", "x")
	require.NoError(t, err)

	w := newWorker(0, "pod-1", client.Pool, jobs, NewExecutorRegistry(), testQueueConfig(), newActiveJobs())
	claimed, err := w.claim(ctx)
	require.NoError(t, err)
	w.execute(ctx, claimed)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.FailureFatal, got.FailureKind)
}

func TestWorker_ExecuteReportsProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	executor := &stubExecutor{
		kind: models.JobKindTransform,
		execute: func(ctx context.Context, job *models.Job, progress ProgressReporter) (string, error) {
			progress.Report(ctx, "Downloading", 10)
			progress.Report(ctx, "Rendering", 60)
			return "out.mp4", nil
		},
	}

	job, err := jobs.Create(ctx, models.JobKindTransform, "", "cand-1")
	require.NoError(t, err)

	w := newWorker(0, "pod-1", client.Pool, jobs, NewExecutorRegistry(executor), testQueueConfig(), newActiveJobs())
	claimed, err := w.claim(ctx)
	require.NoError(t, err)
	w.execute(ctx, claimed)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestPool_RecoverOrphans(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	stale, err := jobs.Create(ctx, models.JobKindTransform, "", "cand-stale")
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		UPDATE jobs SET status = 'running', pod_id = 'dead-pod',
			last_heartbeat_at = now() - interval '10 minutes'
		WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	healthy, err := jobs.Create(ctx, models.JobKindTransform, "", "cand-healthy")
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		UPDATE jobs SET status = 'running', pod_id = 'live-pod', last_heartbeat_at = now()
		WHERE id = $1`, healthy.ID)
	require.NoError(t, err)

	cfg := testQueueConfig()
	cfg.OrphanThreshold = time.Minute
	p := NewPool(client.Pool, jobs, NewExecutorRegistry(), cfg)
	require.NoError(t, p.recoverOrphans(ctx))

	got, err := jobs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.FailureTransient, got.FailureKind)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "dead-pod")

	still, err := jobs.Get(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, still.Status)
}

func TestPool_EndToEndProcessesQueuedJob(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	executor := &stubExecutor{kind: models.JobKindDiscovery, output: "trends:tech:7d"}
	p := NewPool(client.Pool, jobs, NewExecutorRegistry(executor), testQueueConfig())
	p.Start(ctx)
	defer p.Stop()

	job, err := jobs.Create(ctx, models.JobKindDiscovery, "", "tech")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := jobs.Get(ctx, job.ID)
		return err == nil && got.Status == models.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFailureKindOf(t *testing.T) {
	assert.Equal(t, models.FailureAuth, FailureKindOf(Failf(models.FailureAuth, "no token")))
	assert.Equal(t, models.FailureCancelled, FailureKindOf(context.Canceled))
	assert.Equal(t, models.FailureTransient, FailureKindOf(context.DeadlineExceeded))
	assert.Equal(t, models.FailureTransient, FailureKindOf(fmt.Errorf("boom")))
}
