package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/executors"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
	testdb "github.com/reelforge/reelforge/test/database"
)

type fakeUploader struct {
	url    string
	err    error
	inputs []*executors.PublishInput
}

func (u *fakeUploader) Upload(_ context.Context, input *executors.PublishInput) (string, error) {
	u.inputs = append(u.inputs, input)
	return u.url, u.err
}

type fakeAutopilot struct {
	niches []string
	err    error
}

func (a *fakeAutopilot) RunNiche(_ context.Context, niche string) error {
	a.niches = append(a.niches, niche)
	return a.err
}

func TestNicheSweep_EnqueuesDiscoveryOncePerNiche(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	niches := services.NewNicheService(client.Pool)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	require.NoError(t, niches.Upsert(ctx, "tech", true))
	require.NoError(t, niches.Upsert(ctx, "fitness", true))
	require.NoError(t, niches.Upsert(ctx, "parked", false))

	task := NicheSweep(config.DefaultSchedulerConfig(), niches, jobs, nil)
	require.NoError(t, task.Run(ctx))

	queued, err := jobs.List(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	// A second sweep finds the discovery jobs still pending and enqueues
	// nothing new.
	require.NoError(t, task.Run(ctx))
	queued, err = jobs.List(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	// Both swept niches got their scan timestamp.
	active, err := niches.ListActive(ctx)
	require.NoError(t, err)
	for _, n := range active {
		assert.NotNil(t, n.LastScannedAt, n.Niche)
	}
}

func TestNicheSweep_AutopilotRunsFullCycle(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	niches := services.NewNicheService(client.Pool)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	require.NoError(t, niches.Upsert(ctx, "tech", true))

	auto := &fakeAutopilot{}
	task := NicheSweep(config.DefaultSchedulerConfig(), niches, jobs, auto)
	require.NoError(t, task.Run(ctx))

	assert.Equal(t, []string{"tech"}, auto.niches)

	// Autopilot handles its own job creation; the sweep enqueues nothing.
	queued, err := jobs.List(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestNicheSweep_AutopilotFailureSkipsMarkScanned(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	niches := services.NewNicheService(client.Pool)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	require.NoError(t, niches.Upsert(ctx, "tech", true))

	auto := &fakeAutopilot{err: errors.New("discovery exploded")}
	task := NicheSweep(config.DefaultSchedulerConfig(), niches, jobs, auto)
	require.NoError(t, task.Run(ctx))

	active, err := niches.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].LastScannedAt)
}

func TestPostSweep_PublishesDuePosts(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := services.NewPostService(client.Pool)
	ctx := context.Background()

	due, err := posts.Schedule(ctx, &models.ScheduledPost{
		VideoRef:     "/data/outputs/reel_1.mp4",
		Platform:     "tiktok",
		ScheduledFor: time.Now().Add(-time.Minute),
		Metadata:     map[string]any{"title": "Robot dog", "caption": "wait for it"},
	})
	require.NoError(t, err)
	future, err := posts.Schedule(ctx, &models.ScheduledPost{
		VideoRef:     "/data/outputs/reel_2.mp4",
		Platform:     "tiktok",
		ScheduledFor: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	uploader := &fakeUploader{url: "https://www.tiktok.com/@creator/video/1"}
	task := PostSweep(config.DefaultSchedulerConfig(), posts, uploader)
	require.NoError(t, task.Run(ctx))

	require.Len(t, uploader.inputs, 1)
	assert.Equal(t, "/data/outputs/reel_1.mp4", uploader.inputs[0].VideoRef)
	assert.Equal(t, "Robot dog", uploader.inputs[0].Title)
	assert.Equal(t, "wait for it", uploader.inputs[0].Caption)

	published, err := posts.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, published.Status)

	pending, err := posts.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, pending.Status)

	history, err := posts.History(ctx, due.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uploader.url, history[0].RemoteURL)
}

func TestPostSweep_UploadFailureMarksFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := services.NewPostService(client.Pool)
	ctx := context.Background()

	post, err := posts.Schedule(ctx, &models.ScheduledPost{
		VideoRef:     "/data/outputs/reel_1.mp4",
		Platform:     "tiktok",
		ScheduledFor: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	uploader := &fakeUploader{err: errors.New("upload rejected by platform")}
	task := PostSweep(config.DefaultSchedulerConfig(), posts, uploader)
	require.NoError(t, task.Run(ctx))

	failed, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, failed.Status)

	history, err := posts.History(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "upload rejected")
}

func TestPostSweep_SkipsClaimedPosts(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := services.NewPostService(client.Pool)
	ctx := context.Background()

	post, err := posts.Schedule(ctx, &models.ScheduledPost{
		VideoRef:     "/data/outputs/reel_1.mp4",
		Platform:     "tiktok",
		ScheduledFor: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	// Another replica holds the claim; its upload is still in flight.
	claimed, err := posts.ClaimDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, post.ID, claimed.ID)

	uploader := &fakeUploader{url: "https://www.tiktok.com/@creator/video/1"}
	task := PostSweep(config.DefaultSchedulerConfig(), posts, uploader)
	require.NoError(t, task.Run(ctx))

	assert.Empty(t, uploader.inputs, "a claimed post never reaches the uploader")
	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, got.Status)
}

func TestPostSweep_FailsDeadClaims(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := services.NewPostService(client.Pool)
	ctx := context.Background()

	post, err := posts.Schedule(ctx, &models.ScheduledPost{
		VideoRef:     "/data/outputs/reel_1.mp4",
		Platform:     "tiktok",
		ScheduledFor: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = posts.ClaimDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		UPDATE scheduled_posts SET updated_at = now() - interval '1 hour'
		WHERE id = $1`, post.ID)
	require.NoError(t, err)

	uploader := &fakeUploader{url: "https://www.tiktok.com/@creator/video/1"}
	task := PostSweep(config.DefaultSchedulerConfig(), posts, uploader)
	require.NoError(t, task.Run(ctx))

	// The dead claim is failed, not re-uploaded: the first invocation was
	// the only one.
	assert.Empty(t, uploader.inputs)
	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, got.Status)

	history, err := posts.History(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "claim expired")
}

func TestAuditSweep_EnqueuesOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	task := AuditSweep(config.DefaultSchedulerConfig(), jobs)
	require.NoError(t, task.Run(ctx))
	require.NoError(t, task.Run(ctx))

	queued, err := jobs.List(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, models.JobKindAuditReport, queued[0].Kind)
	assert.Equal(t, "scheduler", queued[0].OwnerID)
}

func TestStorageSweep_EnqueuesLifecycleJob(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	jobs := services.NewJobService(client.Pool, nil)
	ctx := context.Background()

	task := StorageSweep(config.DefaultSchedulerConfig(), jobs)
	require.NoError(t, task.Run(ctx))

	queued, err := jobs.List(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, models.JobKindStorageMigrate, queued[0].Kind)
	assert.Equal(t, "outputs", queued[0].InputRef)
}
