package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/models"
	testdb "github.com/reelforge/reelforge/test/database"
)

func schedulePost(t *testing.T, posts *PostService, videoRef string, due time.Time) *models.ScheduledPost {
	t.Helper()
	post, err := posts.Schedule(context.Background(), &models.ScheduledPost{
		VideoRef:     videoRef,
		Platform:     "tiktok",
		ScheduledFor: due,
		Metadata:     map[string]any{"caption": "watch till the end"},
	})
	require.NoError(t, err)
	return post
}

func TestPostService_ScheduleValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)

	_, err := posts.Schedule(context.Background(), &models.ScheduledPost{Platform: "tiktok"})
	assert.Error(t, err)

	_, err = posts.Schedule(context.Background(), &models.ScheduledPost{VideoRef: "out.mp4"})
	assert.Error(t, err)
}

func TestPostService_ScheduleAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)

	due := time.Now().Add(time.Hour)
	post := schedulePost(t, posts, "s3://reels/outputs/reel_1.mp4", due)
	assert.Equal(t, models.PostStatusPending, post.Status)

	got, err := posts.Get(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://reels/outputs/reel_1.mp4", got.VideoRef)
	assert.Equal(t, "watch till the end", got.Metadata["caption"])
	assert.WithinDuration(t, due.UTC(), got.ScheduledFor, time.Second)
}

func TestPostService_ClaimDueReturnsEarliest(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()
	now := time.Now()

	later := schedulePost(t, posts, "later.mp4", now.Add(-time.Minute))
	earlier := schedulePost(t, posts, "earlier.mp4", now.Add(-time.Hour))
	schedulePost(t, posts, "future.mp4", now.Add(time.Hour))

	claimed, err := posts.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, claimed.ID)
	assert.Equal(t, models.PostStatusPublishing, claimed.Status)
	require.NoError(t, posts.MarkPublished(ctx, earlier.ID, "https://tiktok.com/v/1"))

	claimed, err = posts.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, later.ID, claimed.ID)
	require.NoError(t, posts.MarkFailed(ctx, later.ID, "quota exceeded"))

	// The future post is not due yet.
	_, err = posts.ClaimDue(ctx, now)
	assert.ErrorIs(t, err, ErrNoDuePosts)
}

func TestPostService_ClaimSurvivesCommit(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()
	now := time.Now()

	post := schedulePost(t, posts, "out.mp4", now.Add(-time.Minute))

	claimed, err := posts.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, post.ID, claimed.ID)

	// The claim holds without any finish call: a second sweep finds
	// nothing even though the post was never marked.
	_, err = posts.ClaimDue(ctx, now)
	assert.ErrorIs(t, err, ErrNoDuePosts)

	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, got.Status)
}

func TestPostService_ConcurrentClaimsGetDistinctPosts(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()
	now := time.Now()

	schedulePost(t, posts, "a.mp4", now.Add(-time.Hour))
	schedulePost(t, posts, "b.mp4", now.Add(-time.Minute))

	const sweeps = 4
	results := make(chan string, sweeps)
	var wg sync.WaitGroup
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			post, err := posts.ClaimDue(ctx, now)
			if errors.Is(err, ErrNoDuePosts) {
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			results <- post.ID
		}()
	}
	wg.Wait()
	close(results)

	claimed := map[string]int{}
	for id := range results {
		claimed[id]++
	}
	assert.Len(t, claimed, 2, "both due posts get claimed")
	for id, n := range claimed {
		assert.Equal(t, 1, n, "post %s claimed more than once", id)
	}
}

func TestPostService_ReclaimStaleFailsDeadClaims(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()
	now := time.Now()

	dead := schedulePost(t, posts, "dead.mp4", now.Add(-2*time.Hour))
	fresh := schedulePost(t, posts, "fresh.mp4", now.Add(-time.Hour))

	claimed, err := posts.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, dead.ID, claimed.ID)
	claimed, err = posts.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, fresh.ID, claimed.ID)

	// Backdate the first claim past the TTL, as if its sweep died.
	_, err = client.Pool.Exec(ctx, `
		UPDATE scheduled_posts SET updated_at = now() - interval '1 hour'
		WHERE id = $1`, dead.ID)
	require.NoError(t, err)

	n, err := posts.ReclaimStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := posts.Get(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, got.Status)

	history, err := posts.History(ctx, dead.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "claim expired")

	// The live claim is untouched.
	got, err = posts.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, got.Status)
}

func TestPostService_MarkPublishedWritesHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()

	post := schedulePost(t, posts, "out.mp4", time.Now())
	require.NoError(t, posts.MarkPublished(ctx, post.ID, "https://www.tiktok.com/@creator/video/1"))

	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, got.Status)

	history, err := posts.History(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tiktok", history[0].Platform)
	assert.Equal(t, "https://www.tiktok.com/@creator/video/1", history[0].RemoteURL)
	assert.Empty(t, history[0].Error)
}

func TestPostService_MarkFailedWritesHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()

	post := schedulePost(t, posts, "out.mp4", time.Now())
	require.NoError(t, posts.MarkFailed(ctx, post.ID, "upload rejected"))

	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, got.Status)

	history, err := posts.History(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "upload rejected", history[0].Error)
}

func TestPostService_FinishRequiresPending(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	ctx := context.Background()

	post := schedulePost(t, posts, "out.mp4", time.Now())
	require.NoError(t, posts.MarkPublished(ctx, post.ID, "https://example.com/v/1"))

	err := posts.MarkFailed(ctx, post.ID, "late failure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not awaiting publication")

	// Status and history are untouched by the rejected transition.
	got, err := posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, got.Status)

	history, err := posts.History(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPostService_ListPendingOrdersByDue(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	posts := NewPostService(client.Pool)
	now := time.Now()

	b := schedulePost(t, posts, "b.mp4", now.Add(2*time.Hour))
	a := schedulePost(t, posts, "a.mp4", now.Add(time.Hour))

	got, err := posts.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}
