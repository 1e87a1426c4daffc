package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/database"
	testdb "github.com/reelforge/reelforge/test/database"
)

func newTestAuditor(t *testing.T) (*Auditor, *database.Client, cache.Cache) {
	t.Helper()
	client := testdb.NewTestClient(t)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	kv := cache.NewRedisCacheFromClient(rc)

	return New(client.Pool, kv), client, kv
}

func TestAuditor_CleanSystemScoresFull(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, _, kv := newTestAuditor(t)
	ctx := context.Background()

	report, err := a.Run(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100, report.IntegrityScore, 1e-9)
	assert.Empty(t, report.Findings)

	// Report lands on the ring and the health snapshot.
	ring, err := kv.RangeRing(ctx, LogRingKey, 10)
	require.NoError(t, err)
	require.Len(t, ring, 1)

	var latest Report
	require.NoError(t, json.Unmarshal([]byte(ring[0]), &latest))
	assert.InDelta(t, 100, latest.IntegrityScore, 1e-9)

	var health Report
	hit, err := kv.GetJSON(ctx, HealthKey, &health)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestAuditor_ExpiredTokensPenalty(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	_, err := client.Pool.Exec(ctx, `
		INSERT INTO social_tokens (id, platform, account_handle, access_token, expires_at)
		VALUES ('t1', 'tiktok', 'creator', 'secret', now() - interval '1 hour')`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "expired_tokens", report.Findings[0].Check)
	assert.InDelta(t, 85, report.IntegrityScore, 1e-9)
}

func TestAuditor_StuckJobsPenalty(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	_, err := client.Pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, input_ref, status, pod_id, last_heartbeat_at)
		VALUES ('j1', 'discovery', 'tech', 'running', 'pod-1', now() - interval '30 minutes')`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "stuck_jobs", report.Findings[0].Check)
	assert.InDelta(t, 80, report.IntegrityScore, 1e-9)
}

func TestAuditor_FailureRatePenalty(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	// Two failed, one completed inside the window: 2/3 > 50%.
	_, err := client.Pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, input_ref, status) VALUES
		('f1', 'publish', 'a', 'failed'),
		('f2', 'publish', 'b', 'failed'),
		('c1', 'publish', 'c', 'completed')`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "failure_rate", report.Findings[0].Check)
	assert.InDelta(t, 75, report.IntegrityScore, 1e-9)
}

func TestAuditor_FailureRateIgnoresOldJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	_, err := client.Pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, input_ref, status, updated_at)
		VALUES ('f1', 'publish', 'a', 'failed', now() - interval '3 days')`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestAuditor_StaleNichesPenalty(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	// Never scanned counts as stale; inactive niches do not.
	_, err := client.Pool.Exec(ctx, `
		INSERT INTO monitored_niches (niche, is_active, last_scanned_at) VALUES
		('tech', true, NULL),
		('fitness', false, NULL),
		('food', true, now())`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "stale_niches", report.Findings[0].Check)
	assert.Contains(t, report.Findings[0].Detail, "1 active niches")
	assert.InDelta(t, 90, report.IntegrityScore, 1e-9)
}

func TestAuditor_ScoreFloorsAtZero(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, client, _ := newTestAuditor(t)
	ctx := context.Background()

	// All four checks fire at once; total penalty caps below zero.
	_, err := client.Pool.Exec(ctx, `
		INSERT INTO social_tokens (id, platform, account_handle, access_token, expires_at)
		VALUES ('t1', 'tiktok', 'creator', 'secret', now() - interval '1 hour')`)
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, input_ref, status, pod_id, last_heartbeat_at) VALUES
		('j1', 'discovery', 'tech', 'running', 'pod-1', now() - interval '30 minutes')`)
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, input_ref, status) VALUES
		('f1', 'publish', 'a', 'failed'),
		('f2', 'publish', 'b', 'failed')`)
	require.NoError(t, err)
	_, err = client.Pool.Exec(ctx, `
		INSERT INTO monitored_niches (niche, is_active) VALUES ('tech', true)`)
	require.NoError(t, err)

	report, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Findings, 4)
	assert.InDelta(t, 30, report.IntegrityScore, 1e-9)

	// Four penalties: 15 + 20 + 25 + 10.
	var total float64
	for _, f := range report.Findings {
		total += f.Penalty
	}
	assert.InDelta(t, 70, total, 1e-9)
}

func TestAuditor_RingKeepsNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	a, _, kv := newTestAuditor(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Hour)
		a.now = func() time.Time { return stamp }
		_, err := a.Run(ctx)
		require.NoError(t, err)
	}

	ring, err := kv.RangeRing(ctx, LogRingKey, 2)
	require.NoError(t, err)
	require.Len(t, ring, 2)

	var newest Report
	require.NoError(t, json.Unmarshal([]byte(ring[0]), &newest))
	assert.Equal(t, base.Add(2*time.Hour), newest.GeneratedAt)

	recent, err := a.RecentReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}
