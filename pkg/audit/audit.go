// Package audit produces the periodic system integrity report. Reports go
// to the Redis audit ring so operators can read recent history without
// touching Postgres.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/cache"
)

// Redis keys for the audit trail.
const (
	LogRingKey    = "sentinel:security_logs"
	HealthKey     = "sentinel:security_health"
	LogRingMaxLen = 1000
)

// healthTTL keeps the health snapshot alive across two audit cycles.
const healthTTL = 48 * time.Hour

// Report is one audit result.
type Report struct {
	// IntegrityScore is 0..100; 100 means no findings.
	IntegrityScore float64   `json:"integrity_score"`
	Findings       []Finding `json:"findings"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Finding is one detected issue with its score penalty.
type Finding struct {
	Check   string  `json:"check"`
	Detail  string  `json:"detail"`
	Penalty float64 `json:"penalty"`
}

// Auditor runs the integrity checks.
type Auditor struct {
	pool *pgxpool.Pool
	kv   cache.Cache
	now  func() time.Time
}

// New builds an auditor.
func New(pool *pgxpool.Pool, kv cache.Cache) *Auditor {
	return &Auditor{pool: pool, kv: kv, now: time.Now}
}

// Run executes all checks, pushes the report onto the audit ring and
// refreshes the health snapshot.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	now := a.now().UTC()
	report := &Report{IntegrityScore: 100, GeneratedAt: now}

	checks := []func(context.Context, time.Time) (*Finding, error){
		a.checkExpiredTokens,
		a.checkStuckJobs,
		a.checkFailureRate,
		a.checkStaleNiches,
	}
	for _, check := range checks {
		finding, err := check(ctx, now)
		if err != nil {
			return nil, err
		}
		if finding != nil {
			report.Findings = append(report.Findings, *finding)
			report.IntegrityScore -= finding.Penalty
		}
	}
	if report.IntegrityScore < 0 {
		report.IntegrityScore = 0
	}

	if err := a.kv.PushRing(ctx, LogRingKey, report, LogRingMaxLen); err != nil {
		slog.Warn("Failed to push audit report to ring", "error", err)
	}
	if err := a.kv.SetJSON(ctx, HealthKey, report, healthTTL); err != nil {
		slog.Warn("Failed to write audit health snapshot", "error", err)
	}
	slog.Info("Audit complete", "integrity_score", report.IntegrityScore, "findings", len(report.Findings))
	return report, nil
}

// checkExpiredTokens flags stored credentials that are already expired.
func (a *Auditor) checkExpiredTokens(ctx context.Context, now time.Time) (*Finding, error) {
	var count int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM social_tokens
		WHERE expires_at IS NOT NULL AND expires_at < $1`, now).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count expired tokens: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &Finding{
		Check:   "expired_tokens",
		Detail:  fmt.Sprintf("%d platform credentials are expired", count),
		Penalty: 15,
	}, nil
}

// checkStuckJobs flags running jobs without a recent heartbeat that the
// orphan detector has not yet recovered.
func (a *Auditor) checkStuckJobs(ctx context.Context, now time.Time) (*Finding, error) {
	var count int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = 'running' AND deleted_at IS NULL
		  AND last_heartbeat_at < $1`, now.Add(-15*time.Minute)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count stuck jobs: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &Finding{
		Check:   "stuck_jobs",
		Detail:  fmt.Sprintf("%d running jobs have no heartbeat for 15m", count),
		Penalty: 20,
	}, nil
}

// checkFailureRate flags a failure rate over 50% across the last day's
// terminal jobs.
func (a *Auditor) checkFailureRate(ctx context.Context, now time.Time) (*Finding, error) {
	var failed, terminal int
	err := a.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*)
		FROM jobs
		WHERE status IN ('completed','failed','archived')
		  AND deleted_at IS NULL
		  AND updated_at > $1`, now.Add(-24*time.Hour)).Scan(&failed, &terminal)
	if err != nil {
		return nil, fmt.Errorf("count job outcomes: %w", err)
	}
	if terminal == 0 || failed*2 <= terminal {
		return nil, nil
	}
	return &Finding{
		Check:   "failure_rate",
		Detail:  fmt.Sprintf("%d of %d jobs failed in the last 24h", failed, terminal),
		Penalty: 25,
	}, nil
}

// checkStaleNiches flags active niches not scanned in 48 hours.
func (a *Auditor) checkStaleNiches(ctx context.Context, now time.Time) (*Finding, error) {
	var count int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM monitored_niches
		WHERE is_active
		  AND (last_scanned_at IS NULL OR last_scanned_at < $1)`,
		now.Add(-48*time.Hour)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count stale niches: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &Finding{
		Check:   "stale_niches",
		Detail:  fmt.Sprintf("%d active niches have not been scanned for 48h", count),
		Penalty: 10,
	}, nil
}

// RecentReports reads the newest n reports from the audit ring.
func (a *Auditor) RecentReports(ctx context.Context, n int64) ([]string, error) {
	return a.kv.RangeRing(ctx, LogRingKey, n)
}
