package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
)

// Worker polls the queue, claims one job at a time and executes it.
type Worker struct {
	id        int
	podID     string
	pool      *pgxpool.Pool
	jobs      *services.JobService
	registry  *ExecutorRegistry
	cfg       *config.QueueConfig
	active    *activeJobs
	log       *slog.Logger
}

func newWorker(id int, podID string, pool *pgxpool.Pool, jobs *services.JobService, registry *ExecutorRegistry, cfg *config.QueueConfig, active *activeJobs) *Worker {
	return &Worker{
		id:       id,
		podID:    podID,
		pool:     pool,
		jobs:     jobs,
		registry: registry,
		cfg:      cfg,
		active:   active,
		log:      slog.With("worker", id, "pod", podID),
	}
}

// run is the worker's poll loop. Jittered polling avoids thundering-herd
// claims across replicas.
func (w *Worker) run(ctx context.Context) {
	w.log.Info("Worker started")
	for {
		interval := w.cfg.PollInterval
		if j := w.cfg.PollIntervalJitter; j > 0 {
			interval += time.Duration(rand.Int63n(int64(2*j))) - j
		}
		select {
		case <-ctx.Done():
			w.log.Info("Worker stopping")
			return
		case <-time.After(interval):
		}

		job, err := w.claim(ctx)
		switch {
		case errors.Is(err, ErrNoJobsAvailable), errors.Is(err, ErrAtCapacity):
			continue
		case err != nil:
			if ctx.Err() == nil {
				w.log.Error("Claim failed", "error", err)
			}
			continue
		}
		w.execute(ctx, job)
	}
}

// claim atomically takes the oldest queued job, respecting the global
// concurrency limit. Both the capacity check and the claim run in one
// transaction so two replicas cannot both claim past the limit.
func (w *Worker) claim(ctx context.Context) (*models.Job, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var running int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = 'running' AND deleted_at IS NULL`).Scan(&running); err != nil {
		return nil, fmt.Errorf("count running jobs: %w", err)
	}
	if running >= w.cfg.MaxConcurrentJobs {
		return nil, ErrAtCapacity
	}

	row := tx.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE status = 'queued' AND deleted_at IS NULL
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs SET
			status = 'running',
			pod_id = $1,
			started_at = now(),
			last_heartbeat_at = now(),
			updated_at = now()
		FROM next
		WHERE jobs.id = next.id
		RETURNING jobs.id, jobs.kind, jobs.owner_id, jobs.input_ref`, w.podID)

	var claimed struct {
		id, kind, ownerID, inputRef string
	}
	if err := row.Scan(&claimed.id, &claimed.kind, &claimed.ownerID, &claimed.inputRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return w.jobs.Get(ctx, claimed.id)
}

// execute runs the claimed job under its kind's deadline, heartbeating
// throughout, and records the terminal status.
func (w *Worker) execute(ctx context.Context, job *models.Job) {
	log := w.log.With("job_id", job.ID, "kind", job.Kind)

	executor := w.registry.Get(job.Kind)
	if executor == nil {
		log.Error("No executor for job kind")
		_ = w.jobs.Fail(ctx, job.ID, models.FailureFatal, fmt.Sprintf("no executor for kind %q", job.Kind))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.TimeoutFor(string(job.Kind)))
	w.active.add(job.ID, cancel)
	defer w.active.remove(job.ID)
	defer cancel()

	stopHeartbeat := w.startHeartbeat(ctx, job.ID)
	defer stopHeartbeat()

	log.Info("Executing job")
	outputRef, err := executor.Execute(jobCtx, job, &reporter{jobs: w.jobs, jobID: job.ID})
	if err != nil {
		kind := FailureKindOf(err)
		if jobCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			kind = models.FailureTransient
		}
		log.Error("Job failed", "failure_kind", kind, "error", err)
		// Terminal writes use the parent context; jobCtx may already be dead.
		if ferr := w.jobs.Fail(context.WithoutCancel(ctx), job.ID, kind, err.Error()); ferr != nil {
			log.Error("Failed to record job failure", "error", ferr)
		}
		return
	}

	if cerr := w.jobs.Complete(context.WithoutCancel(ctx), job.ID, outputRef); cerr != nil {
		log.Error("Failed to record job completion", "error", cerr)
		return
	}
	log.Info("Job completed", "output_ref", outputRef)
}

// startHeartbeat refreshes last_heartbeat_at until the returned stop func
// runs. Orphan detection keys off this timestamp.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_, err := w.pool.Exec(hbCtx, `
					UPDATE jobs SET last_heartbeat_at = now()
					WHERE id = $1 AND status = 'running' AND pod_id = $2`,
					jobID, w.podID)
				if err != nil && hbCtx.Err() == nil {
					w.log.Warn("Heartbeat write failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// reporter adapts JobService.SetProgress to the executor surface.
type reporter struct {
	jobs  *services.JobService
	jobID string
}

func (r *reporter) Report(ctx context.Context, substate string, progress int) {
	if err := r.jobs.SetProgress(ctx, r.jobID, substate, progress); err != nil {
		slog.Warn("Progress write failed", "job_id", r.jobID, "error", err)
	}
}
