package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
)

// activeJobs tracks cancel funcs for jobs running on this replica so the
// API can cancel them in flight.
type activeJobs struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newActiveJobs() *activeJobs {
	return &activeJobs{cancels: make(map[string]context.CancelFunc)}
}

func (a *activeJobs) add(jobID string, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels[jobID] = cancel
}

func (a *activeJobs) remove(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cancels, jobID)
}

func (a *activeJobs) cancel(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	cancel, ok := a.cancels[jobID]
	if ok {
		cancel()
	}
	return ok
}

func (a *activeJobs) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cancels)
}

// Pool runs the worker goroutines plus the orphan detector for one replica.
type Pool struct {
	podID    string
	pool     *pgxpool.Pool
	jobs     *services.JobService
	registry *ExecutorRegistry
	cfg      *config.QueueConfig
	active   *activeJobs

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds the worker pool. The pod id comes from the environment
// (POD_NAME) or is generated, and is stamped onto every claimed job.
func NewPool(pgPool *pgxpool.Pool, jobs *services.JobService, registry *ExecutorRegistry, cfg *config.QueueConfig) *Pool {
	podID := os.Getenv("POD_NAME")
	if podID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "replica"
		}
		podID = fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
	}
	return &Pool{
		podID:    podID,
		pool:     pgPool,
		jobs:     jobs,
		registry: registry,
		cfg:      cfg,
		active:   newActiveJobs(),
	}
}

// PodID returns this replica's identifier.
func (p *Pool) PodID() string { return p.podID }

// Start launches the workers and the orphan detector.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := newWorker(i, p.podID, p.pool, p.jobs, p.registry, p.cfg, p.active)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			worker.run(runCtx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.orphanLoop(runCtx)
	}()

	slog.Info("Worker pool started", "pod", p.podID, "workers", p.cfg.WorkerCount)
}

// Cancel cancels a job running on this replica. Returns false when the job
// is not active here (it may be running on another replica).
func (p *Pool) Cancel(jobID string) bool {
	return p.active.cancel(jobID)
}

// Stop shuts the pool down, waiting up to the graceful timeout for active
// jobs to drain before cancelling them.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	slog.Info("Worker pool stopping", "active_jobs", p.active.count())

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	// Workers stop polling immediately; running jobs get the grace period
	// because their contexts descend from the run context only through the
	// per-job timeout.
	deadline := time.NewTimer(p.cfg.GracefulShutdownTimeout)
	defer deadline.Stop()
	p.cancel()
	select {
	case <-done:
		slog.Info("Worker pool stopped cleanly")
	case <-deadline.C:
		slog.Warn("Worker pool shutdown timed out", "active_jobs", p.active.count())
	}
}

// orphanLoop recovers jobs whose worker died: running rows with a stale
// heartbeat are failed as transient so the autopilot can requeue them.
func (p *Pool) orphanLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.recoverOrphans(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Orphan recovery failed", "error", err)
			}
		}
	}
}

func (p *Pool) recoverOrphans(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, `
		SELECT id, pod_id FROM jobs
		WHERE status = 'running'
		  AND deleted_at IS NULL
		  AND last_heartbeat_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(p.cfg.OrphanThreshold.Seconds())))
	if err != nil {
		return fmt.Errorf("query orphans: %w", err)
	}
	defer rows.Close()

	type orphan struct {
		id    string
		podID *string
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.podID); err != nil {
			return err
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range orphans {
		pod := ""
		if o.podID != nil {
			pod = *o.podID
		}
		slog.Warn("Recovering orphaned job", "job_id", o.id, "stale_pod", pod)
		if err := p.jobs.Fail(ctx, o.id, models.FailureTransient,
			fmt.Sprintf("orphaned: no heartbeat from pod %s within %s", pod, p.cfg.OrphanThreshold)); err != nil {
			slog.Error("Failed to mark orphan failed", "job_id", o.id, "error", err)
		}
	}
	return nil
}
