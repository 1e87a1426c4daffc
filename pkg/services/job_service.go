package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/models"
)

// ErrInvalidTransition is returned when a status write would violate the
// job lifecycle (terminal states never regress; Archived only follows
// Completed).
var ErrInvalidTransition = errors.New("invalid job status transition")

// JobNotifier receives best-effort job status projections. Implementations
// must never fail the write path; errors are logged and dropped.
type JobNotifier interface {
	NotifyJobStatus(ctx context.Context, job *models.Job)
}

// JobService is the durable job store. Writes are idempotent by job id and
// progress is monotone non-decreasing until a terminal transition.
type JobService struct {
	pool     *pgxpool.Pool
	notifier JobNotifier
}

// NewJobService creates a new job service. notifier may be nil.
func NewJobService(pool *pgxpool.Pool, notifier JobNotifier) *JobService {
	return &JobService{pool: pool, notifier: notifier}
}

// Create inserts a queued job and returns it.
func (s *JobService) Create(ctx context.Context, kind models.JobKind, ownerID, inputRef string) (*models.Job, error) {
	if inputRef == "" {
		return nil, fmt.Errorf("job input_ref must not be empty")
	}
	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, kind, owner_id, status, input_ref)
		VALUES ($1, $2, $3, 'queued', $4)
		RETURNING `+jobColumns, id, kind, ownerID, inputRef)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.notify(ctx, job)
	return job, nil
}

// Get returns one job by id.
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanJob(row)
}

// List returns jobs newest-first, optionally filtered by status.
func (s *JobService) List(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = s.pool.Query(ctx, `SELECT `+jobColumns+`
			FROM jobs WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+jobColumns+`
			FROM jobs WHERE deleted_at IS NULL AND status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// SetProgress records a substate label and progress for a running job.
// Progress is monotone: a write lower than the stored value is ignored.
func (s *JobService) SetProgress(ctx context.Context, id, substate string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET substate = $2,
		    progress = GREATEST(progress, $3),
		    updated_at = now()
		WHERE id = $1 AND status = 'running' AND deleted_at IS NULL`,
		id, substate, progress)
	if err != nil {
		return fmt.Errorf("set job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil // not running anymore; progress writes after terminal are dropped
	}
	if job, err := s.Get(ctx, id); err == nil {
		s.notify(ctx, job)
	}
	return nil
}

// Complete transitions a running job to completed with its output.
// Idempotent: completing an already-completed job is a no-op.
func (s *JobService) Complete(ctx context.Context, id, outputRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', progress = 100, substate = '',
		    output_ref = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('queued','running') AND deleted_at IS NULL`,
		id, outputRef)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return fmt.Errorf("complete job %s: %w", id, getErr)
		}
		if current.Status == models.JobStatusCompleted {
			return nil
		}
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, current.Status)
	}
	if job, err := s.Get(ctx, id); err == nil {
		s.notify(ctx, job)
	}
	return nil
}

// Fail transitions a non-terminal job to failed with a failure kind and an
// operator-legible message. Idempotent on already-failed jobs.
func (s *JobService) Fail(ctx context.Context, id string, kind models.FailureKind, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', failure_kind = $2, error_message = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('queued','running') AND deleted_at IS NULL`,
		id, kind, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return fmt.Errorf("fail job %s: %w", id, getErr)
		}
		if current.Status.Terminal() {
			return nil
		}
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, current.Status)
	}
	if job, err := s.Get(ctx, id); err == nil {
		s.notify(ctx, job)
	}
	return nil
}

// Archive moves a completed job to archived, the only transition allowed
// out of Completed.
func (s *JobService) Archive(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'archived', updated_at = now()
		WHERE id = $1 AND status = 'completed' AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("archive job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only completed jobs may be archived", ErrInvalidTransition)
	}
	return nil
}

// HasNonTerminalForInput reports whether any queued or running job exists
// for the given input_ref. This backs the at-most-one-job-per-source
// invariant of the autopilot controller.
func (s *JobService) HasNonTerminalForInput(ctx context.Context, inputRef string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE input_ref = $1 AND status IN ('queued','running') AND deleted_at IS NULL`,
		inputRef).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check non-terminal jobs for input: %w", err)
	}
	return count > 0, nil
}

// CompletedWithOutput returns completed jobs whose output_ref matches ref.
func (s *JobService) CompletedWithOutput(ctx context.Context, ref string) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+`
		FROM jobs WHERE output_ref = $1 AND status IN ('completed','archived') AND deleted_at IS NULL`, ref)
	if err != nil {
		return nil, fmt.Errorf("query jobs by output_ref: %w", err)
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *JobService) notify(ctx context.Context, job *models.Job) {
	if s.notifier == nil {
		return
	}
	// Best-effort: a dropped notification must never corrupt job state.
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("Job notifier panicked", "job_id", job.ID, "panic", r)
			}
		}()
		s.notifier.NotifyJobStatus(ctx, job)
	}()
}

const jobColumns = `id, kind, owner_id, status, substate, progress, input_ref,
	output_ref, failure_kind, error_message, pod_id, started_at, completed_at,
	last_heartbeat_at, created_at, updated_at, deleted_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j           models.Job
		failureKind string
	)
	err := row.Scan(&j.ID, &j.Kind, &j.OwnerID, &j.Status, &j.Substate, &j.Progress,
		&j.InputRef, &j.OutputRef, &failureKind, &j.ErrorMessage, &j.PodID,
		&j.StartedAt, &j.CompletedAt, &j.LastHeartbeatAt, &j.CreatedAt,
		&j.UpdatedAt, &j.DeletedAt)
	if err != nil {
		return nil, err
	}
	j.FailureKind = models.FailureKind(failureKind)
	return &j, nil
}

// Touch refreshes updated_at; used sparingly by maintenance paths.
func (s *JobService) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET updated_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}
