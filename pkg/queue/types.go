// Package queue is the durable work-queue runtime. Jobs live in Postgres;
// workers claim them with FOR UPDATE SKIP LOCKED in creation order, so the
// database itself is the broker and any replica can pick up any job.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelforge/reelforge/pkg/models"
)

// ErrNoJobsAvailable indicates the queue had no claimable job.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrAtCapacity indicates the global running-job limit is reached.
var ErrAtCapacity = errors.New("queue at max concurrent jobs")

// ProgressReporter lets an executor surface substate and progress while it
// runs. Writes after a terminal transition are dropped by the store.
type ProgressReporter interface {
	Report(ctx context.Context, substate string, progress int)
}

// Executor runs one job kind. Execute returns the output ref on success;
// a returned error fails the job with the classified kind.
type Executor interface {
	Kind() models.JobKind
	Execute(ctx context.Context, job *models.Job, progress ProgressReporter) (outputRef string, err error)
}

// ExecutorRegistry dispatches jobs to executors by kind.
type ExecutorRegistry struct {
	executors map[models.JobKind]Executor
}

// NewExecutorRegistry builds a registry from the given executors.
func NewExecutorRegistry(executors ...Executor) *ExecutorRegistry {
	r := &ExecutorRegistry{executors: make(map[models.JobKind]Executor, len(executors))}
	for _, e := range executors {
		r.executors[e.Kind()] = e
	}
	return r
}

// Get returns the executor for a job kind, or nil.
func (r *ExecutorRegistry) Get(kind models.JobKind) Executor {
	return r.executors[kind]
}

// ExecutionError pairs a failure kind with the underlying error so the
// worker can record an accurate failure classification.
type ExecutionError struct {
	Kind models.FailureKind
	Err  error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Failf builds a classified execution error.
func Failf(kind models.FailureKind, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// FailureKindOf extracts the failure classification from an executor error.
func FailureKindOf(err error) models.FailureKind {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTransient
	}
	if errors.Is(err, context.Canceled) {
		return models.FailureCancelled
	}
	return models.FailureTransient
}
