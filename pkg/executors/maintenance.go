package executors

import (
	"context"
	"fmt"

	"github.com/reelforge/reelforge/pkg/audit"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/storage"
)

// AuditExecutor runs audit_report jobs.
type AuditExecutor struct {
	auditor *audit.Auditor
}

// NewAuditExecutor builds the executor.
func NewAuditExecutor(auditor *audit.Auditor) *AuditExecutor {
	return &AuditExecutor{auditor: auditor}
}

// Kind implements queue.Executor.
func (e *AuditExecutor) Kind() models.JobKind { return models.JobKindAuditReport }

// Execute produces one audit report.
func (e *AuditExecutor) Execute(ctx context.Context, job *models.Job, progress queue.ProgressReporter) (string, error) {
	progress.Report(ctx, "Auditing", 20)
	report, err := e.auditor.Run(ctx)
	if err != nil {
		return "", queue.Failf(models.FailureTransient, "audit: %v", err)
	}
	return fmt.Sprintf("integrity_score:%.2f", report.IntegrityScore), nil
}

// StorageExecutor runs storage_migrate jobs.
type StorageExecutor struct {
	lifecycle *storage.Lifecycle
}

// NewStorageExecutor builds the executor.
func NewStorageExecutor(lifecycle *storage.Lifecycle) *StorageExecutor {
	return &StorageExecutor{lifecycle: lifecycle}
}

// Kind implements queue.Executor.
func (e *StorageExecutor) Kind() models.JobKind { return models.JobKindStorageMigrate }

// Execute runs one lifecycle sweep.
func (e *StorageExecutor) Execute(ctx context.Context, job *models.Job, progress queue.ProgressReporter) (string, error) {
	progress.Report(ctx, "Sweeping storage", 20)
	report, err := e.lifecycle.Sweep(ctx)
	if err != nil {
		return "", queue.Failf(models.FailureTransient, "storage sweep: %v", err)
	}
	return fmt.Sprintf("migrated:%d reclaimed:%d", report.MigratedFiles, report.ReclaimedKeys), nil
}
