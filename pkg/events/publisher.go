package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/reelforge/reelforge/pkg/models"
)

// Publisher broadcasts job status payloads via pg_notify. Transient only:
// the jobs table itself is the durable record, so no event rows are
// persisted. All publishes are best-effort.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a publisher on the shared database handle.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// NotifyJobStatus implements services.JobNotifier.
func (p *Publisher) NotifyJobStatus(ctx context.Context, job *models.Job) {
	payload := PayloadFromJob(job)
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal job status payload", "job_id", job.ID, "error", err)
		return
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, JobsChannel, string(data)); err != nil {
		slog.Warn("Failed to notify job status",
			"job_id", job.ID, "status", job.Status, "error", err)
	}
}
