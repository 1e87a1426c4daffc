// Package events broadcasts best-effort job status projections over
// PostgreSQL NOTIFY. Observers (dashboards, the autopilot chain) subscribe
// through the Listener; dropped notifications never affect job state.
package events

import (
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// JobsChannel is the pg_notify channel carrying job status payloads.
const JobsChannel = "reelforge_jobs"

// JobStatusPayload is the wire projection of a job transition.
type JobStatusPayload struct {
	JobID       string             `json:"job_id"`
	Kind        models.JobKind     `json:"kind"`
	Status      models.JobStatus   `json:"status"`
	Substate    string             `json:"substate,omitempty"`
	Progress    int                `json:"progress"`
	InputRef    string             `json:"input_ref"`
	OutputRef   string             `json:"output_ref,omitempty"`
	FailureKind models.FailureKind `json:"failure_kind,omitempty"`
	Timestamp   string             `json:"timestamp"`
}

// PayloadFromJob builds the broadcast projection for a job.
func PayloadFromJob(job *models.Job) JobStatusPayload {
	p := JobStatusPayload{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Substate:    job.Substate,
		Progress:    job.Progress,
		InputRef:    job.InputRef,
		FailureKind: job.FailureKind,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if job.OutputRef != nil {
		p.OutputRef = *job.OutputRef
	}
	return p
}
