package models

import "time"

// JobKind identifies the executor a queued job is dispatched to.
type JobKind string

// Job kinds.
const (
	JobKindDiscovery       JobKind = "discovery"
	JobKindTransform       JobKind = "download_and_process"
	JobKindAutopilotPost   JobKind = "autopilot_publish"
	JobKindScheduledPost   JobKind = "scheduled_post"
	JobKindAuditReport     JobKind = "audit_report"
	JobKindStorageMigrate  JobKind = "storage_migrate"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses. Once Completed, a job may only move to Archived.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusArchived  JobStatus = "archived"
)

// Terminal reports whether the status admits no further transitions
// (Archived is reachable from Completed only).
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusArchived
}

// FailureKind classifies job and publisher failures.
type FailureKind string

// Failure kinds.
const (
	FailureTransient  FailureKind = "transient"
	FailureAuth       FailureKind = "auth"
	FailureQuota      FailureKind = "quota"
	FailureProtocol   FailureKind = "protocol"
	FailureValidation FailureKind = "validation"
	FailureFatal      FailureKind = "fatal"
	FailureCancelled  FailureKind = "cancelled"
	FailureInit       FailureKind = "init"
	FailureChunk      FailureKind = "chunk"
	FailureFinalize   FailureKind = "finalize"
)

// Job is a durable record of a discovery, transform or publish task.
// Substate is a free-form progress label ("Downloading", "Rendering", ...)
// paired with an integer progress in [0,100].
type Job struct {
	ID              string      `json:"id"`
	Kind            JobKind     `json:"kind"`
	OwnerID         string      `json:"owner_id"`
	Status          JobStatus   `json:"status"`
	Substate        string      `json:"substate,omitempty"`
	Progress        int         `json:"progress"`
	InputRef        string      `json:"input_ref"`
	OutputRef       *string     `json:"output_ref,omitempty"`
	FailureKind     FailureKind `json:"failure_kind,omitempty"`
	ErrorMessage    *string     `json:"error_message,omitempty"`
	PodID           *string     `json:"pod_id,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	LastHeartbeatAt *time.Time  `json:"last_heartbeat_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	DeletedAt       *time.Time  `json:"deleted_at,omitempty"`
}

// PostStatus is the scheduled-post lifecycle state.
type PostStatus string

// Scheduled post statuses. A claimed post sits in publishing until the
// upload outcome is recorded.
const (
	PostStatusPending    PostStatus = "pending"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
)

// ScheduledPost is a materialized future publication. The scheduler fires
// at most once per (id, non-terminal) transition.
type ScheduledPost struct {
	ID           string         `json:"id"`
	VideoRef     string         `json:"video_ref"`
	Platform     string         `json:"platform"`
	AccountID    string         `json:"account_id"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Status       PostStatus     `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// PostHistoryEntry records a single publish outcome.
type PostHistoryEntry struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	Platform   string    `json:"platform"`
	RemoteURL  string    `json:"remote_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
