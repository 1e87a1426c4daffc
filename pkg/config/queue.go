package config

import "time"

// QueueConfig contains queue and worker pool configuration. These values
// control how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentJobs is the global limit of concurrently running jobs
	// across ALL replicas. Enforced by a database COUNT(*) check.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// PollInterval is the base interval for checking queued jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// DiscoveryTimeout bounds a discovery job's wall clock.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// TransformTimeout bounds a transform job's wall clock.
	TransformTimeout time.Duration `yaml:"transform_timeout"`

	// PublishTimeout bounds a publish job's wall clock.
	PublishTimeout time.Duration `yaml:"publish_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active jobs to
	// complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a worker refreshes last_heartbeat_at
	// on its claimed job.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often to scan for orphaned jobs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a running job can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentJobs:       4,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		DiscoveryTimeout:        60 * time.Second,
		TransformTimeout:        30 * time.Minute,
		PublishTimeout:          10 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

// TimeoutFor returns the wall-clock deadline for a job kind.
func (c *QueueConfig) TimeoutFor(kind string) time.Duration {
	switch kind {
	case "discovery":
		return c.DiscoveryTimeout
	case "download_and_process":
		return c.TransformTimeout
	default:
		return c.PublishTimeout
	}
}
