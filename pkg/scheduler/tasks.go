package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/executors"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
)

// Task names, also used for manual triggering through the API.
const (
	TaskNicheSweep = "discovery.sentinel_watcher"
	TaskPostSweep  = "optimization.check_and_post_scheduled"
	TaskAudit      = "security.system_audit"
	TaskStorage    = "storage.lifecycle"
)

// AutopilotRunner drives a full discover-transform-publish cycle for one
// niche. Nil means autopilot is off and the sweep only enqueues discovery.
type AutopilotRunner interface {
	RunNiche(ctx context.Context, niche string) error
}

// Uploader publishes one resolved video. *executors.PublishExecutor
// satisfies it.
type Uploader interface {
	Upload(ctx context.Context, input *executors.PublishInput) (string, error)
}

// NicheSweep visits every active niche. With autopilot on, the controller
// runs the full cycle; otherwise a discovery job is enqueued unless one is
// already pending for that niche.
func NicheSweep(cfg *config.SchedulerConfig, niches *services.NicheService, jobs *services.JobService, autopilot AutopilotRunner) Task {
	return Task{
		Name:     TaskNicheSweep,
		Interval: cfg.NicheSweepInterval,
		Run: func(ctx context.Context) error {
			active, err := niches.ListActive(ctx)
			if err != nil {
				return fmt.Errorf("list active niches: %w", err)
			}
			for _, niche := range active {
				if err := ctx.Err(); err != nil {
					return err
				}
				if autopilot != nil {
					if err := autopilot.RunNiche(ctx, niche.Niche); err != nil {
						slog.Error("Autopilot cycle failed", "niche", niche.Niche, "error", err)
						continue
					}
				} else if err := enqueueOnce(ctx, jobs, models.JobKindDiscovery, niche.Niche); err != nil {
					slog.Error("Failed to enqueue discovery", "niche", niche.Niche, "error", err)
					continue
				}
				if err := niches.MarkScanned(ctx, niche.Niche, time.Now().UTC()); err != nil {
					slog.Warn("Failed to mark niche scanned", "niche", niche.Niche, "error", err)
				}
			}
			return nil
		},
	}
}

// PostSweep claims every due scheduled post and publishes it. Each claim
// moves the post to publishing, so a post never reaches the uploader
// twice; claims orphaned by a dead sweep are failed once they outlive the
// configured TTL.
func PostSweep(cfg *config.SchedulerConfig, posts *services.PostService, uploader Uploader) Task {
	return Task{
		Name:     TaskPostSweep,
		Interval: cfg.PostSweepInterval,
		Run: func(ctx context.Context) error {
			if n, err := posts.ReclaimStale(ctx, cfg.PostClaimTTL); err != nil {
				slog.Error("Stale post claim recovery failed", "error", err)
			} else if n > 0 {
				slog.Warn("Failed stale post claims", "count", n, "ttl", cfg.PostClaimTTL)
			}
			for {
				post, err := posts.ClaimDue(ctx, time.Now().UTC())
				if errors.Is(err, services.ErrNoDuePosts) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("claim due post: %w", err)
				}
				publishOne(ctx, posts, uploader, post)
			}
		},
	}
}

func publishOne(ctx context.Context, posts *services.PostService, uploader Uploader, post *models.ScheduledPost) {
	log := slog.With("post_id", post.ID, "platform", post.Platform)

	title, _ := post.Metadata["title"].(string)
	caption, _ := post.Metadata["caption"].(string)
	url, err := uploader.Upload(ctx, &executors.PublishInput{
		VideoRef:      post.VideoRef,
		Platform:      post.Platform,
		AccountHandle: post.AccountID,
		Title:         title,
		Caption:       caption,
	})
	if err != nil {
		log.Error("Scheduled post failed", "error", err)
		if merr := posts.MarkFailed(ctx, post.ID, err.Error()); merr != nil {
			log.Error("Failed to record post failure", "error", merr)
		}
		return
	}
	if merr := posts.MarkPublished(ctx, post.ID, url); merr != nil {
		log.Error("Failed to record post publication", "error", merr)
		return
	}
	log.Info("Scheduled post published", "url", url)
}

// AuditSweep enqueues an audit job so the report runs through the durable
// queue like any other work.
func AuditSweep(cfg *config.SchedulerConfig, jobs *services.JobService) Task {
	return Task{
		Name:     TaskAudit,
		Interval: cfg.AuditInterval,
		Run: func(ctx context.Context) error {
			return enqueueOnce(ctx, jobs, models.JobKindAuditReport, "system")
		},
	}
}

// StorageSweep enqueues a storage lifecycle job.
func StorageSweep(cfg *config.SchedulerConfig, jobs *services.JobService) Task {
	return Task{
		Name:     TaskStorage,
		Interval: cfg.StorageInterval,
		Run: func(ctx context.Context) error {
			return enqueueOnce(ctx, jobs, models.JobKindStorageMigrate, "outputs")
		},
	}
}

// enqueueOnce creates a job unless one is already queued or running for
// the same input.
func enqueueOnce(ctx context.Context, jobs *services.JobService, kind models.JobKind, inputRef string) error {
	pending, err := jobs.HasNonTerminalForInput(ctx, inputRef)
	if err != nil {
		return err
	}
	if pending {
		slog.Debug("Job already pending, skipping enqueue", "kind", kind, "input_ref", inputRef)
		return nil
	}
	_, err = jobs.Create(ctx, kind, "scheduler", inputRef)
	return err
}
