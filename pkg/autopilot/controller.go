// Package autopilot chains discovery, transformation and publishing into
// the fully autonomous cycle: find the best candidate for a niche, build a
// derived clip, and publish it the moment the transform completes.
package autopilot

import (
	"context"
	"log/slog"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/events"
	"github.com/reelforge/reelforge/pkg/executors"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/services"
)

// ownerID marks jobs created by the autopilot so the completion chain only
// reacts to its own transforms.
const ownerID = "autopilot"

// Controller owns the autonomous cycle for all niches.
type Controller struct {
	cfg        *config.AutopilotConfig
	aggregator *discovery.Aggregator
	jobs       *services.JobService
	candidates *services.CandidateService
}

// New builds the controller.
func New(cfg *config.AutopilotConfig, aggregator *discovery.Aggregator, jobs *services.JobService, candidates *services.CandidateService) *Controller {
	return &Controller{
		cfg:        cfg,
		aggregator: aggregator,
		jobs:       jobs,
		candidates: candidates,
	}
}

// RunNiche runs the discovery half of the cycle: aggregate candidates,
// take the ranked head and enqueue a transform job per candidate, at most
// one job per source video.
func (c *Controller) RunNiche(ctx context.Context, niche string) error {
	log := slog.With("niche", niche)

	candidates, err := c.aggregator.Aggregate(ctx, niche, models.Horizon7d)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Info("Autopilot found no candidates")
		return nil
	}

	enqueued := 0
	for _, candidate := range candidates {
		if enqueued >= c.cfg.MaxPerSweep {
			break
		}
		pending, err := c.jobs.HasNonTerminalForInput(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if pending {
			log.Debug("Candidate already has a pending job", "candidate", candidate.ID)
			continue
		}
		job, err := c.jobs.Create(ctx, models.JobKindTransform, ownerID, candidate.ID)
		if err != nil {
			return err
		}
		log.Info("Autopilot enqueued transform", "candidate", candidate.ID, "job_id", job.ID)
		enqueued++
	}
	return nil
}

// HandleJobStatus is the event subscriber closing the loop: a completed
// autopilot transform spawns the publish job for its output.
func (c *Controller) HandleJobStatus(ctx context.Context, payload events.JobStatusPayload) {
	if payload.Kind != models.JobKindTransform || payload.Status != models.JobStatusCompleted {
		return
	}
	job, err := c.jobs.Get(ctx, payload.JobID)
	if err != nil {
		slog.Error("Autopilot could not load completed job", "job_id", payload.JobID, "error", err)
		return
	}
	if job.OwnerID != ownerID || job.OutputRef == nil || *job.OutputRef == "" {
		return
	}

	title, caption := c.postText(ctx, job.InputRef)
	inputRef, err := executors.PublishInput{
		VideoRef:      *job.OutputRef,
		Platform:      c.cfg.Platform,
		AccountHandle: c.cfg.AccountHandle,
		Title:         title,
		Caption:       caption,
	}.Encode()
	if err != nil {
		slog.Error("Autopilot could not encode publish input", "job_id", job.ID, "error", err)
		return
	}

	pending, err := c.jobs.HasNonTerminalForInput(ctx, inputRef)
	if err != nil || pending {
		return
	}
	publishJob, err := c.jobs.Create(ctx, models.JobKindAutopilotPost, ownerID, inputRef)
	if err != nil {
		slog.Error("Autopilot could not enqueue publish", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("Autopilot enqueued publish",
		"transform_job", job.ID, "publish_job", publishJob.ID, "platform", c.cfg.Platform)
}

// Subscriber adapts the controller to the event listener. ctx bounds the
// work triggered by each event.
func (c *Controller) Subscriber(ctx context.Context) events.Subscriber {
	return func(payload events.JobStatusPayload) {
		c.HandleJobStatus(ctx, payload)
	}
}

// postText derives the post title and caption from the source candidate.
func (c *Controller) postText(ctx context.Context, candidateID string) (title, caption string) {
	candidate, err := c.candidates.Get(ctx, candidateID)
	if err != nil {
		return "", ""
	}
	return candidate.Title, candidate.Description
}
