package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/pkg/llm"
	"github.com/reelforge/reelforge/pkg/models"
)

type patternResponse struct {
	HookScore         float64  `json:"hook_score"`
	RetentionEstimate float64  `json:"retention_estimate"`
	PacingBPM         *float64 `json:"pacing_bpm"`
	StyleKeywords     []string `json:"style_keywords"`
	EmotionalTriggers []string `json:"emotional_triggers"`
}

// AnalyzePattern computes and persists the viral pattern for a candidate.
// With an LLM available the model scores the candidate; otherwise (or on
// any model failure) a deterministic heuristic derived from the engagement
// figures is used. Last write wins.
func (a *Aggregator) AnalyzePattern(ctx context.Context, c *models.ContentCandidate) (*models.ViralPattern, error) {
	pattern := heuristicPattern(c)

	if a.ranker != nil {
		if llmPattern, err := a.llmPattern(ctx, c); err != nil {
			slog.Warn("LLM pattern analysis failed, using heuristic",
				"candidate", c.ID, "error", err)
		} else {
			pattern = llmPattern
		}
	}

	if err := a.store.UpsertPattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("persist viral pattern: %w", err)
	}
	return pattern, nil
}

func (a *Aggregator) llmPattern(ctx context.Context, c *models.ContentCandidate) (*models.ViralPattern, error) {
	var b strings.Builder
	b.WriteString("Analyze the viral mechanics of this short-form video candidate.\n")
	b.WriteString("Respond with strict JSON only:\n")
	b.WriteString(`{"hook_score": <0..1>, "retention_estimate": <0..1>, "pacing_bpm": <number or null>, "style_keywords": [...], "emotional_triggers": [...]}`)
	fmt.Fprintf(&b, "\n\nTitle: %q\nDescription: %q\nPlatform: %s\nViews: %d\nEngagement: %.2f\nDuration: %.0fs\nTags: %s\n",
		c.Title, c.Description, c.Platform, c.Views, c.EngagementScore, c.DurationSeconds,
		strings.Join(c.Tags, ", "))

	response, err := a.ranker.client.Complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	var parsed patternResponse
	if err := llm.DecodeJSON(response, &parsed); err != nil {
		return nil, err
	}
	if parsed.HookScore < 0 || parsed.HookScore > 1 || parsed.RetentionEstimate < 0 || parsed.RetentionEstimate > 1 {
		return nil, fmt.Errorf("pattern scores out of range")
	}
	return &models.ViralPattern{
		ID:                uuid.New().String(),
		ContentID:         c.ID,
		HookScore:         parsed.HookScore,
		RetentionEstimate: parsed.RetentionEstimate,
		PacingBPM:         parsed.PacingBPM,
		StyleKeywords:     parsed.StyleKeywords,
		EmotionalTriggers: parsed.EmotionalTriggers,
		AnalyzedAt:        time.Now().UTC(),
	}, nil
}

// heuristicPattern derives a pattern purely from the stored metrics.
func heuristicPattern(c *models.ContentCandidate) *models.ViralPattern {
	hook := c.EngagementScore
	retention := c.EngagementScore * 0.8
	if c.DurationSeconds > 0 && c.DurationSeconds <= 30 {
		retention = minFloat(1, retention+0.1)
	}
	return &models.ViralPattern{
		ID:                uuid.New().String(),
		ContentID:         c.ID,
		HookScore:         hook,
		RetentionEstimate: retention,
		StyleKeywords:     c.Tags,
		AnalyzedAt:        time.Now().UTC(),
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
