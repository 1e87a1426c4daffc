// Package strategy turns a transcript, niche and style into the visual
// strategy driving one transformation run.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reelforge/reelforge/pkg/llm"
	"github.com/reelforge/reelforge/pkg/models"
)

// Planner produces transformation strategies. With no LLM configured it
// always returns the default strategy (optionally shaped by a preset).
type Planner struct {
	client llm.Client
}

// NewPlanner creates a planner. client may be nil.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Input carries everything the planner considers.
type Input struct {
	Transcript     []models.TranscriptSegment
	Niche          string
	Style          string
	VisualInsights string
}

type strategyResponse struct {
	SpeedRange         []float64          `json:"speed_range"`
	JitterIntensity    float64            `json:"jitter_intensity"`
	RecommendedFilters []string           `json:"recommended_filters"`
	HookPoints         [][]float64        `json:"hook_points"`
	BRollKeywords      []string           `json:"b_roll_keywords"`
	Vibe               string             `json:"vibe"`
	Explanation        string             `json:"explanation"`
}

// Plan returns the strategy for one run. Any model failure (missing
// credentials, transport error, malformed JSON, schema violation) falls
// back to the style preset, or the default strategy when no preset matches.
func (p *Planner) Plan(ctx context.Context, in Input) models.Strategy {
	if p.client == nil {
		return p.fallback(in.Style, "llm not configured")
	}

	response, err := p.client.Complete(ctx, buildPrompt(in))
	if err != nil {
		return p.fallback(in.Style, err.Error())
	}

	var parsed strategyResponse
	if err := llm.DecodeJSON(response, &parsed); err != nil {
		return p.fallback(in.Style, err.Error())
	}

	strategy, err := toStrategy(parsed)
	if err != nil {
		return p.fallback(in.Style, err.Error())
	}
	return strategy
}

func (p *Planner) fallback(style, reason string) models.Strategy {
	slog.Info("Strategy planner falling back", "style", style, "reason", reason)
	if preset, ok := PresetFor(style); ok {
		return preset
	}
	return models.DefaultStrategy()
}

func toStrategy(r strategyResponse) (models.Strategy, error) {
	s := models.DefaultStrategy()
	if len(r.SpeedRange) == 2 {
		s.SpeedRange = [2]float64{r.SpeedRange[0], r.SpeedRange[1]}
	}
	if r.JitterIntensity > 0 {
		s.JitterIntensity = r.JitterIntensity
	}
	for _, f := range r.RecommendedFilters {
		s.RecommendedFilters = append(s.RecommendedFilters, models.FilterID(f))
	}
	for _, h := range r.HookPoints {
		if len(h) != 2 {
			return s, fmt.Errorf("hook point must be [start,end], got %v", h)
		}
		s.HookPoints = append(s.HookPoints, models.HookPoint{Start: h[0], End: h[1]})
	}
	s.BRollKeywords = r.BRollKeywords
	if r.Vibe != "" {
		s.Vibe = models.Vibe(r.Vibe)
	}
	s.Explanation = r.Explanation
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are a short-form video editor planning an originalization pass.\n")
	b.WriteString("Available filter IDs: f6 (speed ramp), f7 (cinematic overlay), f8 (jitter), f9 (glow), f10 (film grain), f11 (grayscale), f12 (glitch).\n")
	b.WriteString("Respond with strict JSON only, shaped exactly as:\n")
	b.WriteString(`{"speed_range": [min, max], "jitter_intensity": <number>, "recommended_filters": ["f6", ...], "hook_points": [[start, end], ...], "b_roll_keywords": [...], "vibe": "Neutral|Energetic|Calm|Educational|Dramatic", "explanation": "..."}`)
	fmt.Fprintf(&b, "\n\nNiche: %s\nStyle: %s\n", in.Niche, in.Style)
	if in.VisualInsights != "" {
		fmt.Fprintf(&b, "Visual insights: %s\n", in.VisualInsights)
	}
	b.WriteString("Transcript (start-end: text):\n")
	for _, seg := range in.Transcript {
		fmt.Fprintf(&b, "%.2f-%.2f: %s\n", seg.Start, seg.End, seg.Text)
	}
	return b.String()
}
