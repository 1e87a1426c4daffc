package models

import "fmt"

// Vibe is the emotional register the planner assigns to a transformation.
type Vibe string

// Vibes.
const (
	VibeNeutral     Vibe = "Neutral"
	VibeEnergetic   Vibe = "Energetic"
	VibeCalm        Vibe = "Calm"
	VibeEducational Vibe = "Educational"
	VibeDramatic    Vibe = "Dramatic"
)

// FilterID selects one of the deterministic clip transforms f6..f12.
type FilterID string

// Filter IDs. ApplyOrder fixes the application sequence regardless of the
// order filters were requested in.
const (
	FilterSpeedRamp FilterID = "f6"
	FilterCinematic FilterID = "f7"
	FilterJitter    FilterID = "f8"
	FilterGlow      FilterID = "f9"
	FilterFilmGrain FilterID = "f10"
	FilterGrayscale FilterID = "f11"
	FilterGlitch    FilterID = "f12"
)

// FilterApplyOrder is the fixed application order for optional filters.
var FilterApplyOrder = []FilterID{
	FilterSpeedRamp, FilterJitter, FilterCinematic, FilterGlow,
	FilterFilmGrain, FilterGrayscale, FilterGlitch,
}

// ValidFilter reports whether id is one of f6..f12.
func ValidFilter(id FilterID) bool {
	for _, f := range FilterApplyOrder {
		if f == id {
			return true
		}
	}
	return false
}

// HookPoint is a [start,end] sub-clip of the source deemed high-retention.
type HookPoint struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Strategy is the AI-produced plan for one transformation run.
type Strategy struct {
	SpeedRange         [2]float64 `json:"speed_range"`
	JitterIntensity    float64    `json:"jitter_intensity"`
	RecommendedFilters []FilterID `json:"recommended_filters"`
	HookPoints         []HookPoint `json:"hook_points"`
	BRollKeywords      []string   `json:"b_roll_keywords"`
	Vibe               Vibe       `json:"vibe"`
	Explanation        string     `json:"explanation,omitempty"`
}

// DefaultStrategy is the fallback applied whenever the planner cannot
// produce a valid strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		SpeedRange:      [2]float64{0.98, 1.02},
		JitterIntensity: 1.0,
		Vibe:            VibeNeutral,
	}
}

// Validate clamps and checks planner output before it reaches the pipeline.
func (s *Strategy) Validate() error {
	if s.SpeedRange[0] > s.SpeedRange[1] {
		return fmt.Errorf("strategy speed_range inverted: %v", s.SpeedRange)
	}
	if s.SpeedRange[0] < 0.5 || s.SpeedRange[1] > 2.0 {
		return fmt.Errorf("strategy speed_range %v out of [0.5,2.0]", s.SpeedRange)
	}
	if s.JitterIntensity < 0 {
		return fmt.Errorf("strategy jitter_intensity negative: %f", s.JitterIntensity)
	}
	for _, f := range s.RecommendedFilters {
		if !ValidFilter(f) {
			return fmt.Errorf("strategy unknown filter %q", f)
		}
	}
	for _, h := range s.HookPoints {
		if h.Start < 0 || h.End < h.Start {
			return fmt.Errorf("strategy hook point out of order: [%f,%f]", h.Start, h.End)
		}
	}
	switch s.Vibe {
	case VibeNeutral, VibeEnergetic, VibeCalm, VibeEducational, VibeDramatic:
	case "":
		s.Vibe = VibeNeutral
	default:
		return fmt.Errorf("strategy unknown vibe %q", s.Vibe)
	}
	return nil
}

// TranscriptSegment is one word-timed unit of the source audio transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
