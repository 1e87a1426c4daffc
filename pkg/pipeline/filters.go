package pipeline

import (
	"context"
	"math/rand"
	"slices"

	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/models"
)

// defaultSpeedRange applies when the strategy carries no usable range.
var defaultSpeedRange = [2]float64{0.95, 1.05}

// applyFilters applies the enabled subset of f6..f12 in the fixed
// application order. Unknown IDs are ignored.
func (p *Pipeline) applyFilters(ctx context.Context, clip media.Clip, enabled []models.FilterID, strategy *models.Strategy, rng *rand.Rand) (media.Clip, error) {
	var err error
	for _, id := range models.FilterApplyOrder {
		if !slices.Contains(enabled, id) {
			continue
		}
		clip, err = p.apply(ctx, clip, filterOp(id, strategy, clip.Duration(), rng))
		if err != nil {
			return nil, err
		}
	}
	return clip, nil
}

// filterOp builds the operation for one filter ID. Randomness is drawn
// unconditionally so the draw sequence depends only on the enabled set.
func filterOp(id models.FilterID, strategy *models.Strategy, duration float64, rng *rand.Rand) media.Op {
	switch id {
	case models.FilterSpeedRamp:
		lo, hi := strategy.SpeedRange[0], strategy.SpeedRange[1]
		if lo == 0 && hi == 0 {
			lo, hi = defaultSpeedRange[0], defaultSpeedRange[1]
		}
		return media.SpeedOp{Factor: lo + rng.Float64()*(hi-lo)}

	case models.FilterJitter:
		return media.JitterOp{
			Intensity: strategy.JitterIntensity,
			Zoom:      1.04 + 0.01*strategy.JitterIntensity,
			Seed:      rng.Int63(),
		}

	case models.FilterCinematic:
		window := duration - 0.6
		if window < 0 {
			window = 0
		}
		return media.WarmOverlayOp{
			Start:    rng.Float64() * window,
			Duration: 0.6,
			Opacity:  0.08,
			Fade:     0.2,
		}

	case models.FilterGlow:
		return media.GlowOp{LumaDelta: 5, ContrastDelta: 0.1, SelfBlend: 0.3}

	case models.FilterFilmGrain:
		return media.GrainOp{Seed: rng.Int63()}

	case models.FilterGrayscale:
		return media.GrayscaleOp{}

	case models.FilterGlitch:
		return media.GlitchOp{
			R:       0.9 + rng.Float64()*0.2,
			G:       0.9 + rng.Float64()*0.2,
			B:       0.9 + rng.Float64()*0.2,
			Rescale: 1.01,
		}
	}
	return nil
}
