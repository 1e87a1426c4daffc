package strategy

import "github.com/reelforge/reelforge/pkg/models"

// Style presets are hard-coded fallbacks, applied only when the LLM path
// fails for a run that requested the named style.
var presets = map[string]models.Strategy{
	"Cinematic": {
		SpeedRange:         [2]float64{0.97, 1.0},
		JitterIntensity:    0.5,
		RecommendedFilters: []models.FilterID{models.FilterCinematic, models.FilterGlow},
		Vibe:               models.VibeDramatic,
	},
	"ASMR/Calm": {
		SpeedRange:      [2]float64{0.95, 1.0},
		JitterIntensity: 0.2,
		Vibe:            models.VibeCalm,
	},
	"Glitch/High-Art": {
		SpeedRange:         [2]float64{1.0, 1.1},
		JitterIntensity:    2.0,
		RecommendedFilters: []models.FilterID{models.FilterGlitch, models.FilterJitter},
		Vibe:               models.VibeEnergetic,
	},
	"Noir/Classic": {
		SpeedRange:         [2]float64{0.98, 1.02},
		JitterIntensity:    0.8,
		RecommendedFilters: []models.FilterID{models.FilterGrayscale, models.FilterFilmGrain},
		Vibe:               models.VibeDramatic,
	},
}

// PresetFor returns the preset strategy for a style name.
func PresetFor(style string) (models.Strategy, bool) {
	preset, ok := presets[style]
	return preset, ok
}
