package pipeline

import (
	"strings"

	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/models"
)

const (
	captionFontSize    = 72
	captionStrokeColor = "#000000"
	captionStrokeWidth = 2.5
)

// vibeColor maps the strategy vibe to the caption fill color.
func vibeColor(v models.Vibe) string {
	switch v {
	case models.VibeDramatic:
		return "#FFFFFF"
	case models.VibeEnergetic:
		return "#00FF00"
	default:
		return "#FFE100"
	}
}

// buildCaptions turns the word-timed transcript into one caption per word.
// Words starting at or past the trimmed duration are dropped; words that
// merely overrun the end are clamped to it.
func buildCaptions(transcript []models.TranscriptSegment, vibe models.Vibe, placement media.CaptionPlacement, duration float64, fontPath string) []media.Caption {
	if len(transcript) == 0 {
		return nil
	}
	color := vibeColor(vibe)
	relY := placement.RelativeY()

	captions := make([]media.Caption, 0, len(transcript))
	for _, seg := range transcript {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.Start >= duration {
			continue
		}
		end := seg.End
		if end > duration {
			end = duration
		}
		captions = append(captions, media.Caption{
			Text:        strings.ToUpper(text),
			Start:       seg.Start,
			End:         end,
			FontPath:    fontPath,
			FontSize:    captionFontSize,
			Color:       color,
			StrokeColor: captionStrokeColor,
			StrokeWidth: captionStrokeWidth,
			RelativeY:   relY,
		})
	}
	return captions
}
