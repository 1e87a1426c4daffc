package pipeline

import (
	"context"
	"log/slog"

	"github.com/reelforge/reelforge/pkg/media"
)

// captionPlacement scans sampled frames for pre-existing on-screen text
// and picks the band that avoids it: text in the bottom 40% pushes
// captions to the top, text in the top 40% pushes them to the bottom,
// anything else (or no text, or a failed scan) keeps the bottom default.
func (p *Pipeline) captionPlacement(ctx context.Context, path string, log *slog.Logger) media.CaptionPlacement {
	if p.scanner == nil {
		return media.PlacementBottom
	}
	regions, err := p.scanner.ScanText(ctx, path, p.cfg.OCRFrameStride)
	if err != nil {
		log.Warn("Frame text scan failed, defaulting caption placement", "error", err)
		return media.PlacementBottom
	}
	var top, bottom int
	for _, r := range regions {
		switch {
		case r.YCenter >= 0.6:
			bottom++
		case r.YCenter <= 0.4:
			top++
		}
	}
	switch {
	case bottom > 0 && bottom >= top:
		return media.PlacementTop
	case top > 0:
		return media.PlacementBottom
	default:
		return media.PlacementBottom
	}
}
