// Package pipeline executes the originalization pipeline: the ordered
// sequence of media operations that turns a source video into a derived,
// captioned, filtered output clip.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/models"
)

// ProgressFunc receives substate labels and 0..100 progress while a run
// executes. May be nil.
type ProgressFunc func(substate string, progress int)

// Request parameterizes one pipeline run.
type Request struct {
	SourcePath     string
	OutputDir      string
	EnabledFilters []models.FilterID
	Strategy       *models.Strategy

	// Transcript, when non-nil, skips the transcription stage. Callers that
	// already transcribed for planning pass it through here.
	Transcript []models.TranscriptSegment

	// Seed fixes every random choice of the run (jitter offsets, overlay
	// starts, B-roll pick). Nil draws a fresh seed.
	Seed *int64

	Progress ProgressFunc
}

// Pipeline drives the transformation stages against the injected
// collaborators.
type Pipeline struct {
	cfg         *config.PipelineConfig
	engine      media.Engine
	transcriber media.Transcriber
	scanner     media.FrameScanner
	stock       media.StockProvider
}

// New creates a pipeline. transcriber, scanner and stock may be nil; the
// corresponding stages then degrade (no captions, default placement, no
// B-roll).
func New(cfg *config.PipelineConfig, engine media.Engine, transcriber media.Transcriber, scanner media.FrameScanner, stock media.StockProvider) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		engine:      engine,
		transcriber: transcriber,
		scanner:     scanner,
		stock:       stock,
	}
}

// Run executes the full stage sequence and returns the output path.
// Stages execute in strict order; each consumes the previous stage's clip.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	if req.SourcePath == "" {
		return "", fmt.Errorf("pipeline requires a source path")
	}
	strategy := models.DefaultStrategy()
	if req.Strategy != nil {
		strategy = *req.Strategy
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	rng := rand.New(rand.NewSource(seed))
	log := slog.With("source", req.SourcePath, "seed", seed)

	report := func(substate string, progress int) {
		if req.Progress != nil {
			req.Progress(substate, progress)
		}
	}

	// 1. Transcribe.
	report("Transcribing", 5)
	transcript := req.Transcript
	if transcript == nil {
		transcript = p.transcribe(ctx, req.SourcePath, log)
	}

	// 2. OCR scan → caption placement.
	report("Scanning frames", 15)
	placement := p.captionPlacement(ctx, req.SourcePath, log)

	clip, err := p.engine.Open(ctx, req.SourcePath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}

	// 3. Semantic trim to hook points.
	report("Trimming", 25)
	clip, err = p.trimToHooks(ctx, clip, strategy.HookPoints)
	if err != nil {
		return "", fmt.Errorf("semantic trim: %w", err)
	}

	// Audio reference: the pre-transform clip (after trim, before any
	// visual operation) supplies the final audio track.
	audioSource := clip

	// 4. B-roll overlay (non-fatal).
	report("Fetching B-roll", 35)
	clip = p.applyBRoll(ctx, clip, strategy.BRollKeywords, req.OutputDir, rng, log)

	// 5. Base transform: mirror + 1.05× zoom. This is the invariant that
	// changes the perceptual hash.
	report("Transforming", 45)
	clip, err = p.apply(ctx, clip, media.MirrorOp{})
	if err != nil {
		return "", fmt.Errorf("mirror: %w", err)
	}
	clip, err = p.apply(ctx, clip, media.ZoomOp{Factor: 1.05})
	if err != nil {
		return "", fmt.Errorf("base zoom: %w", err)
	}

	// 6. Optional filters in fixed order.
	report("Applying filters", 55)
	clip, err = p.applyFilters(ctx, clip, req.EnabledFilters, &strategy, rng)
	if err != nil {
		return "", fmt.Errorf("filters: %w", err)
	}

	// 7. Pattern interrupts.
	report("Pattern interrupts", 70)
	if flashes := interruptTimes(clip.Duration()); len(flashes) > 0 {
		clip, err = p.apply(ctx, clip, media.FlashOp{
			Times:     flashes,
			Duration:  0.15,
			Opacity:   0.12,
			CrossFade: 0.05,
		})
		if err != nil {
			return "", fmt.Errorf("pattern interrupts: %w", err)
		}
	}

	// 8. Captions.
	report("Rendering captions", 80)
	captions := buildCaptions(transcript, strategy.Vibe, placement, clip.Duration(), p.cfg.FontPath)
	if len(captions) > 0 {
		clip, err = p.apply(ctx, clip, media.CaptionsOp{Items: captions})
		if err != nil {
			return "", fmt.Errorf("captions: %w", err)
		}
	}

	// 9. Mux original audio.
	clip, err = p.apply(ctx, clip, media.UseAudioOp{From: audioSource})
	if err != nil {
		return "", fmt.Errorf("audio mux: %w", err)
	}

	// 10. Encode with the GPU → software → 24fps ladder.
	report("Encoding", 90)
	outputPath := filepath.Join(req.OutputDir, fmt.Sprintf("reel_%s.mp4", uuid.New().String()))
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := p.encode(ctx, clip, outputPath, log); err != nil {
		return "", err
	}

	report("Done", 100)
	log.Info("Pipeline run complete", "output", outputPath)
	return outputPath, nil
}

func (p *Pipeline) apply(ctx context.Context, clip media.Clip, op media.Op) (media.Clip, error) {
	return p.engine.Apply(ctx, clip, op)
}

func (p *Pipeline) transcribe(ctx context.Context, path string, log *slog.Logger) []models.TranscriptSegment {
	if p.transcriber == nil {
		return nil
	}
	transcript, err := p.transcriber.Transcribe(ctx, path)
	if err != nil {
		log.Warn("Transcription failed, captions will be skipped", "error", err)
		return nil
	}
	return transcript
}

// trimToHooks concatenates the hook sub-clips with +0.5s tail padding
// each. Empty hooks mean no trim.
func (p *Pipeline) trimToHooks(ctx context.Context, clip media.Clip, hooks []models.HookPoint) (media.Clip, error) {
	if len(hooks) == 0 {
		return clip, nil
	}
	duration := clip.Duration()
	segments := make([]media.Segment, 0, len(hooks))
	for _, h := range hooks {
		start := h.Start
		end := h.End + 0.5
		if start >= duration {
			continue
		}
		if end > duration {
			end = duration
		}
		segments = append(segments, media.Segment{Start: start, End: end})
	}
	if len(segments) == 0 {
		return clip, nil
	}
	return p.apply(ctx, clip, media.TrimOp{Segments: segments})
}

// applyBRoll picks one keyword at random, fetches stock footage and
// overlays one downloaded clip starting at a uniform-random point in the
// first half of the trimmed clip, for up to 3 seconds. Every failure is
// non-fatal; the overlay is simply skipped.
func (p *Pipeline) applyBRoll(ctx context.Context, clip media.Clip, keywords []string, dir string, rng *rand.Rand, log *slog.Logger) media.Clip {
	if p.stock == nil || len(keywords) == 0 {
		return clip
	}
	keyword := keywords[rng.Intn(len(keywords))]
	// Draw the overlay start before any fallible call so the random
	// sequence is stable for a given seed regardless of fetch outcome.
	start := rng.Float64() * clip.Duration() / 2

	videos, err := p.stock.Search(ctx, keyword, p.cfg.BRollMaxResults)
	if err != nil || len(videos) == 0 {
		log.Warn("B-roll search failed or empty, skipping overlay", "keyword", keyword, "error", err)
		return clip
	}
	pick := videos[rng.Intn(len(videos))]
	path, err := p.stock.Download(ctx, pick, dir)
	if err != nil {
		log.Warn("B-roll download failed, skipping overlay", "keyword", keyword, "error", err)
		return clip
	}

	out, err := p.apply(ctx, clip, media.BRollOverlayOp{
		Path:        path,
		Start:       start,
		MaxDuration: 3,
	})
	if err != nil {
		log.Warn("B-roll overlay failed, continuing without it", "error", err)
		return clip
	}
	return out
}

// encode runs the encoder ladder: GPU first when available, then software,
// then software at 24 fps.
func (p *Pipeline) encode(ctx context.Context, clip media.Clip, outputPath string, log *slog.Logger) error {
	base := media.EncodeOptions{
		CRF:        18,
		MaxBitrate: "12M",
		BufSize:    "24M",
		Preset:     "slower",
		FPS:        30,
		AudioCodec: "aac",
	}

	gpu := base
	gpu.UseGPU = true
	if err := p.engine.Encode(ctx, clip, outputPath, gpu); err == nil {
		return nil
	} else {
		log.Warn("GPU encode failed, retrying with software encoder", "error", err)
	}

	if err := p.engine.Encode(ctx, clip, outputPath, base); err == nil {
		return nil
	} else {
		log.Warn("Software encode failed, retrying at 24 fps", "error", err)
	}

	slow := base
	slow.FPS = 24
	if err := p.engine.Encode(ctx, clip, outputPath, slow); err != nil {
		return fmt.Errorf("encode failed after all fallbacks: %w", err)
	}
	return nil
}
