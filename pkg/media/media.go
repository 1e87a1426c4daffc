// Package media declares the boundaries to the external rendering stack.
// The concrete renderer, transcriber, OCR engine and stock-footage source
// are collaborators injected at wiring time; the transformation pipeline
// only composes these interfaces. Operations are plain data so a run's
// full op sequence can be asserted in tests.
package media

import (
	"context"

	"github.com/reelforge/reelforge/pkg/models"
)

// Clip is an opaque handle to an in-flight clip inside the engine.
type Clip interface {
	// Duration returns the clip length in seconds.
	Duration() float64
}

// Engine executes media operations. Implementations wrap a rendering
// library or an ffmpeg invocation layer.
type Engine interface {
	// Open loads a source video.
	Open(ctx context.Context, path string) (Clip, error)

	// Apply executes one operation and returns the resulting clip.
	Apply(ctx context.Context, clip Clip, op Op) (Clip, error)

	// Encode renders the clip to outputPath.
	Encode(ctx context.Context, clip Clip, outputPath string, opts EncodeOptions) error
}

// Op is a single media operation. Implementations are the *Op structs in
// this package; the set is closed.
type Op interface {
	opName() string
}

// Segment is a [start,end] time range in seconds.
type Segment struct {
	Start float64
	End   float64
}

// TrimOp concatenates the given sub-clips.
type TrimOp struct {
	Segments []Segment
}

// MirrorOp flips the clip horizontally.
type MirrorOp struct{}

// ZoomOp scales uniformly around the center.
type ZoomOp struct {
	Factor float64
}

// SpeedOp changes playback speed.
type SpeedOp struct {
	Factor float64
}

// JitterOp applies per-frame random positional offsets. Seed fixes the
// offset sequence; Zoom covers the exposed edges.
type JitterOp struct {
	Intensity float64
	Zoom      float64
	Seed      int64
}

// WarmOverlayOp renders a single warm rectangle overlay.
type WarmOverlayOp struct {
	Start    float64
	Duration float64
	Opacity  float64
	Fade     float64
}

// GlowOp lifts luminance and contrast and blends the clip over itself.
type GlowOp struct {
	LumaDelta     float64
	ContrastDelta float64
	SelfBlend     float64
}

// GrainOp applies per-frame contrast jitter.
type GrainOp struct {
	Seed int64
}

// GrayscaleOp desaturates the clip.
type GrayscaleOp struct{}

// GlitchOp multiplies color channels and rescales slightly.
type GlitchOp struct {
	R, G, B float64
	Rescale float64
}

// FlashOp renders short white flashes at the given start times.
type FlashOp struct {
	Times     []float64
	Duration  float64
	Opacity   float64
	CrossFade float64
}

// BRollOverlayOp overlays an external clip from Start for up to MaxDuration.
type BRollOverlayOp struct {
	Path        string
	Start       float64
	MaxDuration float64
}

// CaptionPlacement selects the vertical caption band.
type CaptionPlacement string

// Caption placements and their relative y positions.
const (
	PlacementTop    CaptionPlacement = "top"
	PlacementCenter CaptionPlacement = "center"
	PlacementBottom CaptionPlacement = "bottom"
)

// RelativeY returns the caption band's relative vertical position.
func (p CaptionPlacement) RelativeY() float64 {
	switch p {
	case PlacementTop:
		return 0.15
	case PlacementCenter:
		return 0.5
	default:
		return 0.8
	}
}

// Caption renders one word on screen.
type Caption struct {
	Text        string
	Start       float64
	End         float64
	FontPath    string
	FontSize    int
	Color       string
	StrokeColor string
	StrokeWidth float64
	RelativeY   float64
}

// CaptionsOp renders the caption sequence.
type CaptionsOp struct {
	Items []Caption
}

// UseAudioOp replaces the clip's audio track with From's audio.
type UseAudioOp struct {
	From Clip
}

func (TrimOp) opName() string         { return "trim" }
func (MirrorOp) opName() string       { return "mirror" }
func (ZoomOp) opName() string         { return "zoom" }
func (SpeedOp) opName() string        { return "speed" }
func (JitterOp) opName() string       { return "jitter" }
func (WarmOverlayOp) opName() string  { return "warm_overlay" }
func (GlowOp) opName() string         { return "glow" }
func (GrainOp) opName() string        { return "grain" }
func (GrayscaleOp) opName() string    { return "grayscale" }
func (GlitchOp) opName() string       { return "glitch" }
func (FlashOp) opName() string        { return "flash" }
func (BRollOverlayOp) opName() string { return "b_roll_overlay" }
func (CaptionsOp) opName() string     { return "captions" }
func (UseAudioOp) opName() string     { return "use_audio" }

// EncodeOptions parameterize the final render.
type EncodeOptions struct {
	CRF        int
	MaxBitrate string
	BufSize    string
	Preset     string
	FPS        int
	AudioCodec string
	UseGPU     bool
}

// Transcriber produces word-timed transcript segments from source audio.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error)
}

// TextRegion is a detected on-screen text box in a sampled frame.
// YCenter is the box center as a fraction of frame height (0 = top).
type TextRegion struct {
	Frame   int
	YCenter float64
}

// FrameScanner detects existing on-screen text in sampled frames.
type FrameScanner interface {
	// ScanText samples one frame every stride frames and returns detected
	// text regions.
	ScanText(ctx context.Context, path string, stride int) ([]TextRegion, error)
}

// StockVideo is one result from a stock-footage search.
type StockVideo struct {
	ID  string
	URL string
}

// StockProvider searches and downloads B-roll stock footage.
type StockProvider interface {
	Search(ctx context.Context, keyword string, limit int) ([]StockVideo, error)
	Download(ctx context.Context, video StockVideo, dir string) (string, error)
}
