// Package ffmpeg implements the media engine by compiling the recorded
// operation sequence into a single ffmpeg filtergraph invocation at encode
// time. Operations are cheap to apply; all rendering cost is paid once.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/reelforge/reelforge/pkg/media"
)

// Engine shells out to ffmpeg/ffprobe.
type Engine struct {
	FFmpegPath  string
	FFprobePath string
}

// New returns an engine using the binaries on PATH.
func New() *Engine {
	return &Engine{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// clip accumulates operations against a source file. Duration is tracked
// analytically so stages can measure without rendering.
type clip struct {
	source   string
	duration float64
	ops      []media.Op
	audio    *clip
}

func (c *clip) Duration() float64 { return c.duration }

// Open probes the source and returns a fresh clip.
func (e *Engine) Open(ctx context.Context, path string) (media.Clip, error) {
	duration, err := e.probeDuration(ctx, path)
	if err != nil {
		return nil, err
	}
	return &clip{source: path, duration: duration}, nil
}

// Apply records the operation and updates the analytic duration.
func (e *Engine) Apply(_ context.Context, in media.Clip, op media.Op) (media.Clip, error) {
	c, ok := in.(*clip)
	if !ok {
		return nil, fmt.Errorf("clip was not produced by this engine")
	}
	next := &clip{
		source:   c.source,
		duration: c.duration,
		ops:      append(append([]media.Op{}, c.ops...), op),
		audio:    c.audio,
	}
	switch o := op.(type) {
	case media.TrimOp:
		var total float64
		for _, seg := range o.Segments {
			total += seg.End - seg.Start
		}
		next.duration = total
	case media.SpeedOp:
		if o.Factor > 0 {
			next.duration = c.duration / o.Factor
		}
	case media.UseAudioOp:
		from, ok := o.From.(*clip)
		if !ok {
			return nil, fmt.Errorf("audio source clip was not produced by this engine")
		}
		next.audio = from
	}
	return next, nil
}

// Encode compiles the op list into one filtergraph and renders.
func (e *Engine) Encode(ctx context.Context, in media.Clip, outputPath string, opts media.EncodeOptions) error {
	c, ok := in.(*clip)
	if !ok {
		return fmt.Errorf("clip was not produced by this engine")
	}

	graph := newGraphBuilder(c)
	filterComplex, videoLabel, audioLabel, inputs := graph.build()

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, input := range inputs {
		args = append(args, "-i", input)
	}
	if filterComplex != "" {
		args = append(args, "-filter_complex", filterComplex)
		args = append(args, "-map", videoLabel)
	} else {
		args = append(args, "-map", "0:v")
	}
	if audioLabel != "" {
		args = append(args, "-map", audioLabel)
	} else {
		args = append(args, "-map", "0:a?")
	}

	if opts.UseGPU {
		args = append(args, "-c:v", "h264_nvenc", "-preset", "slow", "-cq", fmt.Sprint(opts.CRF))
	} else {
		args = append(args, "-c:v", "libx264", "-crf", fmt.Sprint(opts.CRF), "-preset", opts.Preset)
	}
	args = append(args,
		"-maxrate", opts.MaxBitrate,
		"-bufsize", opts.BufSize,
		"-r", fmt.Sprint(opts.FPS),
		"-pix_fmt", "yuv420p",
		"-c:a", opts.AudioCodec,
		outputPath,
	)

	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg encode failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	slog.Debug("Encoded clip", "output", outputPath, "gpu", opts.UseGPU, "ops", len(c.ops))
	return nil
}

func (e *Engine) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, fmt.Errorf("ffprobe %s: malformed duration %q", path, out)
	}
	return duration, nil
}
