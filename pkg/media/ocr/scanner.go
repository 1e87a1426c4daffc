// Package ocr detects pre-existing on-screen text by sampling frames with
// ffmpeg and reading them with the tesseract CLI.
package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/reelforge/reelforge/pkg/media"
)

// Frames are scaled to a fixed height on extraction so box coordinates
// normalize without probing the source dimensions.
const frameHeight = 720

// minConfidence drops low-certainty tesseract words (0-100 scale).
const minConfidence = 30

// Scanner shells out to ffmpeg for frame sampling and tesseract for text
// detection.
type Scanner struct {
	FFmpegPath string
	BinPath    string
}

// New returns a scanner using the given OCR binary, or tesseract on PATH
// when empty.
func New(bin string) *Scanner {
	if bin == "" {
		bin = "tesseract"
	}
	return &Scanner{FFmpegPath: "ffmpeg", BinPath: bin}
}

// ScanText samples one frame every stride frames and returns the detected
// text regions with their vertical centers.
func (s *Scanner) ScanText(ctx context.Context, path string, stride int) ([]media.TextRegion, error) {
	if stride < 1 {
		stride = 1
	}
	dir, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, s.FFmpegPath,
		"-i", path,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d)),scale=-2:%d", stride, frameHeight),
		"-vsync", "vfr",
		filepath.Join(dir, "frame_%05d.png"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("sample frames from %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}

	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)

	var regions []media.TextRegion
	for i, frame := range frames {
		tsv, err := exec.CommandContext(ctx, s.BinPath, frame, "stdout", "tsv").Output()
		if err != nil {
			return nil, fmt.Errorf("ocr frame %s: %w", frame, err)
		}
		// Extracted file i holds source frame i*stride.
		regions = append(regions, parseFrameText(tsv, i*stride, frameHeight)...)
	}
	return regions, nil
}

// parseFrameText reads tesseract TSV output and returns one region per
// confident word, with YCenter as a fraction of the frame height.
func parseFrameText(tsv []byte, frame int, height float64) []media.TextRegion {
	var regions []media.TextRegion
	for _, line := range strings.Split(string(tsv), "\n") {
		fields := strings.Split(line, "\t")
		// level page block par line word left top width height conf text
		if len(fields) < 12 || fields[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < minConfidence {
			continue
		}
		if strings.TrimSpace(fields[11]) == "" {
			continue
		}
		top, err1 := strconv.ParseFloat(fields[7], 64)
		boxHeight, err2 := strconv.ParseFloat(fields[9], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		regions = append(regions, media.TextRegion{
			Frame:   frame,
			YCenter: (top + boxHeight/2) / height,
		})
	}
	return regions
}
