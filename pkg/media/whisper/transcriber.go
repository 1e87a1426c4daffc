// Package whisper transcribes source audio with the whisper CLI.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelforge/reelforge/pkg/models"
)

// Transcriber shells out to the whisper CLI with word timestamps enabled.
type Transcriber struct {
	BinPath string
	Model   string
}

// New returns a transcriber using whisper on PATH.
func New(model string) *Transcriber {
	if model == "" {
		model = "base"
	}
	return &Transcriber{BinPath: "whisper", Model: model}
}

type whisperOutput struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Word  string  `json:"word"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe runs whisper and returns word-timed segments. When word
// timestamps are unavailable the segment granularity is returned instead.
func (t *Transcriber) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, t.BinPath,
		"--model", t.Model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("whisper %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	var parsed whisperOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode whisper output: %w", err)
	}

	var segments []models.TranscriptSegment
	for _, seg := range parsed.Segments {
		if len(seg.Words) == 0 {
			if text := strings.TrimSpace(seg.Text); text != "" {
				segments = append(segments, models.TranscriptSegment{
					Start: seg.Start, End: seg.End, Text: text,
				})
			}
			continue
		}
		for _, word := range seg.Words {
			if text := strings.TrimSpace(word.Word); text != "" {
				segments = append(segments, models.TranscriptSegment{
					Start: word.Start, End: word.End, Text: text,
				})
			}
		}
	}
	return segments, nil
}
