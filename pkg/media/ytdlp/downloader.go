// Package ytdlp downloads source videos with the yt-dlp CLI, which
// handles every platform the scanners discover from.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelforge/reelforge/pkg/models"
)

// Downloader shells out to yt-dlp.
type Downloader struct {
	BinPath string
}

// New returns a downloader using yt-dlp on PATH.
func New() *Downloader {
	return &Downloader{BinPath: "yt-dlp"}
}

// Download fetches the candidate's source video into dir and returns the
// local path.
func (d *Downloader) Download(ctx context.Context, candidate *models.ContentCandidate, dir string) (string, error) {
	if candidate.URL == "" {
		return "", fmt.Errorf("candidate %s has no source url", candidate.ID)
	}
	output := filepath.Join(dir, candidate.ID+".%(ext)s")

	cmd := exec.CommandContext(ctx, d.BinPath,
		"--no-playlist",
		"--format", "bv*[height<=1920]+ba/b",
		"--merge-output-format", "mp4",
		"--output", output,
		candidate.URL)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp %s: %w: %s", candidate.URL, err, strings.TrimSpace(string(out)))
	}

	path := filepath.Join(dir, candidate.ID+".mp4")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("yt-dlp finished but %s is missing: %w", path, err)
	}
	return path, nil
}
