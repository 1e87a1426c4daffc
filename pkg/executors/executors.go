// Package executors binds job kinds to the domain components that do the
// work. Each executor translates a job's input_ref into component calls
// and classifies failures for the queue.
package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/queue"
)

// PublishInput is the JSON payload carried in a publish job's input_ref.
type PublishInput struct {
	VideoRef      string   `json:"video_ref"`
	Platform      string   `json:"platform"`
	AccountHandle string   `json:"account_handle"`
	Title         string   `json:"title"`
	Caption       string   `json:"caption"`
	Tags          []string `json:"tags,omitempty"`
}

// Encode serializes the payload for storage in input_ref.
func (p PublishInput) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode publish input: %w", err)
	}
	return string(raw), nil
}

// DecodePublishInput parses a publish job's input_ref.
func DecodePublishInput(inputRef string) (*PublishInput, error) {
	var p PublishInput
	if err := json.Unmarshal([]byte(inputRef), &p); err != nil {
		return nil, queue.Failf(models.FailureValidation, "decode publish input: %v", err)
	}
	if p.VideoRef == "" || p.Platform == "" {
		return nil, queue.Failf(models.FailureValidation, "publish input missing video_ref or platform")
	}
	return &p, nil
}

// fetchLocal makes a ref usable as a local file: local paths pass through,
// URLs are downloaded into dir. The cleanup func removes any temp copy.
func fetchLocal(ctx context.Context, client *http.Client, ref, dir string) (path string, cleanup func(), err error) {
	cleanup = func() {}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if _, err := os.Stat(ref); err != nil {
			return "", cleanup, queue.Failf(models.FailureValidation, "video ref %q not found locally: %v", ref, err)
		}
		return ref, cleanup, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", cleanup, queue.Failf(models.FailureValidation, "build fetch request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", cleanup, queue.Failf(models.FailureTransient, "fetch %s: %v", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", cleanup, queue.Failf(models.FailureTransient, "fetch %s: status %d", ref, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "fetch-*.mp4")
	if err != nil {
		return "", cleanup, queue.Failf(models.FailureFatal, "create temp file: %v", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", cleanup, queue.Failf(models.FailureTransient, "download %s: %v", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", cleanup, queue.Failf(models.FailureFatal, "finish temp file: %v", err)
	}
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

func tempWorkDir(base, jobID string) string {
	return filepath.Join(base, "work", jobID)
}
