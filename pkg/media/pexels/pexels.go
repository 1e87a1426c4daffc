// Package pexels provides B-roll stock footage from the Pexels video API.
package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/reelforge/reelforge/pkg/media"
)

const defaultBaseURL = "https://api.pexels.com/videos"

// Client is a StockProvider backed by Pexels.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New returns a client, or nil when no API key is configured (B-roll then
// degrades to skipped overlays).
func New(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type videoFile struct {
	Link    string `json:"link"`
	Width   int    `json:"width"`
	Quality string `json:"quality"`
}

type searchResponse struct {
	Videos []struct {
		ID         int64       `json:"id"`
		VideoFiles []videoFile `json:"video_files"`
	} `json:"videos"`
}

// Search implements media.StockProvider.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]media.StockVideo, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", fmt.Sprint(limit))
	q.Set("orientation", "portrait")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pexels search returned %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("pexels decode: %w", err)
	}

	out := make([]media.StockVideo, 0, len(parsed.Videos))
	for _, v := range parsed.Videos {
		link := bestFile(v.VideoFiles)
		if link == "" {
			continue
		}
		out = append(out, media.StockVideo{ID: fmt.Sprint(v.ID), URL: link})
	}
	return out, nil
}

// Download implements media.StockProvider.
func (c *Client) Download(ctx context.Context, video media.StockVideo, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, video.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pexels download returned %d", resp.StatusCode)
	}

	path := filepath.Join(dir, "broll_"+video.ID+".mp4")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("pexels download: %w", err)
	}
	return path, nil
}

// bestFile prefers HD portrait files.
func bestFile(files []videoFile) string {
	var best string
	bestWidth := 0
	for _, f := range files {
		if f.Quality == "hd" && f.Width > bestWidth {
			best = f.Link
			bestWidth = f.Width
		}
	}
	if best == "" && len(files) > 0 {
		best = files[0].Link
	}
	return best
}
