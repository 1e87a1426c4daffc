package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// HTTPFeed scans a generic JSON feed endpoint. It is the reference shape
// for per-platform adapters: platform protocol details live entirely
// behind this boundary, and failures surface as (nil, err) which the
// aggregator downgrades to a warning.
type HTTPFeed struct {
	platform string
	baseURL  string
	apiKey   string
	client   *http.Client
	maxItems int
}

// feedItem is the wire shape of one feed entry.
type feedItem struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Author      string   `json:"author"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumbnail   *string  `json:"thumbnail_url"`
	Views       int64    `json:"views"`
	Engagement  float64  `json:"engagement_score"`
	Duration    float64  `json:"duration_seconds"`
	PublishedAt string   `json:"published_at"`
	Tags        []string `json:"tags"`
}

// NewHTTPFeed creates a feed adapter. An empty apiKey is allowed; the
// endpoint decides whether to serve unauthenticated requests.
func NewHTTPFeed(platform, baseURL, apiKey string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		platform: platform,
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		maxItems: 25,
	}
}

// Scan fetches and parses the feed, filtering client-side on publishedAfter.
func (f *HTTPFeed) Scan(ctx context.Context, niche string, publishedAfter time.Time) ([]models.ContentCandidate, error) {
	q := url.Values{}
	q.Set("q", niche)
	q.Set("limit", fmt.Sprint(f.maxItems))
	if !publishedAfter.IsZero() {
		q.Set("published_after", publishedAfter.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", f.platform, err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: feed request failed: %w", f.platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: feed returned status %d", f.platform, resp.StatusCode)
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%s: feed decode failed: %w", f.platform, err)
	}

	out := make([]models.ContentCandidate, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, item.PublishedAt)
		if !publishedAfter.IsZero() && !published.IsZero() && published.Before(publishedAfter) {
			continue
		}
		out = append(out, models.ContentCandidate{
			ID:              fmt.Sprintf("%s_%s", f.platform, item.ID),
			Platform:        f.platform,
			URL:             item.URL,
			Author:          item.Author,
			Title:           item.Title,
			Description:     item.Description,
			ThumbnailURL:    item.Thumbnail,
			Views:           item.Views,
			EngagementScore: clamp01(item.Engagement),
			DurationSeconds: item.Duration,
			DiscoveredAt:    time.Now().UTC(),
			Tags:            item.Tags,
			Metadata:        map[string]any{},
		})
		if len(out) >= f.maxItems {
			break
		}
	}
	return out, nil
}

// Platform returns the platform name.
func (f *HTTPFeed) Platform() string {
	return f.platform
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
