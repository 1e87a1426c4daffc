package models

import (
	"fmt"
	"time"
)

// Horizon is the discovery lookback window.
type Horizon string

// Supported discovery horizons.
const (
	Horizon24h Horizon = "24h"
	Horizon7d  Horizon = "7d"
	Horizon30d Horizon = "30d"
)

// Duration converts a horizon to its wall-clock lookback.
func (h Horizon) Duration() time.Duration {
	switch h {
	case Horizon24h:
		return 24 * time.Hour
	case Horizon7d:
		return 7 * 24 * time.Hour
	case Horizon30d:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Valid reports whether h is one of the supported horizons.
func (h Horizon) Valid() bool {
	return h == Horizon24h || h == Horizon7d || h == Horizon30d
}

// ContentCandidate is a third-party source video discovered by a scanner
// adapter. Identity is ID (platform-prefixed, globally unique). After first
// insert only Views, EngagementScore and ViralScore may change on rescans.
type ContentCandidate struct {
	ID              string         `json:"id"`
	Platform        string         `json:"platform"`
	URL             string         `json:"url"`
	Author          string         `json:"author"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	ThumbnailURL    *string        `json:"thumbnail_url"`
	Views           int64          `json:"views"`
	EngagementScore float64        `json:"engagement_score"`
	ViralScore      float64        `json:"viral_score"`
	DurationSeconds float64        `json:"duration_seconds"`
	DiscoveredAt    time.Time      `json:"discovered_at"`
	Tags            []string       `json:"tags"`
	Niche           string         `json:"niche,omitempty"`
	Metadata        map[string]any `json:"metadata"`
}

// Validate enforces the candidate score invariants.
func (c *ContentCandidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("candidate missing id")
	}
	if c.EngagementScore < 0 || c.EngagementScore > 1 {
		return fmt.Errorf("candidate %s: engagement_score %f out of [0,1]", c.ID, c.EngagementScore)
	}
	if c.ViralScore < 0 || c.ViralScore > 100 {
		return fmt.Errorf("candidate %s: viral_score %f out of [0,100]", c.ID, c.ViralScore)
	}
	return nil
}

// ViralPattern is the analyzed virality fingerprint of a candidate.
// At most one pattern exists per candidate (last write wins).
type ViralPattern struct {
	ID                string    `json:"id"`
	ContentID         string    `json:"content_id"`
	HookScore         float64   `json:"hook_score"`
	RetentionEstimate float64   `json:"retention_estimate"`
	PacingBPM         *float64  `json:"pacing_bpm,omitempty"`
	StyleKeywords     []string  `json:"style_keywords"`
	EmotionalTriggers []string  `json:"emotional_triggers"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// MonitoredNiche is a topical tag swept by the sentinel.
type MonitoredNiche struct {
	Niche         string     `json:"niche"`
	IsActive      bool       `json:"is_active"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// NicheTrend is a derived per-platform aggregate, recomputable from
// persisted candidates.
type NicheTrend struct {
	Niche         string    `json:"niche"`
	Platform      string    `json:"platform"`
	TopKeywords   []string  `json:"top_keywords"`
	AvgEngagement float64   `json:"avg_engagement"`
	LastUpdated   time.Time `json:"last_updated"`
}
