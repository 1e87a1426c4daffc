package scanner

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// Noop is the canonical fallback adapter for platforms whose credentials
// or API keys are missing: it always returns an empty list and never fails.
type Noop struct {
	platform string
}

// NewNoop creates a no-op adapter for the given platform name.
func NewNoop(platform string) *Noop {
	return &Noop{platform: platform}
}

// Scan returns no candidates.
func (n *Noop) Scan(_ context.Context, _ string, _ time.Time) ([]models.ContentCandidate, error) {
	return nil, nil
}

// Platform returns the platform name.
func (n *Noop) Platform() string {
	return n.platform
}
