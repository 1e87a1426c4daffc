package scanner

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// Fixture serves a static candidate list, used by tests and local
// development without upstream credentials.
type Fixture struct {
	platform   string
	candidates []models.ContentCandidate
	err        error

	// Calls counts Scan invocations (read by cache-idempotence tests).
	Calls int
}

// NewFixture creates a fixture adapter serving the given candidates.
func NewFixture(platform string, candidates []models.ContentCandidate) *Fixture {
	return &Fixture{platform: platform, candidates: candidates}
}

// NewFailingFixture creates a fixture adapter that always errors.
func NewFailingFixture(platform string, err error) *Fixture {
	return &Fixture{platform: platform, err: err}
}

// Scan returns the fixed candidate set, filtered on publishedAfter.
func (f *Fixture) Scan(ctx context.Context, _ string, publishedAfter time.Time) ([]models.ContentCandidate, error) {
	f.Calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.ContentCandidate, 0, len(f.candidates))
	for _, c := range f.candidates {
		if !publishedAfter.IsZero() && c.DiscoveredAt.Before(publishedAfter) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Platform returns the platform name.
func (f *Fixture) Platform() string {
	return f.platform
}
