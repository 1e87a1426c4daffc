package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelforge/reelforge/pkg/models"
)

// Search queries the store by substring over title, description and niche.
// When fewer rows than the live threshold return, a live aggregation runs
// with the query used as the niche, and the union is returned.
func (a *Aggregator) Search(ctx context.Context, query string, limit int) ([]models.ContentCandidate, error) {
	if limit <= 0 {
		limit = 20
	}
	stored, err := a.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store search: %w", err)
	}
	if len(stored) >= a.cfg.SearchLiveThreshold {
		return stored, nil
	}

	slog.Info("Store search below live threshold, triggering aggregation",
		"query", query, "stored", len(stored))
	live, err := a.Aggregate(ctx, query, models.Horizon7d)
	if err != nil {
		slog.Warn("Live search aggregation failed, returning stored rows only",
			"query", query, "error", err)
		return stored, nil
	}

	seen := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		seen[c.ID] = struct{}{}
	}
	union := stored
	for _, c := range live {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		union = append(union, c)
		if len(union) >= limit {
			break
		}
	}
	return union, nil
}
