package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/reelforge/reelforge/pkg/models"
)

// TrendStore persists derived niche trend aggregates.
type TrendStore interface {
	UpsertTrend(ctx context.Context, t *models.NicheTrend) error
}

// RecomputeTrends rebuilds the per-platform NicheTrend aggregates for a
// niche from persisted candidates. Trends are fully derived and can be
// recomputed at any time.
func (a *Aggregator) RecomputeTrends(ctx context.Context, niche string, trends TrendStore) error {
	candidates, err := a.store.ListByNiche(ctx, niche, 500)
	if err != nil {
		return fmt.Errorf("load candidates for trends: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	byPlatform := lo.GroupBy(candidates, func(c models.ContentCandidate) string {
		return c.Platform
	})

	now := time.Now().UTC()
	for platform, group := range byPlatform {
		trend := &models.NicheTrend{
			Niche:         niche,
			Platform:      platform,
			TopKeywords:   topKeywords(group, 10),
			AvgEngagement: lo.SumBy(group, func(c models.ContentCandidate) float64 { return c.EngagementScore }) / float64(len(group)),
			LastUpdated:   now,
		}
		if err := trends.UpsertTrend(ctx, trend); err != nil {
			return fmt.Errorf("persist trend for %s/%s: %w", niche, platform, err)
		}
	}
	return nil
}

// topKeywords returns the n most frequent tags across the group, ties
// broken alphabetically so output is deterministic.
func topKeywords(candidates []models.ContentCandidate, n int) []string {
	counts := make(map[string]int)
	for _, c := range candidates {
		for _, tag := range c.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				counts[tag]++
			}
		}
	}
	keywords := lo.Keys(counts)
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}
