// Package discovery implements the candidate discovery aggregator: fan-out
// across scanner adapters, merge, dedupe, persist, LLM-assisted ranking and
// trend caching.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/scanner"
)

// CandidateStore is the persistence surface the aggregator depends on.
// *services.CandidateService satisfies it; tests substitute fakes.
type CandidateStore interface {
	Upsert(ctx context.Context, niche string, candidates []models.ContentCandidate) error
	Search(ctx context.Context, query string, limit int) ([]models.ContentCandidate, error)
	ListByNiche(ctx context.Context, niche string, limit int) ([]models.ContentCandidate, error)
	UpsertPattern(ctx context.Context, p *models.ViralPattern) error
}

// Aggregator fans out discovery requests and produces ranked candidates.
type Aggregator struct {
	cfg      *config.DiscoveryConfig
	registry *scanner.Registry
	store    CandidateStore
	cache    cache.Cache
	ranker   *Ranker
}

// NewAggregator creates an aggregator. ranker may be nil (LLM disabled);
// ordering then falls back to views descending.
func NewAggregator(cfg *config.DiscoveryConfig, registry *scanner.Registry, store CandidateStore, kv cache.Cache, ranker *Ranker) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		cache:    kv,
		ranker:   ranker,
	}
}

// TrendsKey is the cache key for one (niche, horizon) aggregation.
func TrendsKey(niche string, horizon models.Horizon) string {
	return fmt.Sprintf("discovery:trends:%s:%s", niche, horizon)
}

// Aggregate produces the ordered candidate list for a niche, best first.
//
// Within the cache TTL, repeated calls return the cached value and perform
// no adapter calls. Otherwise: fan-out with per-adapter timeouts under an
// outer deadline, first-seen dedupe, last-write-wins persist, LLM rank
// with views-descending fallback, then cache write.
func (a *Aggregator) Aggregate(ctx context.Context, niche string, horizon models.Horizon) ([]models.ContentCandidate, error) {
	if !horizon.Valid() {
		return nil, fmt.Errorf("invalid horizon %q", horizon)
	}
	log := slog.With("niche", niche, "horizon", horizon)
	key := TrendsKey(niche, horizon)

	var cached []models.ContentCandidate
	if hit, err := a.cache.GetJSON(ctx, key, &cached); err != nil {
		log.Warn("Trend cache probe failed, proceeding with live aggregation", "error", err)
	} else if hit {
		log.Info("Trend cache hit", "candidates", len(cached))
		return cached, nil
	}

	merged := a.fanOut(ctx, niche, time.Now().UTC().Add(-horizon.Duration()))

	if err := a.store.Upsert(ctx, niche, merged); err != nil {
		return nil, fmt.Errorf("persist candidates: %w", err)
	}

	ranked := a.rank(ctx, merged)

	if err := a.cache.SetJSON(ctx, key, ranked, a.cfg.CacheTTL); err != nil {
		log.Warn("Trend cache write failed", "error", err)
	}
	log.Info("Aggregation complete", "candidates", len(ranked))
	return ranked, nil
}

// fanOut calls every registered adapter concurrently and merges results,
// keeping the first seen candidate per id. Slow or failing adapters are
// dropped with a warning, never failed.
func (a *Aggregator) fanOut(ctx context.Context, niche string, publishedAfter time.Time) []models.ContentCandidate {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FanoutDeadline)
	defer cancel()

	adapters := a.registry.All()
	results := make([][]models.ContentCandidate, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range adapters {
		g.Go(func() error {
			actx, acancel := context.WithTimeout(gctx, a.cfg.AdapterTimeout)
			defer acancel()

			found, err := adapter.Scan(actx, niche, publishedAfter)
			if err != nil {
				slog.Warn("Scanner adapter failed, dropping its results",
					"platform", adapter.Platform(), "niche", niche, "error", err)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait() // adapter errors never propagate

	seen := make(map[string]struct{})
	var merged []models.ContentCandidate
	for _, batch := range results {
		for _, c := range batch {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			if err := c.Validate(); err != nil {
				slog.Warn("Dropping invalid candidate", "error", err)
				continue
			}
			seen[c.ID] = struct{}{}
			merged = append(merged, c)
		}
	}
	return merged
}

// rank orders candidates. With an available ranker and enough candidates,
// the top-N by views are reordered by the model; everything else keeps its
// views-descending position at the tail. Any ranker failure falls back to
// views descending. Candidates are never dropped.
func (a *Aggregator) rank(ctx context.Context, candidates []models.ContentCandidate) []models.ContentCandidate {
	byViews := make([]models.ContentCandidate, len(candidates))
	copy(byViews, candidates)
	sort.SliceStable(byViews, func(i, j int) bool {
		return byViews[i].Views > byViews[j].Views
	})

	if a.ranker == nil || len(byViews) < a.cfg.MinCandidatesForRank {
		return byViews
	}

	topN := a.cfg.RankTopN
	if topN > len(byViews) {
		topN = len(byViews)
	}
	head := byViews[:topN]

	perm, err := a.ranker.Rank(ctx, head)
	if err != nil {
		slog.Warn("LLM ranking failed, falling back to views ordering", "error", err)
		return byViews
	}

	ranked := make([]models.ContentCandidate, 0, len(byViews))
	for _, idx := range perm {
		ranked = append(ranked, head[idx])
	}
	ranked = append(ranked, byViews[topN:]...)
	return ranked
}
