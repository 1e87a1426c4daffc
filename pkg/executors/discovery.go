package executors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/services"
)

// DiscoveryExecutor runs discovery jobs. The input_ref is the niche name.
type DiscoveryExecutor struct {
	aggregator *discovery.Aggregator
	niches     *services.NicheService
	horizon    models.Horizon
}

// NewDiscoveryExecutor builds the executor. horizon defaults to 7d.
func NewDiscoveryExecutor(aggregator *discovery.Aggregator, niches *services.NicheService, horizon models.Horizon) *DiscoveryExecutor {
	if !horizon.Valid() {
		horizon = models.Horizon7d
	}
	return &DiscoveryExecutor{aggregator: aggregator, niches: niches, horizon: horizon}
}

// Kind implements queue.Executor.
func (e *DiscoveryExecutor) Kind() models.JobKind { return models.JobKindDiscovery }

// Execute aggregates candidates for the niche, then rebuilds its trend
// aggregates. Trend failures do not fail the job; the candidates are
// already persisted.
func (e *DiscoveryExecutor) Execute(ctx context.Context, job *models.Job, progress queue.ProgressReporter) (string, error) {
	niche := job.InputRef
	progress.Report(ctx, "Aggregating", 10)

	candidates, err := e.aggregator.Aggregate(ctx, niche, e.horizon)
	if err != nil {
		return "", queue.Failf(models.FailureTransient, "aggregate %q: %v", niche, err)
	}
	progress.Report(ctx, "Recomputing trends", 70)

	if err := e.aggregator.RecomputeTrends(ctx, niche, e.niches); err != nil {
		slog.Warn("Trend recompute failed", "niche", niche, "error", err)
	}
	progress.Report(ctx, fmt.Sprintf("Found %d candidates", len(candidates)), 95)

	return discovery.TrendsKey(niche, e.horizon), nil
}
