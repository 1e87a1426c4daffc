package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/reelforge/reelforge/pkg/llm"
	"github.com/reelforge/reelforge/pkg/models"
)

// Ranker asks the model to reorder a candidate window by predicted viral
// potential. It returns a permutation of input indices; it never drops
// candidates, and any protocol failure surfaces as an error the caller
// downgrades to the views-descending fallback.
type Ranker struct {
	client llm.Client
}

// NewRanker creates a ranker. Returns nil when client is nil so callers
// can treat "no LLM" uniformly.
func NewRanker(client llm.Client) *Ranker {
	if client == nil {
		return nil
	}
	return &Ranker{client: client}
}

type rankResponse struct {
	Order []int `json:"order"`
}

// Rank returns a permutation of [0,len(candidates)). Indices missing from
// the model response are appended in their original relative order.
func (r *Ranker) Rank(ctx context.Context, candidates []models.ContentCandidate) ([]int, error) {
	prompt := buildRankPrompt(candidates)

	response, err := r.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rank completion: %w", err)
	}

	var parsed rankResponse
	if err := llm.DecodeJSON(response, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(candidates))
	perm := make([]int, 0, len(candidates))
	for _, idx := range parsed.Order {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			return nil, fmt.Errorf("ranker returned invalid permutation index %d", idx)
		}
		seen[idx] = true
		perm = append(perm, idx)
	}
	// Unseen indices keep their original relative order at the tail.
	for i := range candidates {
		if !seen[i] {
			perm = append(perm, i)
		}
	}
	return perm, nil
}

func buildRankPrompt(candidates []models.ContentCandidate) string {
	var b strings.Builder
	b.WriteString("You rank short-form video candidates by predicted viral potential.\n")
	b.WriteString("Consider views, engagement, title hooks and recency. Respond with strict JSON only:\n")
	b.WriteString(`{"order": [<indices best first>]}` + "\n\nCandidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %q by %s - views=%d engagement=%.2f duration=%.0fs\n",
			i, c.Platform, c.Title, c.Author, c.Views, c.EngagementScore, c.DurationSeconds)
	}
	return b.String()
}
