// Package scanner defines the adapter contract for platform candidate
// discovery and the registry the aggregator fans out over.
//
// Adapters are pure request/parse transducers: they never mutate shared
// state, never panic across the boundary, and surface transport or parse
// failures as an empty list plus an error the aggregator logs as a warning.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// Adapter fetches candidates for a niche from one platform.
//
// Scan must be safe to call concurrently with itself and other adapters,
// must respect publishedAfter when the upstream API supports it (otherwise
// best-effort client-side filtering), and must honor ctx deadlines.
type Adapter interface {
	Scan(ctx context.Context, niche string, publishedAfter time.Time) ([]models.ContentCandidate, error)

	// Platform returns the stable platform name used for dedupe keys
	// and metrics.
	Platform() string
}

// Registry holds the registered adapters. Iteration order is deterministic
// (sorted by platform name) so fan-out behavior is reproducible.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same platform twice is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Platform()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter for platform %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// All returns the adapters sorted by platform name.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
