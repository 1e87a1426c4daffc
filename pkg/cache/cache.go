// Package cache provides the shared Redis-backed key-value cache used for
// discovery trend caching and the audit ring.
package cache

import (
	"context"
	"time"
)

// Cache is the KV surface the core depends on. Values are JSON documents;
// all entries are TTL-bounded except ring lists, which are length-bounded.
type Cache interface {
	// GetJSON decodes the value at key into dest. The second return is
	// false on miss (including decode failure, which is treated as a miss).
	GetJSON(ctx context.Context, key string, dest any) (bool, error)

	// SetJSON encodes value as JSON and stores it under key with ttl.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// PushRing left-pushes a JSON entry onto a list and trims it to maxLen.
	PushRing(ctx context.Context, key string, value any, maxLen int64) error

	// RangeRing returns up to n most recent raw JSON ring entries.
	RangeRing(ctx context.Context, key string, n int64) ([]string, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
