package database

import (
	"context"
	"time"
)

// HealthCheck verifies database reachability with a short deadline.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.Pool.Ping(ctx)
}
