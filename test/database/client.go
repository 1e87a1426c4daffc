package database

import (
	"context"
	"testing"

	"github.com/reelforge/reelforge/pkg/database"
	"github.com/reelforge/reelforge/test/util"
	"github.com/stretchr/testify/require"
)

// NewTestClient creates a test database client on an isolated schema.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL
// service container. In local dev: spins up a testcontainer.
// Migrations run against the fresh schema; cleanup is registered on t.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()

	dsn := util.SetupTestSchema(t)
	client, err := database.OpenDSN(context.Background(), dsn, "test")
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })
	return client
}
