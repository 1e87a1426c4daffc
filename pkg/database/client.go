// Package database provides the PostgreSQL connection pool and migration
// utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql (migrations)
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the pgx pool and exposes the stdlib handle used by
// migrations and pg_notify publishing.
type Client struct {
	Pool *pgxpool.Pool
	db   *stdsql.DB
	dsn  string
}

// DB returns the database/sql handle for health checks and NOTIFY.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// DSN returns the connection string (used by the notify listener's
// dedicated connection).
func (c *Client) DSN() string {
	return c.dsn
}

// Close releases both connection handles.
func (c *Client) Close() error {
	c.Pool.Close()
	return c.db.Close()
}

// NewClient opens a connection pool, applies pending migrations and
// returns a ready client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	return openClient(ctx, cfg.DSN(), cfg.Database, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)
}

// OpenDSN opens a client directly from a connection string with default
// pool sizing. Used by tests that provision their own database.
func OpenDSN(ctx context.Context, dsn, dbName string) (*Client, error) {
	return openClient(ctx, dsn, dbName, 10, 5, 30*time.Minute, 5*time.Minute)
}

func openClient(ctx context.Context, dsn, dbName string, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) (*Client, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, dbName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	poolCfg.MaxConns = int32(maxOpen)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping pgx pool: %w", err)
	}

	return &Client{Pool: pool, db: db, dsn: dsn}, nil
}

// runMigrations applies embedded SQL migrations with golang-migrate.
// Migration files are embedded into the binary via go:embed so production
// deployments never depend on external files.
func runMigrations(db *stdsql.DB, dbName string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found, binary may be built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the shared
	// *sql.DB passed via postgres.WithInstance().
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}
