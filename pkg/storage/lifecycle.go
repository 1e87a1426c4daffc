package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/reelforge/reelforge/pkg/config"
)

// keyPrefix namespaces migrated outputs in the bucket.
const keyPrefix = "outputs/"

// Lifecycle migrates the outputs directory to the object store when it
// outgrows the configured threshold and garbage-collects expired objects.
// Runs are collapsed; a sweep starting while one is in flight joins it.
type Lifecycle struct {
	dir    string
	store  ObjectStore
	bucket string
	pool   *pgxpool.Pool
	cfg    *config.StorageConfig
	flight singleflight.Group
	now    func() time.Time
}

// NewLifecycle builds the manager for one outputs directory.
func NewLifecycle(dir string, store ObjectStore, bucket string, pool *pgxpool.Pool, cfg *config.StorageConfig) *Lifecycle {
	return &Lifecycle{
		dir:    dir,
		store:  store,
		bucket: bucket,
		pool:   pool,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SweepReport summarizes one lifecycle run.
type SweepReport struct {
	ScannedBytes  int64
	MigratedFiles int
	MigratedBytes int64
	ReclaimedKeys int
}

// Sweep runs one migration + retention pass.
func (l *Lifecycle) Sweep(ctx context.Context) (*SweepReport, error) {
	result, err, _ := l.flight.Do("sweep", func() (any, error) {
		return l.sweep(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SweepReport), nil
}

func (l *Lifecycle) sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	files, total, err := scanDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("scan outputs dir: %w", err)
	}
	report.ScannedBytes = total

	if total > l.cfg.ThresholdBytes {
		target := int64(float64(l.cfg.ThresholdBytes) * l.cfg.TargetRatio)
		slog.Info("Outputs directory over threshold, migrating",
			"size", total, "threshold", l.cfg.ThresholdBytes, "target", target)
		if err := l.migrate(ctx, files, total, target, report); err != nil {
			return report, err
		}
	}

	if err := l.reclaim(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

type localFile struct {
	path    string
	size    int64
	modTime time.Time
}

// scanDir walks dir and returns its regular files plus the total size.
func scanDir(dir string) ([]localFile, int64, error) {
	var files []localFile
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, localFile{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, 0, err
	}
	return files, total, nil
}

// migrate moves the oldest files to the object store until the directory
// fits under target. A file migrates atomically from the store's point of
// view: upload, rewrite every ref in one transaction, then delete the
// local copy. Any failure keeps the local file authoritative.
func (l *Lifecycle) migrate(ctx context.Context, files []localFile, total, target int64, report *SweepReport) error {
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	remaining := total
	for _, f := range files {
		if remaining <= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		key := keyPrefix + filepath.Base(f.path)
		if err := l.migrateFile(ctx, f.path, key); err != nil {
			slog.Error("Migration failed for file, keeping local copy",
				"path", f.path, "error", err)
			continue
		}
		remaining -= f.size
		report.MigratedFiles++
		report.MigratedBytes += f.size
	}
	return nil
}

func (l *Lifecycle) migrateFile(ctx context.Context, path, key string) error {
	if err := l.store.Upload(ctx, key, path); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	ref := ObjectRef(l.bucket, key)
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ref rewrite: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET output_ref = $1, updated_at = now() WHERE output_ref = $2`,
		ref, path); err != nil {
		return fmt.Errorf("rewrite job refs: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE scheduled_posts SET video_ref = $1, updated_at = now() WHERE video_ref = $2`,
		ref, path); err != nil {
		return fmt.Errorf("rewrite post refs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ref rewrite: %w", err)
	}

	if err := os.Remove(path); err != nil {
		// Refs already point at the object store; the stale local copy is
		// harmless and the next sweep retries the delete.
		slog.Warn("Migrated file could not be removed locally", "path", path, "error", err)
	}
	slog.Info("Migrated output to object store", "path", path, "key", key)
	return nil
}

// reclaim deletes object-store keys older than the retention period.
func (l *Lifecycle) reclaim(ctx context.Context, report *SweepReport) error {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	keys, err := l.store.ListOlderThan(ctx, keyPrefix, cutoff)
	if err != nil {
		return fmt.Errorf("list expired objects: %w", err)
	}
	for _, key := range keys {
		if err := l.store.Delete(ctx, key); err != nil {
			slog.Error("Failed to delete expired object", "key", key, "error", err)
			continue
		}
		report.ReclaimedKeys++
	}
	if report.ReclaimedKeys > 0 {
		slog.Info("Reclaimed expired objects", "count", report.ReclaimedKeys, "cutoff", cutoff)
	}
	return nil
}
