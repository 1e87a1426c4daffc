package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/models"
)

// NicheService persists monitored niches and their derived trends.
type NicheService struct {
	pool *pgxpool.Pool
}

// NewNicheService creates a new niche service.
func NewNicheService(pool *pgxpool.Pool) *NicheService {
	return &NicheService{pool: pool}
}

// Upsert adds a niche or toggles its active flag.
func (s *NicheService) Upsert(ctx context.Context, niche string, active bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monitored_niches (niche, is_active)
		VALUES ($1, $2)
		ON CONFLICT (niche) DO UPDATE SET is_active = EXCLUDED.is_active`,
		niche, active)
	if err != nil {
		return fmt.Errorf("upsert niche %s: %w", niche, err)
	}
	return nil
}

// ListActive returns the active niches. Only these participate in sweeps.
func (s *NicheService) ListActive(ctx context.Context) ([]models.MonitoredNiche, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT niche, is_active, last_scanned_at
		FROM monitored_niches WHERE is_active ORDER BY niche`)
	if err != nil {
		return nil, fmt.Errorf("list active niches: %w", err)
	}
	defer rows.Close()
	var out []models.MonitoredNiche
	for rows.Next() {
		var n models.MonitoredNiche
		if err := rows.Scan(&n.Niche, &n.IsActive, &n.LastScannedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// List returns all niches.
func (s *NicheService) List(ctx context.Context) ([]models.MonitoredNiche, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT niche, is_active, last_scanned_at FROM monitored_niches ORDER BY niche`)
	if err != nil {
		return nil, fmt.Errorf("list niches: %w", err)
	}
	defer rows.Close()
	var out []models.MonitoredNiche
	for rows.Next() {
		var n models.MonitoredNiche
		if err := rows.Scan(&n.Niche, &n.IsActive, &n.LastScannedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkScanned records a completed sweep for the niche.
func (s *NicheService) MarkScanned(ctx context.Context, niche string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE monitored_niches SET last_scanned_at = $2 WHERE niche = $1`,
		niche, at.UTC())
	if err != nil {
		return fmt.Errorf("mark niche scanned: %w", err)
	}
	return nil
}

// UpsertTrend writes a derived per-platform trend aggregate.
func (s *NicheService) UpsertTrend(ctx context.Context, t *models.NicheTrend) error {
	keywords, err := json.Marshal(orEmptySlice(t.TopKeywords))
	if err != nil {
		return fmt.Errorf("marshal trend keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO niche_trends (niche, platform, top_keywords, avg_engagement, last_updated)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (niche, platform) DO UPDATE SET
			top_keywords = EXCLUDED.top_keywords,
			avg_engagement = EXCLUDED.avg_engagement,
			last_updated = EXCLUDED.last_updated`,
		t.Niche, t.Platform, keywords, t.AvgEngagement, t.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("upsert trend %s/%s: %w", t.Niche, t.Platform, err)
	}
	return nil
}

// Trends returns the stored trend aggregates for a niche.
func (s *NicheService) Trends(ctx context.Context, niche string) ([]models.NicheTrend, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT niche, platform, top_keywords, avg_engagement, last_updated
		FROM niche_trends WHERE niche = $1 ORDER BY platform`, niche)
	if err != nil {
		return nil, fmt.Errorf("list trends: %w", err)
	}
	defer rows.Close()
	var out []models.NicheTrend
	for rows.Next() {
		var (
			t        models.NicheTrend
			keywords []byte
		)
		if err := rows.Scan(&t.Niche, &t.Platform, &keywords, &t.AvgEngagement, &t.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(keywords, &t.TopKeywords); err != nil {
			return nil, fmt.Errorf("decode trend keywords: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
