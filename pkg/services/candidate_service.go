// Package services contains the persistence services. Each service owns
// the SQL for one aggregate and exposes typed operations to the rest of
// the core.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/models"
)

// CandidateService persists discovered content candidates and their
// viral patterns.
type CandidateService struct {
	pool *pgxpool.Pool
}

// NewCandidateService creates a new candidate service.
func NewCandidateService(pool *pgxpool.Pool) *CandidateService {
	return &CandidateService{pool: pool}
}

// Upsert inserts candidates keyed on id, tagging them with niche.
// Mutable fields (views, engagement_score, viral_score) are last-write-wins;
// immutable fields are create-only.
func (s *CandidateService) Upsert(ctx context.Context, niche string, candidates []models.ContentCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range candidates {
		c := &candidates[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to persist invalid candidate: %w", err)
		}
		tags, err := json.Marshal(orEmptySlice(c.Tags))
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", c.ID, err)
		}
		meta, err := json.Marshal(orEmptyMap(c.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}
		batch.Queue(`
			INSERT INTO content_candidates
				(id, platform, url, author, title, description, thumbnail_url,
				 views, engagement_score, viral_score, duration_seconds,
				 discovered_at, tags, niche, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (id) DO UPDATE SET
				views = EXCLUDED.views,
				engagement_score = EXCLUDED.engagement_score,
				viral_score = EXCLUDED.viral_score`,
			c.ID, c.Platform, c.URL, c.Author, c.Title, c.Description, c.ThumbnailURL,
			c.Views, c.EngagementScore, c.ViralScore, c.DurationSeconds,
			c.DiscoveredAt.UTC(), tags, niche, meta)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range candidates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert candidate batch: %w", err)
		}
	}
	return nil
}

// Get returns one candidate by id.
func (s *CandidateService) Get(ctx context.Context, id string) (*models.ContentCandidate, error) {
	row := s.pool.QueryRow(ctx, candidateColumns+` WHERE id = $1`, id)
	return scanCandidate(row)
}

// Search returns candidates whose title, description or niche contains the
// query substring (case-insensitive), best views first.
func (s *CandidateService) Search(ctx context.Context, query string, limit int) ([]models.ContentCandidate, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, candidateColumns+`
		WHERE title ILIKE '%' || $1 || '%'
		   OR description ILIKE '%' || $1 || '%'
		   OR niche ILIKE '%' || $1 || '%'
		ORDER BY views DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ListByNiche returns candidates tagged with niche, best views first.
func (s *CandidateService) ListByNiche(ctx context.Context, niche string, limit int) ([]models.ContentCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, candidateColumns+`
		WHERE niche = $1 ORDER BY views DESC LIMIT $2`, niche, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates by niche: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// UpsertPattern writes the viral pattern for a candidate, replacing any
// previous one (at most one pattern per candidate, last write wins).
func (s *CandidateService) UpsertPattern(ctx context.Context, p *models.ViralPattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.AnalyzedAt.IsZero() {
		p.AnalyzedAt = time.Now().UTC()
	}
	styles, err := json.Marshal(orEmptySlice(p.StyleKeywords))
	if err != nil {
		return fmt.Errorf("marshal style keywords: %w", err)
	}
	triggers, err := json.Marshal(orEmptySlice(p.EmotionalTriggers))
	if err != nil {
		return fmt.Errorf("marshal emotional triggers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO viral_patterns
			(id, content_id, hook_score, retention_estimate, pacing_bpm,
			 style_keywords, emotional_triggers, analyzed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (content_id) DO UPDATE SET
			hook_score = EXCLUDED.hook_score,
			retention_estimate = EXCLUDED.retention_estimate,
			pacing_bpm = EXCLUDED.pacing_bpm,
			style_keywords = EXCLUDED.style_keywords,
			emotional_triggers = EXCLUDED.emotional_triggers,
			analyzed_at = EXCLUDED.analyzed_at`,
		p.ID, p.ContentID, p.HookScore, p.RetentionEstimate, p.PacingBPM,
		styles, triggers, p.AnalyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert viral pattern for %s: %w", p.ContentID, err)
	}
	return nil
}

// GetPattern returns the pattern for a candidate, or pgx.ErrNoRows.
func (s *CandidateService) GetPattern(ctx context.Context, contentID string) (*models.ViralPattern, error) {
	var (
		p        models.ViralPattern
		styles   []byte
		triggers []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, content_id, hook_score, retention_estimate, pacing_bpm,
		       style_keywords, emotional_triggers, analyzed_at
		FROM viral_patterns WHERE content_id = $1`, contentID).
		Scan(&p.ID, &p.ContentID, &p.HookScore, &p.RetentionEstimate, &p.PacingBPM,
			&styles, &triggers, &p.AnalyzedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(styles, &p.StyleKeywords); err != nil {
		return nil, fmt.Errorf("decode style keywords: %w", err)
	}
	if err := json.Unmarshal(triggers, &p.EmotionalTriggers); err != nil {
		return nil, fmt.Errorf("decode emotional triggers: %w", err)
	}
	return &p, nil
}

const candidateColumns = `
	SELECT id, platform, url, author, title, description, thumbnail_url,
	       views, engagement_score, viral_score, duration_seconds,
	       discovered_at, tags, niche, metadata
	FROM content_candidates`

func scanCandidate(row pgx.Row) (*models.ContentCandidate, error) {
	var (
		c    models.ContentCandidate
		tags []byte
		meta []byte
	)
	err := row.Scan(&c.ID, &c.Platform, &c.URL, &c.Author, &c.Title, &c.Description,
		&c.ThumbnailURL, &c.Views, &c.EngagementScore, &c.ViralScore,
		&c.DurationSeconds, &c.DiscoveredAt, &tags, &c.Niche, &meta)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &c.Tags); err != nil {
		return nil, fmt.Errorf("decode candidate tags: %w", err)
	}
	if err := json.Unmarshal(meta, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode candidate metadata: %w", err)
	}
	return &c, nil
}

func scanCandidates(rows pgx.Rows) ([]models.ContentCandidate, error) {
	var out []models.ContentCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
