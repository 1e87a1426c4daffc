package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelforge/reelforge/pkg/models"
)

// ErrNoDuePosts indicates the post sweep found nothing to publish.
var ErrNoDuePosts = errors.New("no due posts")

// PostService persists scheduled posts and their publish history.
type PostService struct {
	pool *pgxpool.Pool
}

// NewPostService creates a new post service.
func NewPostService(pool *pgxpool.Pool) *PostService {
	return &PostService{pool: pool}
}

// Schedule inserts a pending post.
func (s *PostService) Schedule(ctx context.Context, post *models.ScheduledPost) (*models.ScheduledPost, error) {
	if post.VideoRef == "" || post.Platform == "" {
		return nil, fmt.Errorf("scheduled post requires video_ref and platform")
	}
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	meta, err := json.Marshal(orEmptyMap(post.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal post metadata: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO scheduled_posts (id, video_ref, platform, account_id, scheduled_for, status, metadata)
		VALUES ($1,$2,$3,$4,$5,'pending',$6)
		RETURNING `+postColumns, post.ID, post.VideoRef, post.Platform, post.AccountID,
		post.ScheduledFor.UTC(), meta)
	return scanPost(row)
}

// ClaimDue claims one due pending post by moving it to publishing, same
// CTE shape the job workers use. The claim is durable: once committed the
// row is invisible to every other sweep until MarkPublished or MarkFailed
// records the outcome.
func (s *PostService) ClaimDue(ctx context.Context, now time.Time) (*models.ScheduledPost, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM scheduled_posts
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE scheduled_posts SET status = 'publishing', updated_at = now()
		FROM next
		WHERE scheduled_posts.id = next.id
		RETURNING scheduled_posts.id, scheduled_posts.video_ref,
			scheduled_posts.platform, scheduled_posts.account_id,
			scheduled_posts.scheduled_for, scheduled_posts.status,
			scheduled_posts.metadata, scheduled_posts.created_at,
			scheduled_posts.updated_at`, now.UTC())
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDuePosts
		}
		return nil, fmt.Errorf("claim due post: %w", err)
	}
	return post, nil
}

// ReclaimStale fails publishing posts whose claim outlived threshold (the
// sweep died mid-upload). The upload outcome is unknown, so the post is
// failed rather than re-queued; never more than one publisher invocation
// per post. Returns the number of posts reclaimed.
func (s *PostService) ReclaimStale(ctx context.Context, threshold time.Duration) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM scheduled_posts
		WHERE status = 'publishing' AND updated_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(threshold.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("query stale claims: %w", err)
	}
	defer rows.Close()
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range stale {
		msg := fmt.Sprintf("claim expired after %s with no publish outcome", threshold)
		if err := s.finish(ctx, id, models.PostStatusFailed, "", msg); err != nil {
			return reclaimed, fmt.Errorf("reclaim post %s: %w", id, err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// MarkPublished transitions a claimed post to published and appends a
// history entry in the same transaction.
func (s *PostService) MarkPublished(ctx context.Context, id, remoteURL string) error {
	return s.finish(ctx, id, models.PostStatusPublished, remoteURL, "")
}

// MarkFailed transitions a claimed post to failed and records the error.
func (s *PostService) MarkFailed(ctx context.Context, id, errMsg string) error {
	return s.finish(ctx, id, models.PostStatusFailed, "", errMsg)
}

func (s *PostService) finish(ctx context.Context, id string, status models.PostStatus, remoteURL, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin post finish: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var platform string
	err = tx.QueryRow(ctx, `
		UPDATE scheduled_posts SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'publishing')
		RETURNING platform`, id, status).Scan(&platform)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("post %s is not awaiting publication", id)
		}
		return fmt.Errorf("finish post: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO post_history (id, post_id, platform, remote_url, error)
		VALUES ($1,$2,$3,$4,$5)`,
		uuid.New().String(), id, platform, remoteURL, errMsg); err != nil {
		return fmt.Errorf("write post history: %w", err)
	}
	return tx.Commit(ctx)
}

// Get returns one post by id.
func (s *PostService) Get(ctx context.Context, id string) (*models.ScheduledPost, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1`, id)
	return scanPost(row)
}

// ListPending returns pending posts, earliest first.
func (s *PostService) ListPending(ctx context.Context, limit int) ([]*models.ScheduledPost, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE status = 'pending' ORDER BY scheduled_for ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}
	defer rows.Close()
	var out []*models.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// History returns publish history for a post, newest first.
func (s *PostService) History(ctx context.Context, postID string) ([]models.PostHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, platform, remote_url, error, occurred_at
		FROM post_history WHERE post_id = $1 ORDER BY occurred_at DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post history: %w", err)
	}
	defer rows.Close()
	var out []models.PostHistoryEntry
	for rows.Next() {
		var e models.PostHistoryEntry
		if err := rows.Scan(&e.ID, &e.PostID, &e.Platform, &e.RemoteURL, &e.Error, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const postColumns = `id, video_ref, platform, account_id, scheduled_for, status, metadata, created_at, updated_at`

func scanPost(row pgx.Row) (*models.ScheduledPost, error) {
	var (
		p    models.ScheduledPost
		meta []byte
	)
	err := row.Scan(&p.ID, &p.VideoRef, &p.Platform, &p.AccountID, &p.ScheduledFor,
		&p.Status, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode post metadata: %w", err)
	}
	return &p, nil
}
