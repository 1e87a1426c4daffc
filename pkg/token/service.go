// Package token stores and refreshes OAuth-style platform credentials.
// Tokens are secrets: log output only ever carries redacted forms.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/reelforge/reelforge/pkg/models"
)

// ErrTokenNotFound indicates no credential exists for the platform/account.
var ErrTokenNotFound = errors.New("token not found")

// ErrRefreshFailed indicates the refresh exchange was rejected upstream.
var ErrRefreshFailed = errors.New("token refresh failed")

// Refresher exchanges a refresh token for a new credential payload.
// Platform exchange endpoints are external collaborators.
type Refresher interface {
	Refresh(ctx context.Context, platform, refreshToken string) (*Payload, error)
}

// Payload is a raw credential as returned by a platform token endpoint.
type Payload struct {
	AccountHandle string
	AccessToken   string
	RefreshToken  string
	TokenType     string
	Scope         string
	ExpiresIn     time.Duration
	OwnerID       string
}

// Service is the token/credential store. Reads are cached briefly; writes
// serialize per (platform, account) and invalidate the cache.
type Service struct {
	pool      *pgxpool.Pool
	refresher Refresher
	readCache *gocache.Cache
	flight    singleflight.Group
	now       func() time.Time
}

// NewService creates a token service. refresher may be nil; Refresh then
// always fails with ErrRefreshFailed.
func NewService(pool *pgxpool.Pool, refresher Refresher) *Service {
	return &Service{
		pool:      pool,
		refresher: refresher,
		readCache: gocache.New(30*time.Second, time.Minute),
		now:       time.Now,
	}
}

// Get returns the stored token for a platform/account. An empty
// accountHandle returns the platform's only (or first) account.
func (s *Service) Get(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error) {
	key := cacheKey(platform, accountHandle)
	if cached, ok := s.readCache.Get(key); ok {
		tok := cached.(models.SocialToken)
		return &tok, nil
	}

	tok, err := s.load(ctx, platform, accountHandle)
	if err != nil {
		return nil, err
	}
	s.readCache.Set(key, *tok, gocache.DefaultExpiration)
	return tok, nil
}

// Store writes a credential payload. ExpiresAt is computed as
// now + ExpiresIn and always persisted in UTC.
func (s *Service) Store(ctx context.Context, platform string, payload *Payload) (*models.SocialToken, error) {
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token payload missing access_token")
	}
	var expiresAt *time.Time
	if payload.ExpiresIn > 0 {
		t := s.now().UTC().Add(payload.ExpiresIn)
		expiresAt = &t
	}
	var refresh *string
	if payload.RefreshToken != "" {
		refresh = &payload.RefreshToken
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO social_tokens
			(id, platform, account_handle, access_token, refresh_token,
			 token_type, scope, expires_at, owner_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,$9,now())
		ON CONFLICT (platform, account_handle) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, social_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING `+tokenColumns,
		uuid.New().String(), platform, payload.AccountHandle, payload.AccessToken,
		refresh, payload.TokenType, payload.Scope, expiresAt, payload.OwnerID)

	tok, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	s.readCache.Delete(cacheKey(platform, payload.AccountHandle))
	slog.Info("Stored platform token",
		"platform", platform, "account", payload.AccountHandle, "token", tok.Redacted())
	return tok, nil
}

// IsExpired reports whether the stored token is expired. Missing or
// expiry-less tokens count as expired.
func (s *Service) IsExpired(ctx context.Context, platform, accountHandle string) (bool, error) {
	tok, err := s.Get(ctx, platform, accountHandle)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return true, nil
		}
		return true, err
	}
	return tok.Expired(s.now()), nil
}

// Refresh exchanges the refresh token for a fresh credential. Concurrent
// refreshes of the same (platform, account) are collapsed into a single
// upstream call, and the write is a compare-and-set on access_token so a
// racing refresh from another replica cannot be clobbered with stale data.
func (s *Service) Refresh(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error) {
	key := cacheKey(platform, accountHandle)
	result, err, _ := s.flight.Do(key, func() (any, error) {
		return s.refreshLocked(ctx, platform, accountHandle)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.SocialToken), nil
}

func (s *Service) refreshLocked(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error) {
	current, err := s.load(ctx, platform, accountHandle)
	if err != nil {
		return nil, err
	}
	if s.refresher == nil || current.RefreshToken == nil {
		return nil, fmt.Errorf("%w: no refresher configured for %s", ErrRefreshFailed, platform)
	}

	payload, err := s.refresher.Refresh(ctx, platform, *current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	var expiresAt *time.Time
	if payload.ExpiresIn > 0 {
		t := s.now().UTC().Add(payload.ExpiresIn)
		expiresAt = &t
	}
	var newRefresh *string
	if payload.RefreshToken != "" {
		newRefresh = &payload.RefreshToken
	}

	// CAS on access_token: only rotate if the row still carries the token
	// we refreshed from.
	row := s.pool.QueryRow(ctx, `
		UPDATE social_tokens SET
			access_token = $3,
			refresh_token = COALESCE($4, refresh_token),
			expires_at = $5,
			updated_at = now()
		WHERE platform = $1 AND account_handle = $2 AND access_token = $6
		RETURNING `+tokenColumns,
		platform, current.AccountHandle, payload.AccessToken, newRefresh,
		expiresAt, current.AccessToken)

	tok, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another replica rotated first; serve its result.
			s.readCache.Delete(cacheKey(platform, accountHandle))
			return s.load(ctx, platform, accountHandle)
		}
		return nil, fmt.Errorf("rotate token: %w", err)
	}
	s.readCache.Delete(cacheKey(platform, accountHandle))
	slog.Info("Refreshed platform token",
		"platform", platform, "account", tok.AccountHandle, "token", tok.Redacted())
	return tok, nil
}

func (s *Service) load(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error) {
	var row pgx.Row
	if accountHandle == "" {
		row = s.pool.QueryRow(ctx, `SELECT `+tokenColumns+`
			FROM social_tokens WHERE platform = $1 ORDER BY updated_at DESC LIMIT 1`, platform)
	} else {
		row = s.pool.QueryRow(ctx, `SELECT `+tokenColumns+`
			FROM social_tokens WHERE platform = $1 AND account_handle = $2`, platform, accountHandle)
	}
	tok, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, platform, accountHandle)
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

func cacheKey(platform, accountHandle string) string {
	return platform + ":" + accountHandle
}

const tokenColumns = `id, platform, account_handle, access_token, refresh_token,
	token_type, scope, expires_at, owner_id, updated_at`

func scanToken(row pgx.Row) (*models.SocialToken, error) {
	var t models.SocialToken
	err := row.Scan(&t.ID, &t.Platform, &t.AccountHandle, &t.AccessToken,
		&t.RefreshToken, &t.TokenType, &t.Scope, &t.ExpiresAt, &t.OwnerID, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.ExpiresAt != nil {
		utc := t.ExpiresAt.UTC()
		t.ExpiresAt = &utc
	}
	return &t, nil
}
