package publisher

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
)

// TokenStore is the credential surface publishers need. *token.Service
// satisfies it.
type TokenStore interface {
	Get(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error)
	Refresh(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error)
}

// tokenGuard hands out access tokens, refreshing any credential that is
// expired or expires inside the refresh window. A failed refresh is an
// auth failure; uploads must not proceed on a token about to die mid-flight.
type tokenGuard struct {
	store  TokenStore
	window time.Duration
	now    func() time.Time
}

func newTokenGuard(store TokenStore, window time.Duration) *tokenGuard {
	return &tokenGuard{store: store, window: window, now: time.Now}
}

func (g *tokenGuard) accessToken(ctx context.Context, platform, accountHandle string) (*models.SocialToken, error) {
	tok, err := g.store.Get(ctx, platform, accountHandle)
	if err != nil {
		return nil, Errf(models.FailureAuth, "load token: %w", err)
	}
	if tok.Expired(g.now()) || tok.ExpiresWithin(g.now(), g.window) {
		tok, err = g.store.Refresh(ctx, platform, accountHandle)
		if err != nil {
			return nil, Errf(models.FailureAuth, "refresh token: %w", err)
		}
	}
	return tok, nil
}
