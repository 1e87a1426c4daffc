package models

import (
	"strings"
	"time"
)

// SocialToken is an OAuth-style credential for one platform+account.
// ExpiresAt is always stored in absolute UTC.
type SocialToken struct {
	ID            string     `json:"id"`
	Platform      string     `json:"platform"`
	AccountHandle string     `json:"account_handle"`
	AccessToken   string     `json:"-"`
	RefreshToken  *string    `json:"-"`
	TokenType     *string    `json:"token_type,omitempty"`
	Scope         *string    `json:"scope,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OwnerID       string     `json:"owner_id"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired reports whether the token must be refreshed before use.
// A nil ExpiresAt is treated as expired (unknown lifetime).
func (t *SocialToken) Expired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return true
	}
	return !now.Before(*t.ExpiresAt)
}

// ExpiresWithin reports whether the token expires inside the given window.
func (t *SocialToken) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t.ExpiresAt == nil {
		return true
	}
	return !now.Add(window).Before(*t.ExpiresAt)
}

// Redacted returns a loggable form of the access token. Tokens are secrets;
// only a short prefix survives.
func (t *SocialToken) Redacted() string {
	const keep = 4
	if len(t.AccessToken) <= keep {
		return "****"
	}
	return t.AccessToken[:keep] + strings.Repeat("*", 8)
}
