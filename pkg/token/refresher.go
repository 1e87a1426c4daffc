package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoint is one platform's OAuth token endpoint.
type Endpoint struct {
	URL          string
	ClientID     string
	ClientSecret string
}

// OAuthRefresher exchanges refresh tokens against per-platform OAuth
// endpoints with the standard refresh_token grant.
type OAuthRefresher struct {
	endpoints map[string]Endpoint
	client    *http.Client
}

// NewOAuthRefresher builds a refresher over the configured endpoints.
func NewOAuthRefresher(endpoints map[string]Endpoint) *OAuthRefresher {
	return &OAuthRefresher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	OpenID       string `json:"open_id"`
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, platform, refreshToken string) (*Payload, error) {
	endpoint, ok := r.endpoints[platform]
	if !ok {
		return nil, fmt.Errorf("no oauth endpoint configured for platform %q", platform)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", endpoint.ClientID)
	form.Set("client_secret", endpoint.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange returned %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &Payload{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
		Scope:        parsed.Scope,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
		OwnerID:      parsed.OpenID,
	}, nil
}
