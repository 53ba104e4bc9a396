// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/reelsync/reelsync/internal/logging"
)

// Token is the OAuth credential persisted between runs. ExpiresAt is
// computed locally from expires_in when the token is saved, matching
// the file layout the original authorize flow writes.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
func (t *Token) Expired(now time.Time) bool {
	return now.Unix() > t.ExpiresAt
}

// tokenStore loads and saves the token file.
type tokenStore struct {
	path string
}

func (s *tokenStore) load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: no usable token at %s (run reelsync --authorize first): %w", ErrAuthFailed, s.path, err)
	}
	tok := &Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("%w: malformed token file %s: %w", ErrAuthFailed, s.path, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token file %s has no access token", ErrAuthFailed, s.path)
	}
	return tok, nil
}

func (s *tokenStore) save(tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	// Token file carries a credential; keep it owner-only.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file %s: %w", s.path, err)
	}
	return nil
}

// tokenRequest is the /oauth/token payload for both the refresh and
// authorization-code grants.
type tokenRequest struct {
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	GrantType    string `json:"grant_type"`
}

// accessToken returns a usable bearer token, refreshing and rewriting
// the token file when the stored one has expired. All failure modes
// wrap ErrAuthFailed: auth problems are fatal and never retried.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	tok, err := c.tokens.load()
	if err != nil {
		return "", err
	}

	if !tok.Expired(c.now()) {
		return tok.AccessToken, nil
	}

	logging.Info().Msg("Access token expired, refreshing")
	refreshed, err := c.requestToken(ctx, tokenRequest{
		RefreshToken: tok.RefreshToken,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURI:  c.redirectURI,
		GrantType:    "refresh_token",
	})
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Authorize exchanges a one-time authorization code for a token and
// persists it. This is the thin CLI wrapper around the precondition
// flow; the user obtains the code from Trakt's authorize page.
func (c *Client) Authorize(ctx context.Context, code string) error {
	_, err := c.requestToken(ctx, tokenRequest{
		Code:         code,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURI:  c.redirectURI,
		GrantType:    "authorization_code",
	})
	return err
}

// AuthorizeURL returns the page where the user grants access and
// receives the one-time code for Authorize.
func (c *Client) AuthorizeURL() string {
	return fmt.Sprintf("%s/oauth/authorize?response_type=code&client_id=%s&redirect_uri=%s",
		c.baseURL, c.clientID, c.redirectURI)
}

// requestToken posts a grant to /oauth/token and saves the resulting
// token with a locally computed expiry.
func (c *Client) requestToken(ctx context.Context, grant tokenRequest) (*Token, error) {
	body, err := json.Marshal(grant)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s grant rejected with status %d", ErrAuthFailed, grant.GrantType, resp.StatusCode)
	}

	tok := &Token{}
	if err := json.NewDecoder(resp.Body).Decode(tok); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %w", ErrAuthFailed, err)
	}
	tok.ExpiresAt = c.now().Unix() + tok.ExpiresIn

	if err := c.tokens.save(tok); err != nil {
		return nil, err
	}
	logging.Info().Time("expires", time.Unix(tok.ExpiresAt, 0)).Msg("Token saved")
	return tok, nil
}
