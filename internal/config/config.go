// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package config loads and validates reelsync configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for one sync run.
type Config struct {
	Letterboxd LetterboxdConfig `koanf:"letterboxd"`
	Trakt      TraktConfig      `koanf:"trakt"`
	Sync       SyncConfig       `koanf:"sync"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// LetterboxdConfig identifies the source activity feed.
type LetterboxdConfig struct {
	// Username is the Letterboxd account whose public RSS diary is
	// synced. Required unless FeedURL is set explicitly.
	Username string `koanf:"username"`

	// FeedURL overrides the feed address derived from Username.
	// Useful for testing against a local fixture server.
	FeedURL string `koanf:"feed_url"`
}

// FeedAddress returns the effective feed URL.
func (c *LetterboxdConfig) FeedAddress() string {
	if c.FeedURL != "" {
		return c.FeedURL
	}
	return fmt.Sprintf("https://letterboxd.com/%s/rss/", c.Username)
}

// TraktConfig holds the destination API credentials and endpoints.
type TraktConfig struct {
	// APIURL is the Trakt API base URL.
	APIURL string `koanf:"api_url"`

	// ClientID and ClientSecret are the registered application
	// credentials. ClientID is also sent as the trakt-api-key header
	// on every request.
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// RedirectURI is the OAuth redirect registered with the app,
	// required for token refresh and the authorize flow.
	RedirectURI string `koanf:"redirect_uri"`

	// TokenPath is the JSON file holding the bearer token obtained by
	// the one-time authorize flow.
	TokenPath string `koanf:"token_path"`
}

// SyncConfig tunes the submission protocol.
type SyncConfig struct {
	// ChunkSize is the maximum number of movies submitted in one API
	// request. Batches larger than this are split.
	ChunkSize int `koanf:"chunk_size"`

	// RetryAttempts bounds retries per chunk, for both rate-limit and
	// transient-error handling.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryDelay is the base delay for exponential backoff; it doubles
	// on every retry. A server-supplied Retry-After hint wins.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// DaysBack, when positive, bounds every run to activity within the
	// last N days. An explicit --start-date narrows it further; the
	// later of the two dates wins.
	DaysBack int `koanf:"days_back"`
}

// LoggingConfig configures the structured log sink.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that the configuration is usable before any network
// activity happens.
func (c *Config) Validate() error {
	if c.Letterboxd.Username == "" && c.Letterboxd.FeedURL == "" {
		return fmt.Errorf("letterboxd.username is required (set LETTERBOXD_USERNAME)")
	}
	if c.Trakt.ClientID == "" {
		return fmt.Errorf("trakt.client_id is required (set TRAKT_CLIENT_ID)")
	}
	if c.Trakt.ClientSecret == "" {
		return fmt.Errorf("trakt.client_secret is required (set TRAKT_CLIENT_SECRET)")
	}
	if c.Trakt.APIURL == "" {
		return fmt.Errorf("trakt.api_url must not be empty")
	}
	if c.Sync.ChunkSize < 1 {
		return fmt.Errorf("sync.chunk_size must be positive, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be positive, got %d", c.Sync.RetryAttempts)
	}
	if c.Sync.RetryDelay <= 0 {
		return fmt.Errorf("sync.retry_delay must be positive, got %s", c.Sync.RetryDelay)
	}
	if c.Sync.DaysBack < 0 {
		return fmt.Errorf("sync.days_back must not be negative, got %d", c.Sync.DaysBack)
	}
	return nil
}
