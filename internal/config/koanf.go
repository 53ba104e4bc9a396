// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"reelsync.yaml",
	"reelsync.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "REELSYNC_CONFIG"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Letterboxd: LetterboxdConfig{
			Username: "",
			FeedURL:  "",
		},
		Trakt: TraktConfig{
			APIURL:       "https://api.trakt.tv",
			ClientID:     "",
			ClientSecret: "",
			RedirectURI:  "",
			TokenPath:    "trakt_token.json",
		},
		Sync: SyncConfig{
			ChunkSize:     50,
			RetryAttempts: 3,
			RetryDelay:    1 * time.Second,
			DaysBack:      0, // unbounded
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence: ENV > file > defaults. The result is validated before
// being returned, so callers never see a half-usable config.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or ""
// when none is present (config files are optional).
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unknown variables map to "" and are skipped, so unrelated
// environment noise never pollutes the config.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"letterboxd_username": "letterboxd.username",
		"letterboxd_feed_url": "letterboxd.feed_url",

		"trakt_api_url":       "trakt.api_url",
		"trakt_client_id":     "trakt.client_id",
		"trakt_client_secret": "trakt.client_secret",
		"trakt_redirect_uri":  "trakt.redirect_uri",
		"trakt_token_path":    "trakt.token_path",

		"sync_chunk_size":     "sync.chunk_size",
		"sync_retry_attempts": "sync.retry_attempts",
		"sync_retry_delay":    "sync.retry_delay",
		"sync_days_back":      "sync.days_back",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := mappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
