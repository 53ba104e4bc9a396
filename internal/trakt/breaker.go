// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/reelsync/reelsync/internal/logging"
)

// newBreaker builds the circuit breaker guarding all submission
// requests. When the API is down (consecutive connection failures or
// server errors), the breaker opens and the remaining chunks fail fast
// instead of burning the retry budget against a dead endpoint.
//
// HTTP 429 and auth responses do not count as failures here; they are
// classified by the caller and have their own handling.
func newBreaker() *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "trakt-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,

		// A sync run issues few requests, so trip on a short streak
		// rather than a failure-rate window.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
}
