// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package trakt wraps the Trakt synchronization API: authenticated
// batch submission of watch history and ratings, token storage with
// refresh, and the half-star to 1-10 rating conversion.
//
// Resilience mechanisms, outermost first:
//
//   - Client-side rate limiting: one POST per second, the API's
//     documented contract (golang.org/x/time/rate).
//   - Circuit breaker: opens after 3 consecutive connection/server
//     failures so remaining chunks fail fast (sony/gobreaker).
//   - Bounded retries: HTTP 429 waits for the Retry-After hint or an
//     exponentially growing delay; 5xx and connection failures back
//     off exponentially. The attempt bound and base delay come from
//     sync.retry_attempts and sync.retry_delay.
//
// Failure semantics: authentication problems (ErrAuthFailed) abort the
// run and are never retried. Exhausted rate-limit retries
// (ErrRateLimited) fail the batch's unsent remainder. Everything else
// is a per-chunk SubmissionError recorded in the SyncResult while
// sibling chunks continue.
package trakt
