// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed indicates the bearer credential is missing,
	// invalid, or expired beyond refresh. Never retried; fatal to the
	// whole run.
	ErrAuthFailed = errors.New("trakt: authentication failed")

	// ErrRateLimited indicates the API kept throttling past the retry
	// bound. The affected batch's unsent remainder is reported as
	// failed; the other batch still runs.
	ErrRateLimited = errors.New("trakt: rate limit exceeded")

	// ErrInvalidRating marks a star value outside the 0.5-5.0
	// half-step domain. The normalizer never produces one; this guards
	// against programming errors.
	ErrInvalidRating = errors.New("trakt: rating outside 0.5-5.0 star domain")
)

// SubmissionError records a chunk that could not be delivered after
// bounded retries: transient server errors, connection failures, or a
// non-retryable API response.
type SubmissionError struct {
	Endpoint string // "history" or "ratings"
	Status   int    // last HTTP status, 0 for connection failures
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("trakt: %s submission failed after %d attempt(s) (status %d): %v", e.Endpoint, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("trakt: %s submission failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
