// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package models defines the canonical data types shared across the
// sync pipeline: normalized watch records, per-batch submission
// results, and the aggregated run report.
package models

import "time"

// YearUnknown marks a record whose release year could not be
// determined from the feed entry. Records with an unknown year are
// still submitted; the destination matches on title alone.
const YearUnknown = 0

// WatchRecord is the canonical form of one watched film, produced by
// the feed normalizer and consumed exactly once by submission.
//
// WatchedAt always carries a valid UTC timestamp at day granularity
// (the source feed reports dates, not times). Rating, when non-nil,
// is a half-star value in [0.5, 5.0]; conversion to the destination's
// 1-10 scale happens at submission time.
type WatchRecord struct {
	Title     string
	Year      int
	WatchedAt time.Time
	Rating    *float64
}

// Rated reports whether the record carries a star rating.
func (r *WatchRecord) Rated() bool {
	return r.Rating != nil
}

// ChunkFailure records one submission chunk that could not be
// delivered after retries. Items is the number of records in the
// failed chunk so callers can account for every record in a batch.
type ChunkFailure struct {
	Items int
	Err   error
}

// SyncResult is the outcome of one submission pass (history or
// ratings), aggregated across all chunks of the batch.
type SyncResult struct {
	Added    int
	Existing int
	NotFound int

	// NotFoundTitles lists titles the destination could not match.
	// These are reported, never retried.
	NotFoundTitles []string

	// Failures holds per-chunk delivery failures. The pass is still
	// considered complete; failed items are simply not synced.
	Failures []ChunkFailure
}

// FailedItems returns the total number of records lost to chunk
// failures in this pass.
func (r *SyncResult) FailedItems() int {
	n := 0
	for _, f := range r.Failures {
		n += f.Items
	}
	return n
}

// Failed reports whether any chunk of the pass failed.
func (r *SyncResult) Failed() bool {
	return len(r.Failures) > 0
}

// RunReport aggregates the outcome of one full sync run.
type RunReport struct {
	RunID string

	// FeedEntries is the raw entry count before normalization and
	// cutoff filtering; Records the count that survived.
	FeedEntries int
	Records     int

	// NothingToSync is set when normalization produced zero records
	// (empty feed or everything filtered by the cutoff). Distinct
	// from a submission failure: the run succeeded with no work.
	NothingToSync bool

	History *SyncResult
	Ratings *SyncResult

	Started  time.Time
	Finished time.Time
}

// HasFailures reports whether either pass recorded chunk failures.
func (r *RunReport) HasFailures() bool {
	return (r.History != nil && r.History.Failed()) ||
		(r.Ratings != nil && r.Ratings.Failed())
}
