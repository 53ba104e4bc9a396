// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelsync/reelsync/internal/feed"
	"github.com/reelsync/reelsync/internal/logging"
	"github.com/reelsync/reelsync/internal/models"
)

// FeedSource fetches and parses a public diary feed.
type FeedSource interface {
	Fetch(ctx context.Context, address string) ([]feed.Entry, error)
}

// API delivers watch records to the destination account.
type API interface {
	SubmitHistory(ctx context.Context, records []models.WatchRecord) (*models.SyncResult, error)
	SubmitRatings(ctx context.Context, records []models.WatchRecord) (*models.SyncResult, error)
}

// Runner drives one sync pass: fetch the feed, normalize its entries
// into watch records, then submit watch history and ratings as two
// independent batches.
type Runner struct {
	source  FeedSource
	api     API
	feedURL string
	cutoff  feed.Cutoff

	now func() time.Time
}

// NewRunner wires a sync pass over the given feed and destination.
func NewRunner(source FeedSource, api API, feedURL string, cutoff feed.Cutoff) *Runner {
	return &Runner{
		source:  source,
		api:     api,
		feedURL: feedURL,
		cutoff:  cutoff,
		now:     time.Now,
	}
}

// Run executes one sync pass and reports what happened. The returned
// error is non-nil only for fatal conditions that abort the pass
// (unreachable feed, authentication failure, cancellation); per-chunk
// delivery failures are recorded in the report instead.
func (r *Runner) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:   uuid.NewString(),
		Started: r.now(),
	}
	log := logging.With().Str("run_id", report.RunID).Logger()

	log.Info().Str("feed", r.feedURL).Msg("Starting sync run")

	entries, err := r.source.Fetch(ctx, r.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	report.FeedEntries = len(entries)

	cutoff := r.cutoff.Effective(r.now())
	if cutoff != nil {
		log.Info().Time("cutoff", *cutoff).Msg("Filtering entries before cutoff")
	}

	records := feed.NewNormalizer(cutoff).Normalize(entries)
	report.Records = len(records)

	if len(records) == 0 {
		report.NothingToSync = true
		report.Finished = r.now()
		log.Info().Int("feed_entries", report.FeedEntries).Msg("Nothing to sync")
		return report, nil
	}

	log.Info().Int("feed_entries", report.FeedEntries).Int("records", report.Records).Msg("Feed normalized")

	report.History, err = r.api.SubmitHistory(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("submit history: %w", err)
	}

	// Ratings are a separate pass over the rated subset; a failed
	// history chunk does not hold its records back from rating sync.
	rated := make([]models.WatchRecord, 0, len(records))
	for _, rec := range records {
		if rec.Rated() {
			rated = append(rated, rec)
		}
	}
	if len(rated) > 0 {
		report.Ratings, err = r.api.SubmitRatings(ctx, rated)
		if err != nil {
			return nil, fmt.Errorf("submit ratings: %w", err)
		}
	}

	report.Finished = r.now()
	logRunSummary(log, report)
	return report, nil
}

// logRunSummary emits one line per completed pass plus a warning when
// anything failed or went unmatched.
func logRunSummary(log zerolog.Logger, report *models.RunReport) {
	event := log.Info().
		Dur("elapsed", report.Finished.Sub(report.Started)).
		Int("records", report.Records)
	if report.History != nil {
		event = event.Int("history_added", report.History.Added).Int("history_existing", report.History.Existing)
	}
	if report.Ratings != nil {
		event = event.Int("ratings_added", report.Ratings.Added).Int("ratings_existing", report.Ratings.Existing)
	}
	event.Msg("Sync run finished")

	for _, result := range []*models.SyncResult{report.History, report.Ratings} {
		if result == nil {
			continue
		}
		for _, title := range result.NotFoundTitles {
			log.Warn().Str("title", title).Msg("Film not matched by destination")
		}
		for _, failure := range result.Failures {
			log.Warn().Err(failure.Err).Int("items", failure.Items).Msg("Chunk not delivered")
		}
	}
}
