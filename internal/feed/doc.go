// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package feed ingests a Letterboxd public RSS diary and normalizes it
// into canonical watch records.
//
// The pipeline inside this package has three stages:
//
//   - Reader fetches the feed over HTTP and parses it into raw
//     entries, preserving feed order. Fetch failures surface as
//     ErrFeedUnavailable, malformed payloads as ErrFeedParse; both are
//     fatal to a run.
//   - Cutoff resolves the caller's date-range selection (--start-date
//     XOR --days, plus the configured day window) into the earliest
//     eligible watched date. Conflicting flags surface as
//     ErrInvalidConfig before any network call.
//   - Normalizer turns each raw entry into zero or one WatchRecord:
//     title and year from the feed's namespaced film elements or the
//     item title, the watched date from the diary element or the
//     publication date, and the half-star rating from whichever of the
//     three rating carriers is present. Entries without a usable
//     date are dropped; unusable ratings degrade to "no rating".
//
// Nothing here deduplicates or persists: idempotency across repeated
// runs relies on the cutoff filter and the destination API's own
// duplicate handling.
package feed
