// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package sync orchestrates a full sync pass over a configured feed
// and destination account.
//
// A pass is a linear pipeline with two delivery stages: the feed is
// fetched and normalized once, then the resulting records are
// submitted as a watch-history batch and, for the rated subset, a
// ratings batch. The stages are independent: partial delivery
// failures in one do not stop the other, and everything short of an
// authentication failure or cancellation completes with a report
// rather than an error.
package sync
