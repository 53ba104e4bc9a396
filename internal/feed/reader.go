// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/reelsync/reelsync/internal/logging"
)

var (
	// ErrFeedUnavailable indicates the feed could not be fetched:
	// network failure or a non-success HTTP status.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrFeedParse indicates the fetched payload is not a parsable
	// syndication feed.
	ErrFeedParse = errors.New("feed parse failed")
)

// extNamespace is the prefix of the feed's custom item elements
// (watchedDate, filmTitle, filmYear, memberRating).
const extNamespace = "letterboxd"

// Entry is one raw item of the activity feed, in published order.
// Field values are carried verbatim; interpretation happens in the
// normalizer.
type Entry struct {
	Title       string
	Link        string
	GUID        string
	Description string
	Published   *time.Time

	// Namespaced diary metadata; empty when the element is absent.
	FilmTitle    string
	FilmYear     string
	WatchedDate  string
	MemberRating string
}

// Reader fetches and parses a watch-activity feed into raw entries.
//
// Fetching and parsing are separate steps so that fetch failures and
// malformed payloads surface as distinct errors. The HTTP client is
// injectable for testing against httptest servers.
type Reader struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewReader creates a Reader. A nil client gets a default with a
// 30-second timeout.
func NewReader(client *http.Client) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{
		client: client,
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves the feed at the given address and returns its items
// in feed order (most recent first, as published by the source).
func (r *Reader) Fetch(ctx context.Context, address string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFeedUnavailable, err)
	}
	req.Header.Set("User-Agent", "reelsync/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedParse, err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, toEntry(item))
	}

	logging.Debug().Str("feed", address).Int("entries", len(entries)).Msg("Feed fetched")
	return entries, nil
}

// toEntry maps a parsed feed item into a raw Entry, lifting the
// namespaced diary elements out of the extension tree.
func toEntry(item *gofeed.Item) Entry {
	return Entry{
		Title:        item.Title,
		Link:         item.Link,
		GUID:         item.GUID,
		Description:  item.Description,
		Published:    item.PublishedParsed,
		FilmTitle:    extValue(item, "filmTitle"),
		FilmYear:     extValue(item, "filmYear"),
		WatchedDate:  extValue(item, "watchedDate"),
		MemberRating: extValue(item, "memberRating"),
	}
}

// extValue returns the first value of a namespaced item element, or ""
// when the element is absent.
func extValue(item *gofeed.Item, name string) string {
	ns, ok := item.Extensions[extNamespace]
	if !ok {
		return ""
	}
	values, ok := ns[name]
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0].Value
}
