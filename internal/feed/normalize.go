// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package feed

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/reelsync/reelsync/internal/logging"
	"github.com/reelsync/reelsync/internal/models"
)

const watchedDateLayout = "2006-01-02"

var (
	// "Arrival (2016)" - parenthesized year suffix.
	parenYearRe = regexp.MustCompile(`^(.*?)\s+\((\d{4})\)$`)

	// "Arrival, 2016" - the source's comma-year item title style.
	commaYearRe = regexp.MustCompile(`^(.*?),\s+(\d{4})$`)

	// "rated it 3.5 stars" in the entry body.
	ratedItRe = regexp.MustCompile(`rated it\s+([0-9.]+)\s+stars?`)
)

// Normalizer converts raw feed entries into canonical watch records,
// applying the cutoff filter. Entries without a usable watched date
// are dropped and logged; entries with malformed rating text are kept
// without a rating.
type Normalizer struct {
	// cutoff is the earliest eligible watched date; nil = unbounded.
	cutoff *time.Time
}

// NewNormalizer creates a Normalizer with a resolved cutoff date.
func NewNormalizer(cutoff *time.Time) *Normalizer {
	return &Normalizer{cutoff: cutoff}
}

// Normalize transforms entries into zero or more watch records,
// preserving the relative input order. No deduplication happens here;
// duplicate handling is the destination API's responsibility.
func (n *Normalizer) Normalize(entries []Entry) []models.WatchRecord {
	records := make([]models.WatchRecord, 0, len(entries))

	for _, e := range entries {
		watched, ok := watchedDate(&e)
		if !ok {
			logging.Warn().Str("title", e.Title).Str("link", e.Link).Msg("Entry dropped: no parsable watched date")
			continue
		}

		if n.cutoff != nil && watched.Before(*n.cutoff) {
			logging.Debug().Str("title", e.Title).Time("watched", watched).Msg("Entry dropped: before cutoff")
			continue
		}

		title, year := titleAndYear(&e)
		if title == "" {
			logging.Warn().Str("link", e.Link).Msg("Entry dropped: empty title")
			continue
		}

		records = append(records, models.WatchRecord{
			Title:     title,
			Year:      year,
			WatchedAt: watched,
			Rating:    rating(&e),
		})
	}

	return records
}

// watchedDate resolves the watched date of an entry: the namespaced
// watchedDate element first, the item publication date as fallback.
func watchedDate(e *Entry) (time.Time, bool) {
	if e.WatchedDate != "" {
		t, err := time.ParseInLocation(watchedDateLayout, e.WatchedDate, time.UTC)
		if err == nil {
			return t, true
		}
		logging.Debug().Str("watched_date", e.WatchedDate).Msg("Malformed watchedDate element, falling back to publication date")
	}
	if e.Published != nil {
		return day(*e.Published), true
	}
	return time.Time{}, false
}

// titleAndYear resolves the film title and release year. The
// namespaced filmTitle/filmYear elements win; otherwise the year is
// extracted from the item title's parenthesized or comma suffix. A
// title without a recognizable year is kept verbatim with the year
// marked unknown.
func titleAndYear(e *Entry) (string, int) {
	if e.FilmTitle != "" {
		year := models.YearUnknown
		if y, err := strconv.Atoi(strings.TrimSpace(e.FilmYear)); err == nil && y > 0 {
			year = y
		}
		return e.FilmTitle, year
	}

	title := stripRatingSuffix(e.Title)
	for _, re := range []*regexp.Regexp{parenYearRe, commaYearRe} {
		if m := re.FindStringSubmatch(title); m != nil {
			y, _ := strconv.Atoi(m[2])
			return strings.TrimSpace(m[1]), y
		}
	}
	return title, models.YearUnknown
}

// stripRatingSuffix removes a trailing " - <stars>" segment from item
// titles of the form "Film, 2016 - ★★★½".
func stripRatingSuffix(title string) string {
	if i := strings.LastIndex(title, " - "); i >= 0 {
		suffix := title[i+3:]
		if strings.ContainsAny(suffix, "★½") {
			return strings.TrimSpace(title[:i])
		}
	}
	return strings.TrimSpace(title)
}

// rating resolves the half-star rating of an entry, or nil when absent
// or malformed. Sources, in order: the namespaced memberRating
// element, star glyphs in the item title, "rated it N stars" text in
// the entry body.
func rating(e *Entry) *float64 {
	if e.MemberRating != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(e.MemberRating), 64); err == nil {
			return validStars(v)
		}
		logging.Debug().Str("member_rating", e.MemberRating).Str("title", e.Title).Msg("Malformed memberRating element, rating treated as absent")
		return nil
	}

	if v := starGlyphs(e.Title); v > 0 {
		return validStars(v)
	}

	if e.Description != "" {
		if v, ok := ratedItText(e.Description); ok {
			return validStars(v)
		}
	}
	return nil
}

// starGlyphs counts a "★★★½" sequence into a half-star value.
// Returns 0 when no glyphs are present.
func starGlyphs(s string) float64 {
	v := 0.0
	for _, r := range s {
		switch r {
		case '★':
			v++
		case '½':
			v += 0.5
		}
	}
	return v
}

// ratedItText extracts a "rated it N stars" value from the entry's
// HTML body.
func ratedItText(html string) (float64, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	m := ratedItRe.FindStringSubmatch(strings.ToLower(doc.Text()))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// validStars returns a pointer to v when it is a half-star value in
// [0.5, 5.0], nil otherwise. Out-of-domain ratings are treated as
// absent rather than dropping the record.
func validStars(v float64) *float64 {
	if v < 0.5 || v > 5.0 {
		return nil
	}
	doubled := v * 2
	if doubled != float64(int(doubled)) {
		return nil
	}
	return &v
}
