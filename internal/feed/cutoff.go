// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package feed

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates mutually exclusive cutoff flags were both
// supplied. Surfaced before any network activity.
var ErrInvalidConfig = errors.New("invalid cutoff configuration")

// startDateLayout is the CLI date format, MM-DD-YYYY.
const startDateLayout = "01-02-2006"

// Cutoff bounds a sync run to activity on or after a start date.
//
// Start comes from the --start-date flag, Days from the --days flag or
// the sync.days_back config default. When both are set (explicit date
// plus a configured day window) the later of the two dates wins. Both
// zero means unbounded: sync the full feed.
type Cutoff struct {
	Start time.Time
	Days  int
}

// NewCutoff builds a Cutoff from the CLI inputs and the configured
// default day window. startDate and days are mutually exclusive;
// supplying both returns ErrInvalidConfig. defaultDays applies only
// when the --days flag is absent.
func NewCutoff(startDate string, days, defaultDays int) (Cutoff, error) {
	if startDate != "" && days > 0 {
		return Cutoff{}, fmt.Errorf("%w: --start-date and --days are mutually exclusive", ErrInvalidConfig)
	}
	if days < 0 {
		return Cutoff{}, fmt.Errorf("%w: --days must be positive, got %d", ErrInvalidConfig, days)
	}

	c := Cutoff{Days: days}
	if days == 0 {
		c.Days = defaultDays
	}

	if startDate != "" {
		start, err := time.ParseInLocation(startDateLayout, startDate, time.UTC)
		if err != nil {
			return Cutoff{}, fmt.Errorf("%w: --start-date must be MM-DD-YYYY: %w", ErrInvalidConfig, err)
		}
		c.Start = start
	}

	return c, nil
}

// Effective resolves the cutoff to the earliest eligible watched date,
// at day granularity in UTC. Returns nil when the cutoff is unbounded.
func (c Cutoff) Effective(now time.Time) *time.Time {
	var dates []time.Time
	if !c.Start.IsZero() {
		dates = append(dates, day(c.Start))
	}
	if c.Days > 0 {
		dates = append(dates, day(now.UTC().AddDate(0, 0, -c.Days)))
	}
	if len(dates) == 0 {
		return nil
	}

	latest := dates[0]
	for _, d := range dates[1:] {
		if d.After(latest) {
			latest = d
		}
	}
	return &latest
}

// day truncates a time to midnight UTC.
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
