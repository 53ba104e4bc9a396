// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

package trakt

import (
	"fmt"
	"math"
)

// ConvertRating maps a Letterboxd half-star rating (0.5-5.0 in 0.5
// steps) to Trakt's 1-10 integer scale via round(stars * 2). The
// mapping is a bijection between the ten half-star values and 1..10.
func ConvertRating(stars float64) (int, error) {
	doubled := stars * 2
	rounded := math.Round(doubled)
	if stars < 0.5 || stars > 5.0 || math.Abs(doubled-rounded) > 1e-9 {
		return 0, fmt.Errorf("%w: %g", ErrInvalidRating, stars)
	}
	return int(rounded), nil
}
