// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package duration parses the grant-duration strings accepted by the
// temporary-role command: a sequence of <integer><unit> tokens where
// the unit is one of w, d, h, m, s (week, day, hour, minute, second),
// in any order, separated by optional whitespace. "1w 2d" is one week
// plus two days; "30s" is half a minute.
package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrZero is returned for input that parses but sums to zero, such as
// "0m" or a string with no recognizable tokens. A zero-length grant is
// never valid.
var ErrZero = errors.New("duration: total is zero")

var tokenPattern = regexp.MustCompile(`(\d+)([wdhms])`)

// Minutes returns the total duration of the string in minutes.
// Seconds contribute fractionally, so "30s" yields 0.5. Unrecognized
// text between tokens is ignored, matching the permissive command
// syntax ("1w and 2d" parses as "1w 2d").
func Minutes(s string) (float64, error) {
	total := 0.0
	for _, match := range tokenPattern.FindAllStringSubmatch(s, -1) {
		value, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("duration: token %q: %w", match[0], err)
		}
		switch match[2] {
		case "w":
			total += float64(value) * 7 * 24 * 60
		case "d":
			total += float64(value) * 24 * 60
		case "h":
			total += float64(value) * 60
		case "m":
			total += float64(value)
		case "s":
			total += float64(value) / 60
		}
	}
	if total == 0 {
		return 0, ErrZero
	}
	return total, nil
}

// Parse returns the total duration of the string as a time.Duration.
func Parse(s string) (time.Duration, error) {
	minutes, err := Minutes(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes * float64(time.Minute)), nil
}
