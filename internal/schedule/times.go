package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseClockTime parses a local wall-clock "HH:MM" string.
func ParseClockTime(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return hour, minute, nil
}

// timeOn builds the instant at hour:minute on the calendar day of ref,
// in ref's location.
func timeOn(ref time.Time, hour, minute int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
}

// cleanTimes canonicalizes, deduplicates and sorts a list of HH:MM
// strings. Parseable values are zero-padded so lexical order matches
// clock order; malformed values are kept verbatim for Validate to reject.
func cleanTimes(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if hour, minute, err := ParseClockTime(v); err == nil {
			v = fmt.Sprintf("%02d:%02d", hour, minute)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// cleanWeekdays deduplicates, sorts and clamps weekday indices to 0-6.
func cleanWeekdays(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 6 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
