package schedule

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// Match patterns like "22:15", "06:30", "7:05"
	clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	// Six hex digits with an optional leading '#'
	colorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)
)

// dayNames maps weekday index (0=Monday) to its short name.
var dayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// ParseClock parses a 24-hour "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	matches := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, 0, errors.Newf("invalid time %q: expected HH:MM", s)
	}

	hour, _ = strconv.Atoi(matches[1])
	minute, _ = strconv.Atoi(matches[2])

	if hour > 23 {
		return 0, 0, errors.Newf("invalid hour: %d", hour)
	}
	if minute > 59 {
		return 0, 0, errors.Newf("invalid minute: %d", minute)
	}
	return hour, minute, nil
}

// NormalizeClock zero-pads a valid time of day to "HH:MM" so stored times
// sort as text. Invalid input is returned trimmed and left for Validate.
func NormalizeClock(s string) string {
	hour, minute, err := ParseClock(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ParseDays parses a comma-separated list of weekday indices (0=Monday..6=Sunday).
// The result is sorted with duplicates removed.
func ParseDays(s string) ([]int, error) {
	seen := make(map[int]struct{}, 7)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Newf("invalid day %q", part)
		}
		if d < 0 || d > 6 {
			return nil, errors.Newf("day %d out of range [0,6]", d)
		}
		seen[d] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, errors.Newf("no days in %q", s)
	}

	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)
	return days, nil
}

// Weekday converts a day index (0=Monday) to time.Weekday.
func Weekday(day int) time.Weekday {
	return time.Weekday((day + 1) % 7)
}

// DayName returns the short name of a day index (0 -> "mon").
func DayName(day int) string {
	if day < 0 || day > 6 {
		return "?"
	}
	return dayNames[day]
}

// DayNames returns the comma-joined short names for day indices.
func DayNames(days []int) string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = DayName(d)
	}
	return strings.Join(names, ",")
}

// RGB is an 8-bit color.
type RGB struct {
	R, G, B uint8
}

// ParseColor decodes "#rrggbb" or "rrggbb" into its components.
func ParseColor(s string) (RGB, error) {
	if !colorPattern.MatchString(s) {
		return RGB{}, errors.Newf("invalid color %q: expected 6 hex digits", s)
	}
	hex := strings.TrimPrefix(s, "#")

	var c [3]uint8
	for i := range c {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return RGB{}, errors.Wrapf(err, "invalid color %q", s)
		}
		c[i] = uint8(v)
	}
	return RGB{R: c[0], G: c[1], B: c[2]}, nil
}
