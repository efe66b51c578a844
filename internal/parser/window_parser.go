package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Re-entry window kinds
const (
	WindowOff         = "off"
	WindowCalendarDay = "calendar_day"
	WindowRolling     = "rolling"
)

// ReentryWindow decides how long a completed code stays blocked from a new
// entry scan
type ReentryWindow struct {
	Kind     string
	Duration time.Duration // rolling windows only
}

var relativeRegex = regexp.MustCompile(`^(\d+)\s*(minute|minutes|min|m|hour|hours|h|day|days|d|week|weeks|w)$`)

// ParseReentryWindow parses a re-entry window setting
// Supported formats:
// - "off" / "none" (no blocking)
// - "calendar_day" / "today" (blocked until local midnight)
// - X minutes|hours|days|weeks (rolling, e.g. "90 minutes", "24 hours", "2d")
func ParseReentryWindow(input string) (ReentryWindow, error) {
	input = strings.ToLower(strings.TrimSpace(input))

	switch input {
	case "", "calendar_day", "today", "day":
		return ReentryWindow{Kind: WindowCalendarDay}, nil
	case "off", "none", "0":
		return ReentryWindow{Kind: WindowOff}, nil
	}

	matches := relativeRegex.FindStringSubmatch(input)
	if len(matches) != 3 {
		return ReentryWindow{}, fmt.Errorf("invalid re-entry window %q. Use: off, calendar_day, or X minutes|hours|days|weeks", input)
	}

	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return ReentryWindow{}, fmt.Errorf("invalid number")
	}
	if amount < 1 {
		return ReentryWindow{}, fmt.Errorf("window must be at least 1 %s", matches[2])
	}

	var unit time.Duration
	switch matches[2] {
	case "minute", "minutes", "min", "m":
		unit = time.Minute
	case "hour", "hours", "h":
		unit = time.Hour
	case "day", "days", "d":
		unit = 24 * time.Hour
	case "week", "weeks", "w":
		unit = 7 * 24 * time.Hour
	}

	window := time.Duration(amount) * unit
	if window > 365*24*time.Hour { // Max 1 year
		return ReentryWindow{}, fmt.Errorf("window must not exceed one year")
	}

	return ReentryWindow{Kind: WindowRolling, Duration: window}, nil
}

// Blocks reports whether an item completed at completedAt still blocks a
// new entry at now
func (w ReentryWindow) Blocks(completedAt, now time.Time) bool {
	switch w.Kind {
	case WindowOff:
		return false
	case WindowRolling:
		return now.Sub(completedAt) < w.Duration
	default:
		local := now.Local()
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
		return !completedAt.Before(midnight)
	}
}

// String returns the setting in its parseable form
func (w ReentryWindow) String() string {
	switch w.Kind {
	case WindowOff:
		return WindowOff
	case WindowRolling:
		return fmt.Sprintf("%d minutes", int(w.Duration/time.Minute))
	default:
		return WindowCalendarDay
	}
}
