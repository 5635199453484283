package core

import (
	"strings"
	"time"
)

// DateLayout is the layout of calendar days (YYYY-MM-DD).
const DateLayout = "2006-01-02"

var NowFunc = time.Now // mockable

// Now returns the current UTC time truncated to microseconds (the database precision).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) string {
	return NowFunc().In(loc).Format(DateLayout)
}

// Yesterday returns the calendar day before Today in loc.
func Yesterday(loc *time.Location) string {
	return NowFunc().In(loc).AddDate(0, 0, -1).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStrings cleans every string in ss and drops the empty ones and duplicates, keeping order.
func CleanStrings(ss []string, lower ...bool) []string {
	seen := make(map[string]struct{}, len(ss))
	cleaned := make([]string, 0, len(ss))
	for _, s := range ss {
		s = CleanString(s, lower...)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	return cleaned
}
