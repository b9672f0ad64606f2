package extractor

import (
	"regexp"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2 Jan 2006, 3:04 PM",
	"2 January 2006, 3:04 PM",
	"2 Jan 2006 3:04 PM",
	"2 January 2006 3:04 PM",
	"2 Jan 2006, 15:04",
	"2 January 2006, 15:04",
	"2 Jan 2006 15:04",
	"2 January 2006 15:04",
	"2 Jan 2006",
	"2 January 2006",
	"2 Jan, 2006",
	"2 January, 2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2/1/2006, 15:04",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006, 15:04",
	"2-1-2006",
}

// yearlessLayouts take the year from the fallback date.
var yearlessLayouts = []string{
	"2 Jan, 3:04 PM",
	"2 January, 3:04 PM",
	"2 Jan 3:04 PM",
	"2 January 3:04 PM",
}

var (
	meridiem  = regexp.MustCompile(`(?i)(\d)\s*([ap])\.?\s?m\b\.?`)
	ordinal   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	dateSpace = regexp.MustCompile(`\s+`)
)

// normalizeDate tidies a date candidate so the layouts can match it.
func normalizeDate(s string) string {
	s = dateSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = ordinal.ReplaceAllString(s, "$1")
	s = meridiem.ReplaceAllStringFunc(s, func(m string) string {
		sub := meridiem.FindStringSubmatch(m)
		return sub[1] + " " + strings.ToUpper(sub[2]) + "M"
	})
	return strings.TrimRight(s, " .,;")
}

// ParseDate reads a date in loc using the fixed layout priority list.
// Year-less dates borrow the year of fallback and fail when fallback is zero.
func ParseDate(s string, loc *time.Location, fallback time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = normalizeDate(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	if fallback.IsZero() {
		return time.Time{}, false
	}
	year := fallback.In(loc).Year()
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}

	return time.Time{}, false
}
