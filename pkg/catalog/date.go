package catalog

import (
	"strings"
	"time"
)

var releaseLayouts = []string{
	"Jan 2, 2006",
	"2 Jan, 2006",
	"January 2, 2006",
	"2 January, 2006",
	"2 Jan 2006",
	"2006-01-02",
	time.RFC3339,
	"Jan 2006",
	"January 2006",
	"2006",
}

// ParseReleaseDate reads the release date formats store pages use. Texts
// like "Coming soon" or "Q3 2025" report false.
func ParseReleaseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
