// Package query composes filters and rankings over the resolved game table
// of a snapshot. Composition never fails: values it cannot use are dropped
// and unknown sorts fall back to the default order.
package query

import (
	"math"
	"strings"
	"time"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Logic joins the members of a tag or channel set.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// ParseLogic reads a logic toggle; anything but "or" means "and".
func ParseLogic(s string) Logic {
	if strings.EqualFold(strings.TrimSpace(s), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}

// Hidden-gems toggle bounds.
const (
	HiddenGemMinRating = 80
	HiddenGemMaxVideos = 5
)

// timeRanges maps the accepted time range names to their span.
var timeRanges = map[string]time.Duration{
	"day":     24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"month":   30 * 24 * time.Hour,
	"quarter": 90 * 24 * time.Hour,
	"year":    365 * 24 * time.Hour,
}

// TimeRangeSpan returns the span of a named time range.
func TimeRangeSpan(name string) (time.Duration, bool) {
	d, ok := timeRanges[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Filter selects entities. The zero value lists every visible entity.
type Filter struct {
	Platform        catalog.Platform
	MinRating       int
	Tags            []string
	TagLogic        Logic
	Channels        []string
	ChannelLogic    Logic
	PriceMin        *float64
	PriceMax        *float64
	TimeRange       string
	Search          string
	HiddenGems      bool
	CrossPlatform   bool
	IncludeAbsorbed bool
}

// Clean returns the filter with unusable values dropped and sets lower-cased
// and de-duplicated.
func (f Filter) Clean() Filter {
	f.Platform, _ = catalog.ParsePlatform(string(f.Platform))
	if f.MinRating < 0 || f.MinRating > 100 {
		f.MinRating = 0
	}
	f.Tags = cleanSet(f.Tags, true)
	f.Channels = cleanSet(f.Channels, false)
	if f.TagLogic != LogicOr {
		f.TagLogic = LogicAnd
	}
	if f.ChannelLogic != LogicOr {
		f.ChannelLogic = LogicAnd
	}
	if f.PriceMin != nil && !validPrice(*f.PriceMin) {
		f.PriceMin = nil
	}
	if f.PriceMax != nil && !validPrice(*f.PriceMax) {
		f.PriceMax = nil
	}
	if _, ok := TimeRangeSpan(f.TimeRange); !ok {
		f.TimeRange = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	if f.Platform == "" {
		f.IncludeAbsorbed = false
	}
	return f
}

func cleanSet(in []string, lower bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
