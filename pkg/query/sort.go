package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
)

// Direction of a simple sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Simple sort keys.
const (
	SortDate    = "date"
	SortRating  = "rating"
	SortReviews = "reviews"
	SortVideos  = "videos"
	SortPrice   = "price"
	SortName    = "name"
	SortRelease = "release"
)

// Smart presets.
const (
	PresetHiddenGems = "hidden-gems"
	PresetBestValue  = "best-value"
	PresetTrending   = "trending"
	PresetUpcoming   = "upcoming"
)

// Sort is a simple sort key with a direction, or a smart preset name.
type Sort struct {
	Key   string
	Order Direction
}

// DefaultSort orders by the newest video first.
var DefaultSort = Sort{Key: SortDate, Order: Desc}

// simpleSorts maps each simple key to its column expression, whether the
// column may be NULL, and its natural direction.
var simpleSorts = map[string]struct {
	expr     string
	nullable bool
	natural  Direction
}{
	SortDate:    {"latest_video_date", true, Desc},
	SortRating:  {"rating", true, Desc},
	SortReviews: {"review_count", false, Desc},
	SortVideos:  {"video_count", false, Desc},
	SortPrice:   {"price", true, Asc},
	SortName:    {"name COLLATE NOCASE", false, Asc},
	SortRelease: {"release_sort", true, Desc},
}

// presets builds the ORDER BY terms of each smart preset. Every ladder is
// complete: its last tier catches everything the earlier tiers did not.
var presets = map[string]func(sb *sqlbuilder.SelectBuilder, now time.Time) []string{
	PresetHiddenGems: func(sb *sqlbuilder.SelectBuilder, _ time.Time) []string {
		return []string{
			`CASE
				WHEN rating >= 90 AND video_count <= 2 THEN 0
				WHEN rating >= 80 AND video_count <= 5 THEN 1
				WHEN rating >= 70 AND video_count <= 5 THEN 2
				WHEN rating IS NOT NULL THEN 3
				ELSE 4
			END ASC`,
			"rating DESC",
			"video_count ASC",
		}
	},
	PresetBestValue: func(sb *sqlbuilder.SelectBuilder, _ time.Time) []string {
		return []string{
			`CASE
				WHEN is_free = 1 AND rating >= 80 THEN 0
				WHEN price IS NOT NULL AND price <= 10 AND rating >= 85 THEN 1
				WHEN price IS NOT NULL AND price <= 20 AND rating >= 80 THEN 2
				WHEN rating IS NOT NULL THEN 3
				ELSE 4
			END ASC`,
			"rating DESC",
			"(price IS NULL) ASC",
			"price ASC",
		}
	},
	PresetTrending: func(sb *sqlbuilder.SelectBuilder, now time.Time) []string {
		week := FormatTime(now.Add(-7 * 24 * time.Hour))
		month := FormatTime(now.Add(-30 * 24 * time.Hour))
		return []string{
			fmt.Sprintf(`CASE
				WHEN latest_video_date >= %s AND rating >= 80 THEN 0
				WHEN latest_video_date >= %s THEN 1
				WHEN latest_video_date >= %s THEN 2
				ELSE 3
			END ASC`, sb.Var(week), sb.Var(week), sb.Var(month)),
			"latest_video_date DESC",
			"rating DESC",
		}
	},
	PresetUpcoming: func(sb *sqlbuilder.SelectBuilder, _ time.Time) []string {
		return []string{
			`CASE
				WHEN coming_soon = 1 AND has_demo = 1 AND rating >= 80 THEN 0
				WHEN coming_soon = 1 AND has_demo = 1 THEN 1
				WHEN coming_soon = 1 THEN 2
				ELSE 3
			END ASC`,
			"rating DESC",
			"latest_video_date DESC",
		}
	},
}

// Presets lists the smart preset names.
func Presets() []string {
	return []string{PresetHiddenGems, PresetBestValue, PresetTrending, PresetUpcoming}
}

// SimpleKeys lists the simple sort keys.
func SimpleKeys() []string {
	return []string{SortDate, SortRating, SortReviews, SortVideos, SortPrice, SortName, SortRelease}
}

// ParseSort reads a sort key and direction. Unknown keys give DefaultSort; a
// missing or unknown direction gives the key's natural one.
func ParseSort(key, order string) Sort {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := presets[key]; ok {
		return Sort{Key: key}
	}
	col, ok := simpleSorts[key]
	if !ok {
		return DefaultSort
	}
	dir := Direction(strings.ToLower(strings.TrimSpace(order)))
	if dir != Asc && dir != Desc {
		dir = col.natural
	}
	return Sort{Key: key, Order: dir}
}

// IsPreset reports whether s names a smart preset.
func (s Sort) IsPreset() bool {
	_, ok := presets[s.Key]
	return ok
}

// orderBy returns the complete ORDER BY terms for s. The trailing name and
// key terms make every ordering total.
func (s Sort) orderBy(sb *sqlbuilder.SelectBuilder, now time.Time) []string {
	tail := []string{"name COLLATE NOCASE ASC", "game_key ASC"}
	if build, ok := presets[s.Key]; ok {
		return append(build(sb, now), tail...)
	}
	col, ok := simpleSorts[s.Key]
	if !ok {
		s, col = DefaultSort, simpleSorts[DefaultSort.Key]
	}
	dir := s.Order
	if dir != Asc && dir != Desc {
		dir = col.natural
	}
	var terms []string
	if col.nullable {
		terms = append(terms, fmt.Sprintf("(%s IS NULL) ASC", col.expr))
	}
	terms = append(terms, col.expr+" "+strings.ToUpper(string(dir)))
	return append(terms, tail...)
}

// FormatTime renders a timestamp the way the snapshot stores it, so that
// text comparison matches time order.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
