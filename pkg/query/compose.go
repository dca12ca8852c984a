package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
)

// Table is the snapshot table the composer queries.
const Table = "games"

// Page size bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Request is a complete query: filter, ordering and page.
type Request struct {
	Filter Filter
	Sort   Sort
	// Limit of zero returns every match.
	Limit  int
	Offset int
}

// Compose builds the SELECT for req. The statement is deterministic for a
// given request and now.
func Compose(req Request, now time.Time, columns ...string) (string, []any) {
	if len(columns) == 0 {
		columns = []string{"game_key"}
	}
	f := req.Filter.Clean()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(Table)
	sb.Where(conditions(sb, f, now)...)
	sb.OrderBy(req.Sort.orderBy(sb, now)...)
	if req.Limit > 0 {
		sb.Limit(min(req.Limit, MaxLimit))
		if req.Offset > 0 {
			sb.Offset(req.Offset)
		}
	}
	return sb.Build()
}

// ComposeCount builds the COUNT(*) for f.
func ComposeCount(f Filter, now time.Time) (string, []any) {
	f = f.Clean()
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(Table)
	sb.Where(conditions(sb, f, now)...)
	return sb.Build()
}

// conditions returns the WHERE terms: visibility first, then platform, then
// the remaining predicates, all joined with AND.
func conditions(sb *sqlbuilder.SelectBuilder, f Filter, now time.Time) []string {
	var where []string

	if f.IncludeAbsorbed {
		where = append(where, sb.Or(
			sb.Equal("hidden", 0),
			sb.Equal("hidden_reason", "absorbed"),
		))
	} else {
		where = append(where, sb.Equal("hidden", 0))
	}

	if f.Platform != "" {
		where = append(where, sb.Equal("platform", string(f.Platform)))
	}

	if f.MinRating > 0 {
		where = append(where, sb.GreaterEqualThan("rating", f.MinRating))
	}
	if len(f.Tags) > 0 {
		where = append(where, jsonSetMatch(sb, "tags", f.Tags, f.TagLogic))
	}
	if len(f.Channels) > 0 {
		where = append(where, jsonSetMatch(sb, "channels", f.Channels, f.ChannelLogic))
	}
	if f.PriceMin != nil {
		where = append(where, sb.GreaterEqualThan("price", *f.PriceMin))
	}
	if f.PriceMax != nil {
		where = append(where, sb.LessEqualThan("price", *f.PriceMax))
	}
	if span, ok := TimeRangeSpan(f.TimeRange); ok {
		where = append(where, sb.GreaterEqualThan("latest_video_date", FormatTime(now.Add(-span))))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		where = append(where, fmt.Sprintf(`search_text LIKE %s ESCAPE '\'`, sb.Var(pattern)))
	}
	if f.HiddenGems {
		where = append(where,
			sb.GreaterEqualThan("rating", HiddenGemMinRating),
			sb.LessEqualThan("video_count", HiddenGemMaxVideos))
	}
	if f.CrossPlatform {
		where = append(where, sb.Equal("cross_platform", 1))
	}
	return where
}

// jsonSetMatch matches rows whose JSON array column contains all (and) or
// any (or) of values.
func jsonSetMatch(sb *sqlbuilder.SelectBuilder, column string, values []string, logic Logic) string {
	exists := func(cond string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.%s) WHERE %s)", Table, column, cond)
	}
	if logic == LogicOr {
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = v
		}
		return exists(sb.In("json_each.value", args...))
	}
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = exists(sb.Equal("json_each.value", v))
	}
	return sb.And(terms...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
