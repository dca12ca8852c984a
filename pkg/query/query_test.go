package query

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

const testSchema = `
CREATE TABLE games (
	game_key          TEXT PRIMARY KEY,
	platform          TEXT NOT NULL,
	name              TEXT NOT NULL,
	hidden            INTEGER NOT NULL DEFAULT 0,
	hidden_reason     TEXT NOT NULL DEFAULT '',
	rating            INTEGER,
	review_count      INTEGER NOT NULL DEFAULT 0,
	price             REAL,
	is_free           INTEGER NOT NULL DEFAULT 0,
	tags              TEXT NOT NULL DEFAULT '[]',
	channels          TEXT NOT NULL DEFAULT '[]',
	video_count       INTEGER NOT NULL DEFAULT 0,
	latest_video_date TEXT,
	release_sort      TEXT,
	coming_soon       INTEGER NOT NULL DEFAULT 0,
	has_demo          INTEGER NOT NULL DEFAULT 0,
	cross_platform    INTEGER NOT NULL DEFAULT 0,
	search_text       TEXT NOT NULL DEFAULT ''
);`

type row struct {
	key           string
	platform      string
	name          string
	hidden        string
	rating        *int
	price         *float64
	tags          []string
	channels      []string
	videos        int
	latest        time.Time
	comingSoon    bool
	hasDemo       bool
	crossPlatform bool
}

func rating(v int) *int         { return &v }
func amount(v float64) *float64 { return &v }

func openTable(t *testing.T, rows ...row) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	for _, r := range rows {
		tags, _ := json.Marshal(append([]string{}, r.tags...))
		channels, _ := json.Marshal(append([]string{}, r.channels...))
		var latest any
		if !r.latest.IsZero() {
			latest = FormatTime(r.latest)
		}
		platform := r.platform
		if platform == "" {
			platform = "steam"
		}
		_, err := db.Exec(`INSERT INTO games
			(game_key, platform, name, hidden, hidden_reason, rating, price, is_free, tags, channels,
			 video_count, latest_video_date, coming_soon, has_demo, cross_platform, search_text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.key, platform, r.name, b2i(r.hidden != ""), r.hidden, r.rating, r.price,
			b2i(r.price != nil && *r.price == 0), string(tags), string(channels),
			r.videos, latest, b2i(r.comingSoon), b2i(r.hasDemo), b2i(r.crossPlatform), strings.ToLower(r.name))
		require.NoError(t, err)
	}
	return db
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func keys(t *testing.T, db *sqlx.DB, req Request) []string {
	t.Helper()
	sql, args := Compose(req, now)
	var out []string
	require.NoError(t, db.SelectContext(context.Background(), &out, sql, args...), sql)
	return out
}

func TestTagLogicScenario(t *testing.T) {
	db := openTable(t,
		row{key: "steam:1", name: "Both Tags", rating: rating(85), tags: []string{"roguelike", "deckbuilder"}},
		row{key: "steam:2", name: "Roguelike Only", rating: rating(90), tags: []string{"roguelike"}},
		row{key: "steam:3", name: "Low Rated", rating: rating(70), tags: []string{"deckbuilder", "roguelike", "strategy"}},
		row{key: "steam:4", name: "Puzzle", rating: rating(95), tags: []string{"puzzle"}},
		row{key: "steam:5", name: "Folded Demo", hidden: "demo", rating: rating(99), tags: []string{"roguelike", "deckbuilder"}},
		row{key: "steam:6", name: "Unrated", tags: []string{"roguelike", "deckbuilder"}},
	)

	params := url.Values{
		"selectedTags": {"roguelike", "deckbuilder"},
		"tagLogic":     {"and"},
		"rating":       {"80"},
		"sort":         {"name"},
	}
	and := keys(t, db, ParseParams(params))
	assert.Equal(t, []string{"steam:1"}, and)

	params.Set("tagLogic", "or")
	or := keys(t, db, ParseParams(params))
	assert.Equal(t, []string{"steam:1", "steam:2"}, or)
	assert.Subset(t, or, and)
	assert.Greater(t, len(or), len(and))
}

func TestHiddenGemsScenario(t *testing.T) {
	db := openTable(t,
		row{key: "steam:85", name: "Popular", rating: rating(85), videos: 6},
		row{key: "steam:70", name: "Decent", rating: rating(70), videos: 1},
		row{key: "steam:95", name: "Gem", rating: rating(95), videos: 1},
	)

	got := keys(t, db, Request{Sort: ParseSort("hidden-gems", "")})
	assert.Equal(t, []string{"steam:95", "steam:70", "steam:85"}, got)
}

func TestPresetLaddersAreDeterministic(t *testing.T) {
	rows := []row{
		{key: "steam:1", name: "Alpha", rating: rating(92), price: amount(0), videos: 1, latest: now.Add(-24 * time.Hour), comingSoon: true, hasDemo: true},
		{key: "steam:2", name: "Bravo", rating: rating(88), price: amount(9.99), videos: 3, latest: now.Add(-10 * 24 * time.Hour)},
		{key: "steam:3", name: "Charlie", rating: rating(81), price: amount(19.99), videos: 4, latest: now.Add(-40 * 24 * time.Hour), comingSoon: true},
		{key: "steam:4", name: "Delta", videos: 2, latest: now.Add(-2 * 24 * time.Hour)},
		{key: "itch:https://a.itch.io/x", platform: "itch", name: "Echo", price: amount(0), videos: 1},
		{key: "steam:6", name: "Alpha", rating: rating(92), price: amount(0), videos: 1, latest: now.Add(-24 * time.Hour)},
	}
	db := openTable(t, rows...)

	expected := map[string][]string{
		PresetHiddenGems: {"steam:1", "steam:6", "steam:2", "steam:3", "itch:https://a.itch.io/x", "steam:4"},
		PresetBestValue:  {"steam:1", "steam:6", "steam:2", "steam:3", "itch:https://a.itch.io/x", "steam:4"},
		PresetTrending:   {"steam:1", "steam:6", "steam:4", "steam:2", "steam:3", "itch:https://a.itch.io/x"},
		PresetUpcoming:   {"steam:1", "steam:3", "steam:6", "steam:2", "steam:4", "itch:https://a.itch.io/x"},
	}
	for _, preset := range Presets() {
		t.Run(preset, func(t *testing.T) {
			req := Request{Sort: ParseSort(preset, "")}
			first := keys(t, db, req)
			second := keys(t, db, req)
			assert.Equal(t, first, second)
			assert.Len(t, first, len(rows))
			assert.Equal(t, expected[preset], first)
		})
	}
}

func TestUnknownSortFallsBack(t *testing.T) {
	assert.Equal(t, DefaultSort, ParseSort("most-hyped", "sideways"))
	assert.Equal(t, DefaultSort, ParseSort("", ""))
	assert.Equal(t, Sort{Key: SortPrice, Order: Asc}, ParseSort("PRICE", "bogus"))

	fallback, fallbackArgs := Compose(Request{Sort: Sort{Key: "most-hyped"}}, now)
	def, defArgs := Compose(Request{Sort: DefaultSort}, now)
	assert.Equal(t, def, fallback)
	assert.Equal(t, defArgs, fallbackArgs)
	assert.Contains(t, def, "latest_video_date DESC")
}

func TestComposeIsStable(t *testing.T) {
	req := ParseParams(url.Values{
		"platform":      {"itch"},
		"channels":      {"c1,c2"},
		"channelLogic":  {"or"},
		"priceMax":      {"10"},
		"timeRange":     {"month"},
		"search":        {"50%_off"},
		"crossPlatform": {"1"},
		"sort":          {"trending"},
		"limit":         {"9999"},
	})
	assert.Equal(t, MaxLimit, req.Limit)

	sqlA, argsA := Compose(req, now)
	sqlB, argsB := Compose(req, now)
	assert.Equal(t, sqlA, sqlB)
	assert.Equal(t, argsA, argsB)
	assert.Contains(t, argsA, `%50\%\_off%`)

	again := ParseParams(req.Values())
	assert.Equal(t, req, again)
}

func TestFilterPredicates(t *testing.T) {
	db := openTable(t,
		row{key: "steam:1", name: "Deck Hero", rating: rating(91), price: amount(14.99), videos: 2, channels: []string{"c1"}, latest: now.Add(-3 * 24 * time.Hour), crossPlatform: true},
		row{key: "steam:2", name: "Star Farm", rating: rating(82), price: amount(4.99), videos: 9, channels: []string{"c2"}, latest: now.Add(-100 * 24 * time.Hour)},
		row{key: "itch:https://dev.itch.io/proto", platform: "itch", name: "Deck Proto", hidden: "absorbed", price: amount(0), channels: []string{"c1"}},
		row{key: "itch:https://dev.itch.io/moon", platform: "itch", name: "Moon", price: amount(0), channels: []string{"c1", "c2"}},
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"visible only", Filter{}, []string{"steam:1", "itch:https://dev.itch.io/moon", "steam:2"}},
		{"platform", Filter{Platform: catalog.PlatformItch}, []string{"itch:https://dev.itch.io/moon"}},
		{"absorbed opt-in with platform", Filter{Platform: catalog.PlatformItch, IncludeAbsorbed: true}, []string{"itch:https://dev.itch.io/proto", "itch:https://dev.itch.io/moon"}},
		{"absorbed opt-in ignored without platform", Filter{IncludeAbsorbed: true}, []string{"steam:1", "itch:https://dev.itch.io/moon", "steam:2"}},
		{"channels and", Filter{Channels: []string{"c1", "c2"}}, []string{"itch:https://dev.itch.io/moon"}},
		{"channels or", Filter{Channels: []string{"c1", "c2"}, ChannelLogic: LogicOr}, []string{"steam:1", "itch:https://dev.itch.io/moon", "steam:2"}},
		{"price range", Filter{PriceMin: amount(1), PriceMax: amount(10)}, []string{"steam:2"}},
		{"non-finite prices dropped", Filter{PriceMin: amount(math.NaN()), PriceMax: amount(math.Inf(-1))}, []string{"steam:1", "itch:https://dev.itch.io/moon", "steam:2"}},
		{"time range", Filter{TimeRange: "week"}, []string{"steam:1"}},
		{"search", Filter{Search: "DECK"}, []string{"steam:1"}},
		{"hidden gems", Filter{HiddenGems: true}, []string{"steam:1"}},
		{"cross platform", Filter{CrossPlatform: true}, []string{"steam:1"}},
		{"bad values dropped", Filter{MinRating: 400, TimeRange: "eon", Platform: "gog"}, []string{"steam:1", "itch:https://dev.itch.io/moon", "steam:2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(t, db, Request{Filter: tt.filter, Sort: ParseSort("name", "")})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountMatchesQuery(t *testing.T) {
	db := openTable(t,
		row{key: "steam:1", name: "A", rating: rating(91)},
		row{key: "steam:2", name: "B", rating: rating(60)},
	)
	sql, args := ComposeCount(Filter{MinRating: 90}, now)
	var n int
	require.NoError(t, db.Get(&n, sql, args...))
	assert.Equal(t, 1, n)
}

func TestNonFinitePricesDropped(t *testing.T) {
	for _, v := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "1e400", "-3"} {
		t.Run(v, func(t *testing.T) {
			req := ParseParams(url.Values{"priceMin": {v}, "priceMax": {v}})
			assert.Nil(t, req.Filter.PriceMin)
			assert.Nil(t, req.Filter.PriceMax)
		})
	}

	req := ParseParams(url.Values{"priceMin": {"2.5"}})
	require.NotNil(t, req.Filter.PriceMin)
	assert.Equal(t, 2.5, *req.Filter.PriceMin)

	f := Filter{PriceMin: amount(math.NaN()), PriceMax: amount(math.Inf(1))}.Clean()
	assert.Nil(t, f.PriceMin)
	assert.Nil(t, f.PriceMax)
}
