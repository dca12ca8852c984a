package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

var now = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

func TestTierLadder(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name    string
		release string
		planned string
		want    Tier
	}{
		{"released last week", "Aug 25, 2024", "", Daily},
		{"released this spring", "Mar 3, 2024", "", Weekly},
		{"released years ago", "2019-05-01", "", Monthly},
		{"unknown date", "Coming soon", "", Weekly},
		{"no date at all", "", "", Weekly},
		{"upcoming with planned date", "", "December 2024", Daily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := catalog.RawGame{Platform: "steam", SteamAppID: "1", ReleaseDate: tt.release, PlannedReleaseDate: tt.planned}
			assert.Equal(t, tt.want, p.Tier(g, now))
		})
	}
}

func TestStaleOrdersByOverdue(t *testing.T) {
	p := DefaultPolicy()
	games := []catalog.RawGame{
		{Platform: "steam", SteamAppID: "1", Name: "fresh daily", ReleaseDate: "Aug 30, 2024", LastFetched: now.Add(-2 * time.Hour)},
		{Platform: "steam", SteamAppID: "2", Name: "late daily", ReleaseDate: "Aug 30, 2024", LastFetched: now.Add(-26 * time.Hour)},
		{Platform: "steam", SteamAppID: "3", Name: "late monthly", ReleaseDate: "2018", LastFetched: now.Add(-40 * 24 * time.Hour)},
		{Platform: "steam", SteamAppID: "4", Name: "never fetched"},
		{Platform: "itch", URL: "https://dev.itch.io/x", Name: "not steam"},
	}

	due := p.Stale(games, now)
	require.Len(t, due, 3)
	assert.Equal(t, catalog.Key("steam:3"), due[0].Key)
	assert.Equal(t, 10*24*time.Hour, due[0].Overdue)
	assert.Equal(t, catalog.Key("steam:2"), due[1].Key)
	assert.Equal(t, 2*time.Hour, due[1].Overdue)
	assert.Equal(t, catalog.Key("steam:4"), due[2].Key)
	assert.Equal(t, Weekly, due[2].Tier)
	assert.Zero(t, due[2].Overdue)
}
