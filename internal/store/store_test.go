package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func openStore(t *testing.T, now *time.Time) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "raw.db"), WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertGamesKeepsFreshest(t *testing.T) {
	now := t0
	s := openStore(t, &now)
	ctx := context.Background()

	n, err := s.UpsertGames(ctx, []catalog.RawGame{
		{Platform: "steam", SteamAppID: "10", Name: "Fresh", LastFetched: t0},
		{Platform: "itch", URL: "https://dev.itch.io/jam/", Name: "Jam"},
		{Platform: "steam", Name: "No id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.UpsertGames(ctx, []catalog.RawGame{
		{Platform: "steam", SteamAppID: "10", Name: "Stale", LastFetched: t0.Add(-time.Hour)},
	})
	require.NoError(t, err)
	g, err := s.GetGame(ctx, "steam:10")
	require.NoError(t, err)
	assert.Equal(t, "Fresh", g.Name)

	_, err = s.UpsertGames(ctx, []catalog.RawGame{
		{Platform: "steam", SteamAppID: "10", Name: "Newer", LastFetched: t0.Add(time.Hour)},
	})
	require.NoError(t, err)
	g, err = s.GetGame(ctx, "steam:10")
	require.NoError(t, err)
	assert.Equal(t, "Newer", g.Name)

	itch, err := s.GetGame(ctx, "itch:https://dev.itch.io/jam")
	require.NoError(t, err)
	assert.Equal(t, "Jam", itch.Name)

	_, err = s.GetGame(ctx, "steam:404")
	assert.ErrorIs(t, err, ErrNotFound)

	counts, err := s.CountGamesByPlatform(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[catalog.Platform]int{catalog.PlatformSteam: 1, catalog.PlatformItch: 1}, counts)

	steam, err := s.ListGames(ctx, GameListOpts{Platform: catalog.PlatformSteam})
	require.NoError(t, err)
	require.Len(t, steam, 1)
	assert.Equal(t, "10", steam[0].SteamAppID)
}

func TestVideosAndLoadInput(t *testing.T) {
	now := t0
	s := openStore(t, &now)
	ctx := context.Background()

	_, err := s.UpsertGames(ctx, []catalog.RawGame{{Platform: "steam", SteamAppID: "1", Name: "One"}})
	require.NoError(t, err)
	n, err := s.UpsertVideos(ctx, []catalog.RawVideo{
		{VideoID: "a", ChannelID: "c1", PublishedAt: t0.Add(-48 * time.Hour), Links: catalog.RawLinks{SteamAppID: "1"}},
		{VideoID: "b", ChannelID: "c2", PublishedAt: t0.Add(-24 * time.Hour)},
		{ChannelID: "c2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-collecting a video replaces it.
	_, err = s.UpsertVideos(ctx, []catalog.RawVideo{
		{VideoID: "a", Title: "Updated", ChannelID: "c1", PublishedAt: t0.Add(-48 * time.Hour), Links: catalog.RawLinks{SteamAppID: "1"}},
	})
	require.NoError(t, err)

	videos, err := s.ListVideos(ctx, VideoListOpts{})
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "b", videos[0].VideoID)
	assert.Equal(t, "Updated", videos[1].Title)
	assert.True(t, videos[1].PublishedAt.Equal(t0.Add(-48*time.Hour)))

	c1, err := s.ListVideos(ctx, VideoListOpts{ChannelID: "c1"})
	require.NoError(t, err)
	assert.Len(t, c1, 1)

	in, err := s.LoadInput(ctx)
	require.NoError(t, err)
	assert.Len(t, in.Games, 1)
	assert.Len(t, in.Videos, 2)
}

func TestFetchRequestQueue(t *testing.T) {
	now := t0
	s := openStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.EnqueueFetchRequests(ctx, []resolve.FetchRequest{
		{Key: "steam:20", Reason: "full game of a known demo", RequestedBy: []string{"steam:21"}},
		{Key: "steam:30", Reason: "referenced by videos", RequestedBy: []string{"v1"}},
	}))
	now = t0.Add(time.Hour)
	require.NoError(t, s.EnqueueFetchRequests(ctx, []resolve.FetchRequest{
		{Key: "steam:30", Reason: "referenced by videos", RequestedBy: []string{"v2", "v1"}},
	}))

	reqs, err := s.ListFetchRequests(ctx, FetchListOpts{PendingOnly: true})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, catalog.Key("steam:30"), reqs[0].Key)
	assert.Equal(t, 2, reqs[0].Times)
	assert.Equal(t, []string{"v1", "v2"}, reqs[0].RequestedBy)
	assert.True(t, reqs[0].FirstRequested.Equal(t0))
	assert.True(t, reqs[0].LastRequested.Equal(t0.Add(time.Hour)))
	assert.Nil(t, reqs[0].FetchedAt)

	// Storing the missing game settles its request.
	_, err = s.UpsertGames(ctx, []catalog.RawGame{{Platform: "steam", SteamAppID: "30", Name: "Thirty"}})
	require.NoError(t, err)
	require.NoError(t, s.MarkFetched(ctx, "steam:20"))
	assert.ErrorIs(t, s.MarkFetched(ctx, "steam:99"), ErrNotFound)

	pending, err := s.ListFetchRequests(ctx, FetchListOpts{PendingOnly: true})
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := s.ListFetchRequests(ctx, FetchListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].FetchedAt)

	// A repeated request reopens it.
	require.NoError(t, s.EnqueueFetchRequests(ctx, []resolve.FetchRequest{{Key: "steam:20", Reason: "full game of a known demo"}}))
	pending, err = s.ListFetchRequests(ctx, FetchListOpts{PendingOnly: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"steam:21"}, pending[0].RequestedBy)
}
