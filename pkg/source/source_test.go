package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Indie Digest</title>
 <yt:channelId>UC1</yt:channelId>
 <author><name>Indie Digest</name></author>
 <entry>
  <id>yt:video:vid1</id>
  <yt:videoId>vid1</yt:videoId>
  <yt:channelId>UC1</yt:channelId>
  <title>Five demos you missed</title>
  <published>2024-05-01T12:00:00+00:00</published>
  <updated>2024-05-02T12:00:00+00:00</updated>
  <media:group>
   <media:title>Five demos you missed</media:title>
   <media:description>Wishlist: https://store.steampowered.com/app/1234/Deck_Hero/ and the jam build https://dev.itch.io/deck-hero?ref=yt</media:description>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:vid2</id>
  <yt:videoId>vid2</yt:videoId>
  <title>Channel update</title>
  <published>2024-05-03T12:00:00+00:00</published>
  <media:group>
   <media:description>No games today.</media:description>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:vid3</id>
  <yt:videoId>vid3</yt:videoId>
  <title>Quick look #shorts</title>
  <published>2024-05-04T12:00:00+00:00</published>
  <media:group>
   <media:description>https://www.crazygames.com/game/moon-run</media:description>
  </media:group>
 </entry>
</feed>`

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want catalog.RawLinks
	}{
		{"steam store", "play https://store.steampowered.com/app/570/Dota_2/", catalog.RawLinks{SteamAppID: "570"}},
		{"steam short link", "s.team/a/42", catalog.RawLinks{SteamAppID: "42"}},
		{"itch", "http://someone.itch.io/tiny-game.", catalog.RawLinks{ItchURL: "http://someone.itch.io/tiny-game"}},
		{"crazygames", "crazygames.com/game/moon-run", catalog.RawLinks{CrazyGamesURL: "crazygames.com/game/moon-run"}},
		{"first match wins", "store.steampowered.com/app/1 store.steampowered.com/app/2", catalog.RawLinks{SteamAppID: "1"}},
		{"nothing", "subscribe!", catalog.RawLinks{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLinks(tt.text))
		})
	}
}

func TestYouTubeCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("channel_id") {
		case "UC1":
			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(channelFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	yt := NewYouTube(YouTubeOptions{
		FeedURL:  srv.URL,
		Channels: []string{"UC1", "UCmissing"},
		Filter:   NewFilter([]string{"#shorts"}),
		Logger:   zaptest.NewLogger(t),
	})
	assert.Equal(t, SourceYouTube, yt.Name())

	batch, err := yt.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Videos, 1)

	v := batch.Videos[0]
	assert.Equal(t, "vid1", v.VideoID)
	assert.Equal(t, "UC1", v.ChannelID)
	assert.Equal(t, "Indie Digest", v.ChannelName)
	assert.True(t, v.PublishedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "1234", v.Links.SteamAppID)
	assert.Equal(t, "https://dev.itch.io/deck-hero", v.Links.ItchURL)
}

func TestYouTubeCollectAllChannelsFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	yt := NewYouTube(YouTubeOptions{FeedURL: srv.URL, Channels: []string{"UC1"}})
	_, err := yt.Collect(context.Background())
	assert.ErrorContains(t, err, "all 1 channels failed")
}

func TestDecodeBatch(t *testing.T) {
	b, err := DecodeBatch(strings.NewReader(`[{"platform":"steam","steam_app_id":"1","name":"One"}]`))
	require.NoError(t, err)
	require.Len(t, b.Games, 1)
	assert.Equal(t, "One", b.Games[0].Name)

	b, err = DecodeBatch(strings.NewReader(`{
		"games": [{"platform":"itch","url":"https://a.itch.io/b","name":"B"}],
		"videos": [{"video_id":"v","channel_id":"c","published_at":"2024-01-01T00:00:00Z","platform_links":{"itch_url":"https://a.itch.io/b"}}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "https://a.itch.io/b", b.Videos[0].Links.ItchURL)

	b, err = DecodeBatch(strings.NewReader("  "))
	require.NoError(t, err)
	assert.Zero(t, b.Len())

	_, err = DecodeBatch(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestImportCollect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`[{"platform":"steam","steam_app_id":"2","name":"Two"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`[{"platform":"steam","steam_app_id":"1","name":"One"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	single := filepath.Join(t.TempDir(), "videos.json")
	require.NoError(t, os.WriteFile(single, []byte(`{"videos":[{"video_id":"v1","channel_id":"c"}]}`), 0o644))

	batch, err := NewImport([]string{dir, single}).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Games, 2)
	assert.Equal(t, "One", batch.Games[0].Name)
	assert.Equal(t, "Two", batch.Games[1].Name)
	assert.Len(t, batch.Videos, 1)

	_, err = NewImport([]string{filepath.Join(dir, "missing")}).Collect(context.Background())
	assert.Error(t, err)
}

func TestFilterKeep(t *testing.T) {
	f := NewFilter([]string{" #Shorts ", ""})
	linked := catalog.RawLinks{SteamAppID: "1"}
	assert.True(t, f.Keep(catalog.RawVideo{Title: "Let's play", Links: linked}))
	assert.False(t, f.Keep(catalog.RawVideo{Title: "Let's play #shorts", Links: linked}))
	assert.False(t, f.Keep(catalog.RawVideo{Title: "Let's play"}))
}
