package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/terrorobe/cubscrape-sub001/internal/metrics"
	"github.com/terrorobe/cubscrape-sub001/internal/snapshot"
	"github.com/terrorobe/cubscrape-sub001/internal/store"
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRebuilder struct {
	meta snapshot.Meta
	err  error
}

func (f fakeRebuilder) Rebuild(context.Context) (snapshot.Meta, error) { return f.meta, f.err }

func openSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	logger := zaptest.NewLogger(t)
	res, err := resolve.New(resolve.DefaultOptions(), logger).Build(resolve.Input{
		Games: []catalog.RawGame{
			{Platform: "steam", SteamAppID: "1", Name: "Alpha", ReleaseDate: "Jan 5, 2024"},
			{Platform: "steam", SteamAppID: "2", Name: "Beta", ReleaseDate: "Feb 5, 2024"},
		},
		Videos: []catalog.RawVideo{
			{VideoID: "v1", ChannelID: "c1", PublishedAt: now.Add(-time.Hour), Links: catalog.RawLinks{SteamAppID: "1"}},
			{VideoID: "v2", ChannelID: "c2", PublishedAt: now.Add(-2 * time.Hour), Links: catalog.RawLinks{SteamAppID: "2"}},
		},
	})
	require.NoError(t, err)

	dir := t.TempDir()
	clock := func() time.Time { return now }
	meta, err := snapshot.Write(context.Background(), dir, res, snapshot.WriteOptions{Now: clock})
	require.NoError(t, err)
	snap, err := snapshot.Open(meta.Path, snapshot.Options{Logger: logger, Now: clock})
	require.NoError(t, err)
	t.Cleanup(func() { snap.Close() })
	return snap
}

func do(t *testing.T, s *Server, method, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestNoSnapshotYet(t *testing.T) {
	s := New(Options{Logger: zaptest.NewLogger(t)})

	code, body := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "starting", body["status"])

	code, body = do(t, s, http.MethodGet, "/api/v1/games")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "no snapshot has been built yet", body["error"])

	code, _ = do(t, s, http.MethodPost, "/api/v1/rebuild")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestGameEndpoints(t *testing.T) {
	snap := openSnapshot(t)
	s := New(Options{Holder: snapshot.NewHolder(snap), Logger: zaptest.NewLogger(t)})

	code, body := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, snap.Meta().ID, body["snapshot"].(map[string]any)["id"])

	code, body = do(t, s, http.MethodGet, "/api/v1/games")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["count"])

	code, body = do(t, s, http.MethodGet, "/api/v1/games?platform=itch")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total"])

	code, body = do(t, s, http.MethodGet, "/api/v1/game?key=steam:1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "steam:1", body["data"].(map[string]any)["key"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/game?key=steam:999")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, s, http.MethodGet, "/api/v1/game?key=nonsense")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "invalid game key")

	code, body = do(t, s, http.MethodGet, "/api/v1/videos?key=steam:2")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = do(t, s, http.MethodGet, "/api/v1/card?key=steam:1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Alpha", body["data"].(map[string]any)["name"])

	code, body = do(t, s, http.MethodGet, "/api/v1/fetch-requests")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])
}

func TestStoreEndpoints(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.UpsertGames(ctx, []catalog.RawGame{{Platform: "steam", SteamAppID: "1", Name: "Alpha"}})
	require.NoError(t, err)
	require.NoError(t, st.EnqueueFetchRequests(ctx, []resolve.FetchRequest{
		{Key: "steam:5", Reason: "referenced by videos", RequestedBy: []string{"v1"}},
	}))

	s := New(Options{Store: st, Logger: zaptest.NewLogger(t)})

	code, body := do(t, s, http.MethodGet, "/api/v1/fetch-requests")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = do(t, s, http.MethodGet, "/api/v1/platforms")
	require.Equal(t, http.StatusOK, code)
	platforms := body["data"].([]any)
	require.Len(t, platforms, len(catalog.AllPlatforms()))
	assert.Equal(t, map[string]any{"name": "steam", "records": 1.0}, platforms[0])
}

func TestRebuildEndpoint(t *testing.T) {
	tests := []struct {
		name string
		rb   fakeRebuilder
		want int
	}{
		{"ok", fakeRebuilder{meta: snapshot.Meta{ID: "abc", Entities: 3}}, http.StatusOK},
		{"locked", fakeRebuilder{err: snapshot.ErrLocked}, http.StatusConflict},
		{"empty", fakeRebuilder{err: resolve.ErrEmptyInput}, http.StatusUnprocessableEntity},
		{"other", fakeRebuilder{err: context.DeadlineExceeded}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{Rebuilder: tt.rb, Logger: zaptest.NewLogger(t)})
			code, body := do(t, s, http.MethodPost, "/api/v1/rebuild")
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "abc", body["data"].(map[string]any)["id"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.SetSnapshot(4, 2)
	s := New(Options{Metrics: m, Logger: zaptest.NewLogger(t)})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cubscrape_snapshot_visible_entities 2")
}
