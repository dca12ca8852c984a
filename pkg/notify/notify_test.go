package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

var builtAt = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

type capture struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
	status  int
}

func (c *capture) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		if c.status != 0 {
			w.WriteHeader(c.status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sampleReport() resolve.Report {
	var reqs []resolve.FetchRequest
	for i := 0; i < 7; i++ {
		reqs = append(reqs, resolve.FetchRequest{Key: catalog.SteamKey(string(rune('1' + i))), Reason: "referenced by videos"})
	}
	return resolve.Report{
		GameRecords:   1200,
		VideoRecords:  3400,
		Entities:      1100,
		Rejections:    []resolve.Rejection{{Kind: resolve.RejectMalformed}},
		Conflicts:     []resolve.Conflict{{Kind: resolve.ConflictCompeting}},
		Absorptions:   []resolve.Absorption{{Case: resolve.MatchSharedVideo}, {Case: resolve.MatchSameChannel}},
		FetchRequests: reqs,
	}
}

func TestRebuildSummary(t *testing.T) {
	n := RebuildSummary("abc", builtAt, 1000, sampleReport())
	assert.Equal(t, KindRebuild, n.Kind)
	assert.Contains(t, n.Body, "1,000 games from 1,200 records and 3,400 videos")
	assert.Contains(t, n.Body, "7 missing records requested")
	assert.Equal(t, 2, n.Counts["absorptions"])
	assert.Equal(t, 1, n.Counts["malformed"])
	assert.Equal(t, 7, n.Counts["fetch_requests"])

	lines := n.fetchLines(func(r resolve.FetchRequest) string { return string(r.Key) })
	require.Len(t, lines, 6)
	assert.Equal(t, "and 2 more", lines[5])
}

func TestSlackPayload(t *testing.T) {
	c := &capture{}
	srv := c.server(t)

	err := NewSlack(srv.URL).Send(context.Background(), RebuildSummary("abc", builtAt, 1000, sampleReport()))
	require.NoError(t, err)
	require.Len(t, c.bodies, 1)

	var payload struct {
		Text   string           `json:"text"`
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	assert.Equal(t, "Catalog rebuilt", payload.Text)
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "context", payload.Blocks[2]["type"])
	assert.Len(t, payload.Blocks[2]["elements"], 6)
}

func TestDiscordPayload(t *testing.T) {
	c := &capture{status: http.StatusNoContent}
	srv := c.server(t)

	err := NewDiscord(srv.URL).Send(context.Background(), RebuildFailure(builtAt, errors.New("no valid records")))
	require.NoError(t, err)

	var payload struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Timestamp   string `json:"timestamp"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Catalog rebuild failed", payload.Embeds[0].Title)
	assert.Equal(t, "no valid records", payload.Embeds[0].Description)
	assert.Equal(t, colorFailure, payload.Embeds[0].Color)
	assert.Equal(t, "2024-07-01T09:30:00Z", payload.Embeds[0].Timestamp)
}

func TestWebhookSignsBody(t *testing.T) {
	c := &capture{}
	srv := c.server(t)

	n := RebuildSummary("abc", builtAt, 1000, sampleReport())
	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), n))
	require.Len(t, c.bodies, 1)

	assert.Equal(t, Sign("s3cret", c.bodies[0]), c.headers[0].Get(SignatureHeader))
	assert.True(t, strings.HasPrefix(c.headers[0].Get(SignatureHeader), "sha256="))

	var got Notification
	require.NoError(t, json.Unmarshal(c.bodies[0], &got))
	assert.Equal(t, "abc", got.SnapshotID)
	assert.Len(t, got.FetchRequests, 7)
}

func TestManagerBroadcastJoinsErrors(t *testing.T) {
	ok := &capture{}
	bad := &capture{status: http.StatusInternalServerError}
	okSrv, badSrv := ok.server(t), bad.server(t)

	var mu sync.Mutex
	outcomes := map[string]error{}
	m := NewManager([]Notifier{NewWebhook(okSrv.URL, ""), NewSlack(badSrv.URL)}, func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[name] = err
	})
	assert.True(t, m.HasNotifiers())
	assert.Equal(t, []string{"webhook", "slack"}, m.Names())

	err := m.Broadcast(context.Background(), RebuildSummary("abc", builtAt, 1, resolve.Report{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: slack webhook status 500")
	assert.Len(t, ok.bodies, 1)
	assert.NoError(t, outcomes["webhook"])
	assert.Error(t, outcomes["slack"])

	assert.False(t, NewManager(nil, nil).HasNotifiers())
}
