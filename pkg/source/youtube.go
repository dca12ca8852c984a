package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// DefaultFeedURL is YouTube's per-channel Atom feed endpoint.
const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// YouTube collects videos from channel Atom feeds and extracts the store
// links in their descriptions.
type YouTube struct {
	client   *http.Client
	parser   *gofeed.Parser
	feedURL  string
	channels []string
	filter   *Filter
	logger   *zap.Logger
}

// YouTubeOptions configures the collector.
type YouTubeOptions struct {
	FeedURL  string
	Channels []string
	Timeout  time.Duration
	Filter   *Filter
	Logger   *zap.Logger
}

// NewYouTube creates a new YouTube collector.
func NewYouTube(opts YouTubeOptions) *YouTube {
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Filter == nil {
		opts.Filter = NewFilter(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &YouTube{
		client:   &http.Client{Timeout: opts.Timeout},
		parser:   gofeed.NewParser(),
		feedURL:  opts.FeedURL,
		channels: opts.Channels,
		filter:   opts.Filter,
		logger:   opts.Logger,
	}
}

func (y *YouTube) Name() SourceType { return SourceYouTube }

// Collect reads every configured channel. A failing channel is logged and
// skipped; the error is returned only when every channel failed.
func (y *YouTube) Collect(ctx context.Context) (Batch, error) {
	var batch Batch
	var failed int
	var lastErr error

	for _, channel := range y.channels {
		videos, err := y.collectChannel(ctx, channel)
		if err != nil {
			y.logger.Warn("youtube channel failed", zap.String("channel", channel), zap.Error(err))
			failed++
			lastErr = err
			continue
		}
		batch.Videos = append(batch.Videos, videos...)
	}

	if failed > 0 && failed == len(y.channels) {
		return batch, fmt.Errorf("youtube: all %d channels failed: %w", failed, lastErr)
	}
	return batch, nil
}

func (y *YouTube) collectChannel(ctx context.Context, channel string) ([]catalog.RawVideo, error) {
	u, err := url.Parse(y.feedURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("channel_id", channel)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", channel, err)
	}
	req.Header.Set("User-Agent", "cubscrape/1.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", channel, resp.StatusCode)
	}

	parsed, err := y.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channel, err)
	}

	channelName := parsed.Title
	if parsed.Author != nil && parsed.Author.Name != "" {
		channelName = parsed.Author.Name
	}

	var videos []catalog.RawVideo
	for _, entry := range parsed.Items {
		id := extValue(entry.Extensions, "yt", "videoId")
		if id == "" {
			id = strings.TrimPrefix(entry.GUID, "yt:video:")
		}
		if id == "" {
			continue
		}
		var published time.Time
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		v := catalog.RawVideo{
			VideoID:     id,
			Title:       entry.Title,
			PublishedAt: published,
			ChannelID:   channel,
			ChannelName: channelName,
			Links:       ExtractLinks(description(entry)),
		}
		if !y.filter.Keep(v) {
			y.logger.Debug("skipping video", zap.String("video", id), zap.String("title", v.Title))
			continue
		}
		videos = append(videos, v)
	}
	return videos, nil
}

// description returns the entry's media description, which is where YouTube
// puts the text uploaders write.
func description(entry *gofeed.Item) string {
	if groups := entry.Extensions["media"]["group"]; len(groups) > 0 {
		if d := groups[0].Children["description"]; len(d) > 0 && d[0].Value != "" {
			return d[0].Value
		}
	}
	if entry.Description != "" {
		return entry.Description
	}
	return entry.Content
}

func extValue(exts ext.Extensions, ns, name string) string {
	if vals := exts[ns][name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}
