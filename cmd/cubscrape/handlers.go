package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/internal/config"
	"github.com/terrorobe/cubscrape-sub001/internal/logging"
	"github.com/terrorobe/cubscrape-sub001/internal/metrics"
	"github.com/terrorobe/cubscrape-sub001/internal/refresh"
	"github.com/terrorobe/cubscrape-sub001/internal/scheduler"
	"github.com/terrorobe/cubscrape-sub001/internal/snapshot"
	"github.com/terrorobe/cubscrape-sub001/internal/store"
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/notify"
	"github.com/terrorobe/cubscrape-sub001/pkg/query"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
	"github.com/terrorobe/cubscrape-sub001/pkg/server"
	"github.com/terrorobe/cubscrape-sub001/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func buildSources(cfg *config.Config, logger *zap.Logger) []source.Source {
	var sources []source.Source

	if yt := cfg.Sources.YouTube; yt.Enabled && len(yt.Channels) > 0 {
		sources = append(sources, source.NewYouTube(source.YouTubeOptions{
			FeedURL:  yt.FeedURL,
			Channels: yt.Channels,
			Timeout:  yt.ParseTimeout(),
			Filter:   source.NewFilter(yt.ExcludeKeywords),
			Logger:   logger,
		}))
	}
	if imp := cfg.Sources.Import; imp.Enabled && len(imp.Paths) > 0 {
		sources = append(sources, source.NewImport(imp.Paths))
	}

	return sources
}

func buildNotifier(cfg *config.Config, m *metrics.Metrics) *notify.Manager {
	var notifiers []notify.Notifier

	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.Slack.WebhookURL))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Notify.Discord.WebhookURL))
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret))
	}

	var observe notify.Observer
	if m != nil {
		observe = m.ObserveNotification
	}
	return notify.NewManager(notifiers, observe)
}

func snapshotOptions(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) snapshot.Options {
	opts := snapshot.Options{Logger: logger, CacheSize: cfg.Query.CacheSize}
	if m != nil {
		opts.Observer = m
	}
	return opts
}

func buildScheduler(cfg *config.Config, logger *zap.Logger, db store.Store, sources []source.Source, m *metrics.Metrics, holder *snapshot.Holder) *scheduler.Scheduler {
	resolver := resolve.New(resolve.Options{
		SimilarityThreshold: cfg.Resolve.SimilarityThreshold,
		ChannelWindow:       cfg.Resolve.ParseChannelWindow(),
		Currency:            cfg.Resolve.Currency,
	}, logger)

	return scheduler.New(scheduler.Options{
		Store:       db,
		Sources:     sources,
		Resolver:    resolver,
		Holder:      holder,
		Notifier:    buildNotifier(cfg, m),
		Metrics:     m,
		Logger:      logger,
		SnapshotDir: cfg.Snapshot.Dir,
		Write: snapshot.WriteOptions{
			Currency:    cfg.Resolve.Currency,
			Keep:        cfg.Snapshot.Keep,
			LockTimeout: cfg.Snapshot.ParseLockTimeout(),
		},
		Open:            snapshotOptions(cfg, logger, m),
		CollectInterval: cfg.Schedule.ParseCollectInterval(),
		RebuildInterval: cfg.Schedule.ParseRebuildInterval(),
	})
}

// openHolder loads the current snapshot, if one exists, into a holder.
func openHolder(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*snapshot.Holder, error) {
	snap, err := snapshot.OpenCurrent(cfg.Snapshot.Dir, snapshotOptions(cfg, logger, m))
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		logger.Warn("no snapshot yet; run a rebuild first", zap.String("dir", cfg.Snapshot.Dir))
		return snapshot.NewHolder(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	if m != nil {
		m.SetSnapshot(snap.Meta().Entities, snap.Meta().Visible)
	}
	return snapshot.NewHolder(snap), nil
}

func closeHolder(h *snapshot.Holder) {
	if snap := h.Swap(nil); snap != nil {
		_ = snap.Close()
	}
}

// openCurrent opens the current snapshot for a one-shot read command.
func openCurrent(cfg *config.Config, logger *zap.Logger) (*snapshot.Snapshot, error) {
	snap, err := snapshot.OpenCurrent(cfg.Snapshot.Dir, snapshotOptions(cfg, logger, nil))
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, fmt.Errorf("%w (try: cubscrape resolve)", err)
	}
	return snap, err
}

func runCollect(ctx context.Context, only []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sources := buildSources(cfg, logger)
	if len(only) > 0 {
		wanted := make(map[string]bool)
		for _, s := range only {
			wanted[strings.ToLower(strings.TrimSpace(s))] = true
		}
		var picked []source.Source
		for _, s := range sources {
			if wanted[string(s.Name())] {
				picked = append(picked, s)
			}
		}
		if len(picked) == 0 {
			return fmt.Errorf("no enabled sources match: %s", strings.Join(only, ", "))
		}
		sources = picked
	}
	if len(sources) == 0 {
		return errors.New("no sources enabled; configure youtube channels or import paths")
	}

	sched := scheduler.New(scheduler.Options{Store: db, Sources: sources, Logger: logger})
	stored := sched.CollectAll(ctx)

	total := 0
	for _, src := range sources {
		n := stored[src.Name()]
		total += n
		fmt.Fprintf(os.Stderr, "%-8s %s records\n", src.Name(), humanize.Comma(int64(n)))
	}
	fmt.Fprintf(os.Stderr, "\ntotal: %s records from %d sources\n", humanize.Comma(int64(total)), len(sources))
	return nil
}

func runImport(ctx context.Context, paths []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	batch, err := source.NewImport(paths).Collect(ctx)
	if err != nil {
		return err
	}
	games, err := db.UpsertGames(ctx, batch.Games)
	if err != nil {
		return fmt.Errorf("store games: %w", err)
	}
	videos, err := db.UpsertVideos(ctx, batch.Videos)
	if err != nil {
		return fmt.Errorf("store videos: %w", err)
	}

	fmt.Fprintf(os.Stderr, "imported %s games and %s videos (%s skipped)\n",
		humanize.Comma(int64(games)), humanize.Comma(int64(videos)),
		humanize.Comma(int64(batch.Len()-games-videos)))
	return nil
}

func runResolve(ctx context.Context, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	holder := snapshot.NewHolder(nil)
	defer closeHolder(holder)

	sched := buildScheduler(cfg, logger, db, nil, nil, holder)
	meta, err := sched.Rebuild(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, meta)
	}
	fmt.Fprintln(os.Stdout, renderReport(meta))
	return nil
}

// queryFlags mirrors the browse page parameters on the command line.
type queryFlags struct {
	Platform        string
	Rating          int
	Tags            []string
	TagLogic        string
	Channels        []string
	ChannelLogic    string
	PriceMin        string
	PriceMax        string
	TimeRange       string
	Search          string
	HiddenGems      bool
	CrossPlatform   bool
	IncludeAbsorbed bool
	Sort            string
	Order           string
	Limit           int
	Offset          int
}

func (f queryFlags) values() url.Values {
	v := url.Values{}
	set := func(name, value string) {
		if value != "" {
			v.Set(name, value)
		}
	}
	flag := func(name string, on bool) {
		if on {
			v.Set(name, "true")
		}
	}
	set("platform", f.Platform)
	if f.Rating > 0 {
		v.Set("rating", strconv.Itoa(f.Rating))
	}
	set("selectedTags", strings.Join(f.Tags, ","))
	set("tagLogic", f.TagLogic)
	set("channels", strings.Join(f.Channels, ","))
	set("channelLogic", f.ChannelLogic)
	set("priceMin", f.PriceMin)
	set("priceMax", f.PriceMax)
	set("timeRange", f.TimeRange)
	set("search", f.Search)
	flag("hiddenGems", f.HiddenGems)
	flag("crossPlatform", f.CrossPlatform)
	flag("includeAbsorbed", f.IncludeAbsorbed)
	set("sort", f.Sort)
	set("order", f.Order)
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

func (f queryFlags) request() query.Request {
	return query.ParseParams(f.values())
}

func runQuery(ctx context.Context, req query.Request, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	snap, err := openCurrent(cfg, logger)
	if err != nil {
		return err
	}
	defer snap.Close()

	page, err := snap.Query(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, page)
	}
	if page.Total == 0 {
		fmt.Println("no games match (try collecting and resolving first: cubscrape collect && cubscrape resolve)")
		return nil
	}
	fmt.Fprintln(os.Stdout, renderGames(page, snap.Meta().Currency, time.Now()))
	fmt.Fprintf(os.Stderr, "showing %d-%d of %s\n", req.Offset+1, req.Offset+len(page.Items), humanize.Comma(int64(page.Total)))
	return nil
}

func runShow(ctx context.Context, rawKey string, jsonOutput bool) error {
	key := catalog.Key(rawKey)
	if !key.Valid() {
		return fmt.Errorf("invalid game key %q (want platform:id, e.g. steam:620)", rawKey)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	snap, err := openCurrent(cfg, logger)
	if err != nil {
		return err
	}
	defer snap.Close()

	e, err := snap.Entity(ctx, key)
	if err != nil {
		return err
	}
	card, err := snap.Display(ctx, e)
	if err != nil {
		return err
	}
	videos, err := snap.VideosFor(ctx, key)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, map[string]any{"entity": e, "card": card, "videos": videos})
	}
	fmt.Fprintln(os.Stdout, renderCard(e, card))
	if len(videos) > 0 {
		fmt.Fprintln(os.Stdout, renderVideos(videos, time.Now()))
	}
	return nil
}

func runStale(ctx context.Context, limit int, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	games, err := db.ListGames(ctx, store.GameListOpts{Platform: catalog.PlatformSteam})
	if err != nil {
		return err
	}
	due := refresh.DefaultPolicy().Stale(games, time.Now())
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	if jsonOutput {
		return writeJSON(os.Stdout, due)
	}
	if len(due) == 0 {
		fmt.Println("nothing is due for a refresh")
		return nil
	}
	fmt.Fprintln(os.Stdout, renderStale(due))
	return nil
}

func runRequests(ctx context.Context, all, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	reqs, err := db.ListFetchRequests(ctx, store.FetchListOpts{PendingOnly: !all})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, reqs)
	}
	if len(reqs) == 0 {
		fmt.Println("no fetch requests")
		return nil
	}
	fmt.Fprintln(os.Stdout, renderRequests(reqs, time.Now()))
	return nil
}

func runServe(ctx context.Context, port int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	holder, err := openHolder(cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeHolder(holder)

	sched := buildScheduler(cfg, logger, db, nil, m, holder)
	srv := server.New(server.Options{
		Holder:    holder,
		Store:     db,
		Rebuilder: sched,
		Metrics:   m,
		Logger:    logger,
		Port:      port,
	})
	return serveUntilSignal(ctx, srv, logger)
}

func runDaemon(ctx context.Context, port int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	holder, err := openHolder(cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeHolder(holder)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := buildScheduler(cfg, logger, db, buildSources(cfg, logger), m, holder)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	srv := server.New(server.Options{
		Holder:    holder,
		Store:     db,
		Rebuilder: sched,
		Metrics:   m,
		Logger:    logger,
		Port:      port,
	})
	return serveUntilSignal(ctx, srv, logger)
}

// serveUntilSignal runs srv until ctx ends or an interrupt arrives.
func serveUntilSignal(ctx context.Context, srv *server.Server, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
