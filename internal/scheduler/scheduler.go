package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/internal/metrics"
	"github.com/terrorobe/cubscrape-sub001/internal/snapshot"
	"github.com/terrorobe/cubscrape-sub001/internal/store"
	"github.com/terrorobe/cubscrape-sub001/pkg/notify"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
	"github.com/terrorobe/cubscrape-sub001/pkg/source"
)

// Options wires a Scheduler.
type Options struct {
	Store    store.Store
	Sources  []source.Source
	Resolver *resolve.Resolver
	Holder   *snapshot.Holder
	Notifier *notify.Manager
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	SnapshotDir string
	Write       snapshot.WriteOptions
	Open        snapshot.Options

	CollectInterval time.Duration
	RebuildInterval time.Duration
	// RetireAfter is how long a replaced snapshot stays open for readers
	// that loaded it before the swap.
	RetireAfter time.Duration
}

// Scheduler runs periodic collection and rebuilds.
type Scheduler struct {
	opts   Options
	logger *zap.Logger

	// mu serializes rebuilds within the process; the snapshot lock covers
	// other processes.
	mu sync.Mutex
}

// New creates a new scheduler.
func New(opts Options) *Scheduler {
	if opts.CollectInterval == 0 {
		opts.CollectInterval = time.Hour
	}
	if opts.RebuildInterval == 0 {
		opts.RebuildInterval = 6 * time.Hour
	}
	if opts.RetireAfter == 0 {
		opts.RetireAfter = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewManager(nil, nil)
	}
	if opts.Holder == nil {
		opts.Holder = snapshot.NewHolder(nil)
	}
	return &Scheduler{opts: opts, logger: opts.Logger.Named("scheduler")}
}

// Holder returns the holder rebuilt snapshots are published to.
func (s *Scheduler) Holder() *snapshot.Holder { return s.opts.Holder }

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.opts.CollectInterval)
	rebuildTicker := time.NewTicker(s.opts.RebuildInterval)
	defer collectTicker.Stop()
	defer rebuildTicker.Stop()

	// Run immediately on start.
	s.CollectAll(ctx)
	if _, err := s.Rebuild(ctx); err != nil {
		s.logger.Error("initial rebuild failed", zap.Error(err))
	}

	s.logger.Info("scheduler running",
		zap.Duration("collect_every", s.opts.CollectInterval),
		zap.Duration("rebuild_every", s.opts.RebuildInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-collectTicker.C:
			s.CollectAll(ctx)
		case <-rebuildTicker.C:
			if _, err := s.Rebuild(ctx); err != nil {
				s.logger.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

// CollectAll runs every source and stores what it produced. A failing
// source is logged and skipped.
func (s *Scheduler) CollectAll(ctx context.Context) map[source.SourceType]int {
	stored := make(map[source.SourceType]int)
	total := 0
	for _, src := range s.opts.Sources {
		batch, err := src.Collect(ctx)
		if err != nil {
			s.logger.Warn("collect failed", zap.String("source", string(src.Name())), zap.Error(err))
			if batch.Len() == 0 {
				continue
			}
		}

		games, err := s.opts.Store.UpsertGames(ctx, batch.Games)
		if err != nil {
			s.logger.Warn("store games failed", zap.String("source", string(src.Name())), zap.Error(err))
			continue
		}
		videos, err := s.opts.Store.UpsertVideos(ctx, batch.Videos)
		if err != nil {
			s.logger.Warn("store videos failed", zap.String("source", string(src.Name())), zap.Error(err))
			continue
		}

		n := games + videos
		stored[src.Name()] += n
		total += n
		if s.opts.Metrics != nil {
			s.opts.Metrics.CollectedTotal.WithLabelValues(string(src.Name())).Add(float64(n))
		}
		s.logger.Info("collected",
			zap.String("source", string(src.Name())),
			zap.Int("games", games),
			zap.Int("videos", videos))
	}
	s.logger.Info("collection finished", zap.Int("records", total))
	return stored
}

// Rebuild resolves the stored records into a new snapshot, publishes it and
// announces the result. The previous snapshot is closed after RetireAfter.
func (s *Scheduler) Rebuild(ctx context.Context) (snapshot.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	meta, err := s.rebuild(ctx)
	if err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.RebuildFailed()
		}
		s.broadcast(ctx, notify.RebuildFailure(s.now(), err))
		return snapshot.Meta{}, err
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveRebuild(meta.Report, time.Since(start))
		s.opts.Metrics.SetSnapshot(meta.Entities, meta.Visible)
	}
	s.broadcast(ctx, notify.RebuildSummary(meta.ID, meta.BuiltAt, meta.Visible, meta.Report))
	return meta, nil
}

func (s *Scheduler) rebuild(ctx context.Context) (snapshot.Meta, error) {
	in, err := s.opts.Store.LoadInput(ctx)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("load input: %w", err)
	}
	res, err := s.opts.Resolver.Build(in)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("resolve: %w", err)
	}

	meta, err := snapshot.Write(ctx, s.opts.SnapshotDir, res, s.opts.Write)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("write snapshot: %w", err)
	}

	if err := s.opts.Store.EnqueueFetchRequests(ctx, res.Report.FetchRequests); err != nil {
		s.logger.Warn("persist fetch requests failed", zap.Error(err))
	}

	snap, err := snapshot.Open(meta.Path, s.opts.Open)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("open snapshot: %w", err)
	}
	if prev := s.opts.Holder.Swap(snap); prev != nil {
		time.AfterFunc(s.opts.RetireAfter, func() {
			if err := prev.Close(); err != nil {
				s.logger.Warn("close retired snapshot", zap.String("snapshot", prev.Meta().ID), zap.Error(err))
			}
		})
	}

	s.logger.Info("snapshot published",
		zap.String("snapshot", meta.ID),
		zap.Int("entities", meta.Entities),
		zap.Int("visible", meta.Visible),
		zap.Int("fetch_requests", len(meta.Report.FetchRequests)))
	return snap.Meta(), nil
}

func (s *Scheduler) broadcast(ctx context.Context, n *notify.Notification) {
	if !s.opts.Notifier.HasNotifiers() {
		return
	}
	if err := s.opts.Notifier.Broadcast(ctx, n); err != nil {
		s.logger.Warn("notification failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (s *Scheduler) now() time.Time {
	if s.opts.Write.Now != nil {
		return s.opts.Write.Now()
	}
	return time.Now()
}
