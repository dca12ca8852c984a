package resolve

import (
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Default resolver settings.
const (
	DefaultSimilarityThreshold = 0.85
	DefaultChannelWindow       = 180 * 24 * time.Hour
	DefaultCurrency            = "USD"
)

// Options tunes a rebuild.
type Options struct {
	// SimilarityThreshold gates same-channel absorption.
	SimilarityThreshold float64
	// ChannelWindow bounds how far apart two same-channel videos may be.
	ChannelWindow time.Duration
	// Currency is the preferred price currency for listings.
	Currency string
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		ChannelWindow:       DefaultChannelWindow,
		Currency:            DefaultCurrency,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold > 1 {
		o.SimilarityThreshold = d.SimilarityThreshold
	}
	if o.ChannelWindow <= 0 {
		o.ChannelWindow = d.ChannelWindow
	}
	if o.Currency == "" {
		o.Currency = d.Currency
	}
	return o
}

// Input is the full raw record set of one rebuild.
type Input struct {
	Games  []catalog.RawGame
	Videos []catalog.RawVideo
}

// Result is a successful rebuild.
type Result struct {
	Catalog *Catalog
	Report  Report
}

// Resolver runs the resolution pass. It holds no state between builds.
type Resolver struct {
	opts       Options
	logger     *zap.Logger
	normalizer *Normalizer
}

// New creates a Resolver. A nil logger discards logs.
func New(opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		opts:       opts.withDefaults(),
		logger:     logger,
		normalizer: NewNormalizer(),
	}
}

// Options returns the effective settings.
func (r *Resolver) Options() Options { return r.opts }

// Normalized is the validated, de-duplicated input.
type Normalized struct {
	Records    []catalog.Record
	Videos     []catalog.RawVideo
	Rejections []Rejection
}

// Normalize validates raw records and videos. Bad records are rejected and
// reported; they never fail the batch.
func (r *Resolver) Normalize(games []catalog.RawGame, videos []catalog.RawVideo) Normalized {
	var out Normalized
	reject := func(kind RejectionKind, err error) {
		var m *MalformedError
		rej := Rejection{Kind: kind, Reason: err.Error()}
		if errors.As(err, &m) {
			rej.Subject, rej.Reason = m.Subject, m.Reason
		}
		if kind == RejectDuplicate {
			r.logger.Debug("dropping duplicate record", zap.String("subject", rej.Subject), zap.String("reason", rej.Reason))
		} else {
			r.logger.Warn("rejecting malformed record", zap.String("subject", rej.Subject), zap.String("reason", rej.Reason))
		}
		out.Rejections = append(out.Rejections, rej)
	}

	index := make(map[catalog.Key]int)
	for _, raw := range games {
		rec, err := r.normalizer.Game(raw)
		if err != nil {
			reject(RejectMalformed, err)
			continue
		}
		key := rec.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out.Records)
			out.Records = append(out.Records, rec)
			continue
		}
		kept := out.Records[i]
		if rec.Base().LastFetched.After(kept.Base().LastFetched) {
			out.Records[i] = rec
			reject(RejectDuplicate, malformed(key.String(), "replaced by a more recent fetch"))
			continue
		}
		reject(RejectDuplicate, malformed(key.String(), "older or equal fetch of a known record"))
	}

	seenVideo := make(map[string]bool)
	for _, raw := range videos {
		v, warnings, err := r.normalizer.Video(raw)
		if err != nil {
			reject(RejectMalformed, err)
			continue
		}
		for _, w := range warnings {
			r.logger.Warn("dropping video link", zap.String("video", v.VideoID), zap.String("reason", w))
		}
		if seenVideo[v.VideoID] {
			reject(RejectDuplicate, malformed("video:"+v.VideoID, "video id seen before"))
			continue
		}
		seenVideo[v.VideoID] = true
		out.Videos = append(out.Videos, v)
	}
	return out
}

// Build runs the full pass: normalize, link demos, group videos, absorb
// cross-platform duplicates. Only a structurally empty input fails.
func (r *Resolver) Build(in Input) (*Result, error) {
	if len(in.Games) == 0 {
		return nil, ErrEmptyInput
	}
	norm := r.Normalize(in.Games, in.Videos)
	if len(norm.Records) == 0 {
		return nil, ErrNoValidRecords
	}

	report := Report{
		GameRecords:  len(in.Games),
		VideoRecords: len(in.Videos),
		Rejections:   norm.Rejections,
	}
	fetch := newFetchQueue()

	apps := make(map[string]*catalog.SteamRecord)
	for _, rec := range norm.Records {
		if s, ok := rec.(*catalog.SteamRecord); ok {
			apps[s.AppID] = s
		}
	}
	rel, conflicts := resolveRelations(apps, fetch, r.logger)
	report.Conflicts = append(report.Conflicts, conflicts...)

	entities := make(map[catalog.Key]*catalog.Entity, len(norm.Records))
	for _, rec := range norm.Records {
		e := &catalog.Entity{Key: rec.Key(), Record: rec}
		switch s := rec.(type) {
		case *catalog.SteamRecord:
			if full, ok := rel.fullOf[s.AppID]; ok {
				e.LinkedFullGame = catalog.SteamKey(full)
			}
			if demo, ok := rel.demoOf[s.AppID]; ok {
				e.LinkedDemo = catalog.SteamKey(demo)
			}
		case *catalog.ItchRecord, *catalog.CrazyGamesRecord:
		default:
			panic(catalog.UnknownRecord(rec))
		}
		entities[e.Key] = e
	}

	groupVideos(entities, norm.Videos, fetch)

	abs := &absorber{
		threshold: r.opts.SimilarityThreshold,
		window:    r.opts.ChannelWindow,
		logger:    r.logger,
	}
	res := abs.consolidate(entities, norm.Videos)
	report.Absorptions = res.absorptions
	report.Ambiguous = res.ambiguous
	report.Conflicts = append(report.Conflicts, res.conflicts...)

	report.FetchRequests = fetch.list()
	for _, req := range report.FetchRequests {
		r.logger.Info("requesting fetch of missing record",
			zap.String("key", req.Key.String()),
			zap.String("reason", req.Reason),
			zap.Strings("requested_by", req.RequestedBy))
	}

	list := make([]*catalog.Entity, 0, len(entities))
	for _, e := range entities {
		list = append(list, e)
	}
	cat := NewCatalog(list)
	report.Entities = cat.Len()

	r.logger.Info("rebuild complete",
		zap.Int("game_records", report.GameRecords),
		zap.Int("video_records", report.VideoRecords),
		zap.Int("entities", report.Entities),
		zap.Int("rejections", len(report.Rejections)),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int("absorptions", len(report.Absorptions)),
		zap.Int("fetch_requests", len(report.FetchRequests)))

	return &Result{Catalog: cat, Report: report}, nil
}

// groupVideos attaches every video to each entity it links. Keys without a
// record become fetch requests.
func groupVideos(entities map[catalog.Key]*catalog.Entity, videos []catalog.RawVideo, fetch *fetchQueue) {
	for _, v := range videos {
		ref := catalog.Video{
			ID:          v.VideoID,
			Title:       v.Title,
			ChannelID:   v.ChannelID,
			ChannelName: v.ChannelName,
			PublishedAt: v.PublishedAt,
		}
		for _, k := range v.Keys() {
			e, ok := entities[k]
			if !ok {
				fetch.add(k, "referenced by videos", v.VideoID)
				continue
			}
			e.Videos = append(e.Videos, ref)
		}
	}
	for _, e := range entities {
		sort.Slice(e.Videos, func(i, j int) bool {
			a, b := e.Videos[i], e.Videos[j]
			if !a.PublishedAt.Equal(b.PublishedAt) {
				return a.PublishedAt.After(b.PublishedAt)
			}
			return a.ID < b.ID
		})
		if len(e.Videos) > 0 {
			e.LatestVideoDate = e.Videos[0].PublishedAt
		}
	}
}
