package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/display"
	"github.com/terrorobe/cubscrape-sub001/pkg/query"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

const (
	currentFile = "CURRENT"
	lockFile    = ".lock"
	filePrefix  = "snapshot-"
	fileSuffix  = ".db"
)

// ErrLocked is returned when another writer holds the snapshot directory.
var ErrLocked = errors.New("snapshot directory is locked by another writer")

// WriteOptions controls how a snapshot is written.
type WriteOptions struct {
	Currency string
	// Keep is the number of snapshot files retained after a write,
	// the new one included. Older files are removed.
	Keep int
	// LockTimeout bounds the wait for the directory lock.
	LockTimeout time.Duration
	Now         func() time.Time
}

// Write persists a resolved catalog as a new snapshot file in dir and makes
// it current. Readers of earlier snapshots are not disturbed: every snapshot
// is its own file and CURRENT is replaced by rename.
func Write(ctx context.Context, dir string, res *resolve.Result, opts WriteOptions) (Meta, error) {
	if opts.Currency == "" {
		opts.Currency = resolve.DefaultCurrency
	}
	if opts.Keep <= 0 {
		opts.Keep = 3
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Meta{}, fmt.Errorf("create snapshot dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	lockCtx, cancel := context.WithTimeout(ctx, opts.LockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return Meta{}, fmt.Errorf("acquire snapshot lock: %w", err)
	}
	if !ok {
		return Meta{}, ErrLocked
	}
	defer lock.Unlock()

	meta := Meta{
		ID:       uuid.NewString(),
		BuiltAt:  opts.Now().UTC().Truncate(time.Second),
		Currency: opts.Currency,
		Report:   res.Report,
	}
	name := fmt.Sprintf("%s%s-%s%s", filePrefix, meta.BuiltAt.Format("20060102T150405Z"), meta.ID[:8], fileSuffix)
	final := filepath.Join(dir, name)
	tmp := final + ".tmp"

	if err := writeFile(ctx, tmp, res.Catalog, &meta); err != nil {
		os.Remove(tmp)
		return Meta{}, err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return Meta{}, fmt.Errorf("publish snapshot: %w", err)
	}
	if err := writeCurrent(dir, name); err != nil {
		return Meta{}, err
	}
	meta.Path = final
	if err := prune(dir, name, opts.Keep); err != nil {
		return meta, err
	}
	return meta, nil
}

func writeFile(ctx context.Context, path string, cat *resolve.Catalog, meta *Meta) error {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create snapshot schema: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	games, err := tx.PreparexContext(ctx, `
		INSERT INTO games (game_key, platform, name, hidden, hidden_reason, is_absorbed, absorbed_into,
			rating, review_count, price, price_display, is_free, tags, genres, channels, platforms,
			video_count, latest_video_date, release_date, release_sort, coming_soon, is_early_access,
			is_demo, has_demo, cross_platform, display_state, search_text, entity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare games insert: %w", err)
	}
	defer games.Close()

	videos, err := tx.PreparexContext(ctx, `
		INSERT INTO game_videos (game_key, video_id, title, channel_id, channel_name, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare videos insert: %w", err)
	}
	defer videos.Close()

	distinctVideos := make(map[string]bool)
	for _, e := range cat.Entities() {
		r, err := buildRow(cat, e, meta.Currency)
		if err != nil {
			return err
		}
		if !r.hidden {
			meta.Visible++
		}
		_, err = games.ExecContext(ctx,
			r.key, r.platform, r.name, b2i(r.hidden), r.hiddenReason, b2i(e.IsAbsorbed), string(e.AbsorbedInto),
			r.rating, r.reviewCount, r.price, r.priceDisplay, b2i(r.isFree), r.tags, r.genres, r.channels, r.platforms,
			r.videoCount, r.latest, r.releaseDate, r.releaseSort, b2i(r.comingSoon), b2i(r.earlyAccess),
			b2i(e.IsDemo()), b2i(e.LinkedDemo != ""), b2i(r.crossPlatform), string(r.state), r.searchText, r.entity)
		if err != nil {
			return fmt.Errorf("insert game %s: %w", e.Key, err)
		}
		for _, v := range e.Videos {
			distinctVideos[v.ID] = true
			_, err := videos.ExecContext(ctx, string(e.Key), v.ID, v.Title, v.ChannelID, v.ChannelName, query.FormatTime(v.PublishedAt))
			if err != nil {
				return fmt.Errorf("insert video %s of %s: %w", v.ID, e.Key, err)
			}
		}
	}
	meta.Entities = cat.Len()
	meta.Videos = len(distinctVideos)

	report, err := json.Marshal(meta.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, built_at, currency, entity_count, visible_count, video_count, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, meta.ID, query.FormatTime(meta.BuiltAt), meta.Currency, meta.Entities, meta.Visible, meta.Videos, string(report))
	if err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

type row struct {
	key           string
	platform      string
	name          string
	hidden        bool
	hiddenReason  string
	rating        any
	reviewCount   int
	price         any
	priceDisplay  string
	isFree        bool
	tags          string
	genres        string
	channels      string
	platforms     string
	videoCount    int
	latest        any
	releaseDate   string
	releaseSort   any
	comingSoon    bool
	earlyAccess   bool
	crossPlatform bool
	state         display.State
	searchText    string
	entity        string
}

// buildRow flattens an entity with its listing aggregate and display card
// into the columns the query composer filters and ranks on.
func buildRow(cat *resolve.Catalog, e *catalog.Entity, currency string) (row, error) {
	listing, _ := cat.Listing(e.Key)
	card := display.Resolve(e, cat.Lookup, display.WithCurrency(currency))

	r := row{
		key:           string(e.Key),
		platform:      string(e.Platform()),
		name:          e.Name(),
		hidden:        listing.Hidden,
		hiddenReason:  listing.HiddenReason,
		rating:        nullable(card.Rating),
		reviewCount:   card.ReviewCount,
		price:         nullable(card.PriceAmount),
		priceDisplay:  card.PriceDisplay,
		isFree:        card.PriceAmount != nil && *card.PriceAmount == 0,
		videoCount:    listing.VideoCount,
		releaseDate:   e.ReleaseDate(),
		crossPlatform: listing.CrossPlatform,
		state:         card.State,
	}
	if !listing.LatestVideoDate.IsZero() {
		r.latest = query.FormatTime(listing.LatestVideoDate)
	}
	if t, ok := catalog.ParseReleaseDate(r.releaseDate); ok {
		r.releaseSort = query.FormatTime(t)
	}
	switch rec := e.Record.(type) {
	case *catalog.SteamRecord:
		r.comingSoon = rec.ComingSoon
		r.earlyAccess = rec.IsEarlyAccess
	case *catalog.ItchRecord, *catalog.CrazyGamesRecord:
	default:
		panic(catalog.UnknownRecord(e.Record))
	}

	tags, genres := familyLabels(cat, e)
	var err error
	if r.tags, err = jsonArray(tags); err != nil {
		return r, err
	}
	if r.genres, err = jsonArray(genres); err != nil {
		return r, err
	}
	if r.channels, err = jsonArray(listing.Channels); err != nil {
		return r, err
	}
	if r.platforms, err = jsonArray(listing.Platforms); err != nil {
		return r, err
	}

	search := []string{strings.ToLower(e.Name()), resolve.NormalizeName(e.Name())}
	for _, d := range e.Record.Base().Developers {
		search = append(search, strings.ToLower(d))
	}
	r.searchText = strings.Join(search, " ")

	data, err := json.Marshal(e)
	if err != nil {
		return r, fmt.Errorf("encode entity %s: %w", e.Key, err)
	}
	r.entity = string(data)
	return r, nil
}

// familyLabels merges the entity's tags and genres with its linked demo's.
func familyLabels(cat *resolve.Catalog, e *catalog.Entity) ([]string, []string) {
	tags := append([]string(nil), e.Record.Base().Tags...)
	genres := append([]string(nil), e.Record.Base().Genres...)
	if demo, ok := cat.Lookup(e.LinkedDemo); ok && e.LinkedDemo != "" {
		tags = append(tags, demo.Record.Base().Tags...)
		genres = append(genres, demo.Record.Base().Genres...)
	}
	return dedupe(tags), dedupe(genres)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func jsonArray[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json array: %w", err)
	}
	return string(data), nil
}

func writeCurrent(dir, name string) error {
	tmp := filepath.Join(dir, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("write current pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, currentFile)); err != nil {
		return fmt.Errorf("publish current pointer: %w", err)
	}
	return nil
}

// prune removes all but the newest keep snapshot files. The current file is
// never removed.
func prune(dir, current string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list snapshot dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileSuffix) && n != current {
			names = append(names, n)
		}
	}
	// Names start with the build time, so lexical order is age order.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for i, n := range names {
		if i < keep-1 {
			continue
		}
		if err := os.Remove(filepath.Join(dir, n)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old snapshot %s: %w", n, err)
		}
	}
	return nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
