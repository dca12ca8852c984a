// Package snapshot persists resolved catalogs as immutable SQLite files and
// serves the read-only query contract over them.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/display"
	"github.com/terrorobe/cubscrape-sub001/pkg/query"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

// ErrNotFound is returned for keys the snapshot does not contain.
var ErrNotFound = errors.New("game not found in snapshot")

// ErrNoSnapshot is returned when a directory has no current snapshot.
var ErrNoSnapshot = errors.New("no snapshot has been written yet")

// Meta describes one snapshot.
type Meta struct {
	ID       string         `json:"id"`
	Path     string         `json:"path"`
	BuiltAt  time.Time      `json:"built_at"`
	Currency string         `json:"currency"`
	Entities int            `json:"entities"`
	Visible  int            `json:"visible"`
	Videos   int            `json:"videos"`
	Report   resolve.Report `json:"report"`
}

// QueryObserver receives query timings.
type QueryObserver interface {
	ObserveQuery(d time.Duration, cached bool)
}

// Options controls how a snapshot is opened.
type Options struct {
	Logger    *zap.Logger
	Observer  QueryObserver
	CacheSize int
	// Now is the clock for time-relative filters and presets.
	Now func() time.Time
}

// Item is one query result: the entity and its listing aggregate.
type Item struct {
	Entity          *catalog.Entity    `json:"entity"`
	VideoCount      int                `json:"video_count"`
	Channels        []string           `json:"channels"`
	Platforms       []catalog.Platform `json:"platforms"`
	LatestVideoDate *time.Time         `json:"latest_video_date,omitempty"`
	DisplayState    display.State      `json:"display_state"`
}

// Page is a window of query results.
type Page struct {
	Total int    `json:"total"`
	Items []Item `json:"items"`
}

// Snapshot is an open, immutable snapshot file. It is safe for concurrent use.
type Snapshot struct {
	db     *sqlx.DB
	meta   Meta
	cache  *lru.Cache[string, cachedPage]
	logger *zap.Logger
	obs    QueryObserver
	now    func() time.Time
}

// OpenCurrent opens the snapshot CURRENT points at in dir.
func OpenCurrent(dir string, opts Options) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read current pointer: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid current pointer %q", name)
	}
	return Open(filepath.Join(dir, name), opts)
}

// Open opens a snapshot file read-only.
func Open(path string, opts Options) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[string, cachedPage](opts.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	s := &Snapshot{db: db, cache: cache, logger: opts.Logger, obs: opts.Observer, now: opts.Now}
	if err := s.loadMeta(path); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) loadMeta(path string) error {
	var m struct {
		ID       string `db:"id"`
		BuiltAt  string `db:"built_at"`
		Currency string `db:"currency"`
		Entities int    `db:"entity_count"`
		Visible  int    `db:"visible_count"`
		Videos   int    `db:"video_count"`
		Report   string `db:"report"`
	}
	if err := s.db.Get(&m, "SELECT * FROM snapshot_meta LIMIT 1"); err != nil {
		return fmt.Errorf("read snapshot meta: %w", err)
	}
	builtAt, err := time.Parse(time.RFC3339, m.BuiltAt)
	if err != nil {
		return fmt.Errorf("parse snapshot build time: %w", err)
	}
	s.meta = Meta{
		ID:       m.ID,
		Path:     path,
		BuiltAt:  builtAt,
		Currency: m.Currency,
		Entities: m.Entities,
		Visible:  m.Visible,
		Videos:   m.Videos,
	}
	if err := json.Unmarshal([]byte(m.Report), &s.meta.Report); err != nil {
		return fmt.Errorf("decode snapshot report: %w", err)
	}
	return nil
}

// Meta describes the snapshot.
func (s *Snapshot) Meta() Meta { return s.meta }

// Close releases the database handle.
func (s *Snapshot) Close() error { return s.db.Close() }

type itemRow struct {
	Key          string         `db:"game_key"`
	Entity       string         `db:"entity"`
	VideoCount   int            `db:"video_count"`
	Channels     string         `db:"channels"`
	Platforms    string         `db:"platforms"`
	Latest       sql.NullString `db:"latest_video_date"`
	DisplayState string         `db:"display_state"`
}

var itemColumns = []string{"game_key", "entity", "video_count", "channels", "platforms", "latest_video_date", "display_state"}

// cachedPage holds undecoded rows so every caller decodes its own entities.
type cachedPage struct {
	total int
	rows  []itemRow
}

// Query runs a composed query. Results are cached per snapshot; each call
// returns freshly decoded items that the caller may modify.
func (s *Snapshot) Query(ctx context.Context, req query.Request) (Page, error) {
	start := time.Now()
	now := s.now()
	stmt, args := query.Compose(req, now, itemColumns...)
	countStmt, countArgs := query.ComposeCount(req.Filter, now)

	cacheKey := fmt.Sprintf("%s|%v|%d|%d", stmt, args, req.Limit, req.Offset)
	if cp, ok := s.cache.Get(cacheKey); ok {
		page, err := cp.decode()
		if err != nil {
			return Page{}, err
		}
		s.observe(time.Since(start), true)
		return page, nil
	}

	var cp cachedPage
	if err := s.db.SelectContext(ctx, &cp.rows, stmt, args...); err != nil {
		return Page{}, fmt.Errorf("query games: %w", err)
	}
	if err := s.db.GetContext(ctx, &cp.total, countStmt, countArgs...); err != nil {
		return Page{}, fmt.Errorf("count games: %w", err)
	}

	page, err := cp.decode()
	if err != nil {
		return Page{}, err
	}
	s.cache.Add(cacheKey, cp)
	s.observe(time.Since(start), false)
	s.logger.Debug("query executed",
		zap.String("sort", req.Sort.Key),
		zap.Int("results", len(page.Items)),
		zap.Int("total", cp.total),
		zap.Duration("took", time.Since(start)))
	return page, nil
}

func (cp cachedPage) decode() (Page, error) {
	page := Page{Total: cp.total, Items: make([]Item, 0, len(cp.rows))}
	for _, r := range cp.rows {
		item, err := r.item()
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (r itemRow) item() (Item, error) {
	var e catalog.Entity
	if err := json.Unmarshal([]byte(r.Entity), &e); err != nil {
		return Item{}, fmt.Errorf("decode entity %s: %w", r.Key, err)
	}
	item := Item{Entity: &e, VideoCount: r.VideoCount, DisplayState: display.State(r.DisplayState)}
	if err := json.Unmarshal([]byte(r.Channels), &item.Channels); err != nil {
		return Item{}, fmt.Errorf("decode channels of %s: %w", r.Key, err)
	}
	if err := json.Unmarshal([]byte(r.Platforms), &item.Platforms); err != nil {
		return Item{}, fmt.Errorf("decode platforms of %s: %w", r.Key, err)
	}
	if r.Latest.Valid {
		if t, err := time.Parse(time.RFC3339, r.Latest.String); err == nil {
			item.LatestVideoDate = &t
		}
	}
	return item, nil
}

func (s *Snapshot) observe(d time.Duration, cached bool) {
	if s.obs != nil {
		s.obs.ObserveQuery(d, cached)
	}
}

// Entity loads one entity by key.
func (s *Snapshot) Entity(ctx context.Context, key catalog.Key) (*catalog.Entity, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT entity FROM games WHERE game_key = ?", string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", key, err)
	}
	var e catalog.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", key, err)
	}
	return &e, nil
}

type videoRow struct {
	VideoID     string `db:"video_id"`
	Title       string `db:"title"`
	ChannelID   string `db:"channel_id"`
	ChannelName string `db:"channel_name"`
	PublishedAt string `db:"published_at"`
}

// VideosFor returns the videos referencing key, newest first.
func (s *Snapshot) VideosFor(ctx context.Context, key catalog.Key) ([]catalog.Video, error) {
	var rows []videoRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT video_id, title, channel_id, channel_name, published_at
		FROM game_videos WHERE game_key = ?
		ORDER BY published_at DESC, video_id ASC
	`, string(key))
	if err != nil {
		return nil, fmt.Errorf("list videos of %s: %w", key, err)
	}
	if len(rows) == 0 {
		if _, err := s.Entity(ctx, key); err != nil {
			return nil, err
		}
	}
	out := make([]catalog.Video, 0, len(rows))
	for _, r := range rows {
		published, err := time.Parse(time.RFC3339, r.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("parse publish time of %s: %w", r.VideoID, err)
		}
		out = append(out, catalog.Video{
			ID:          r.VideoID,
			Title:       r.Title,
			ChannelID:   r.ChannelID,
			ChannelName: r.ChannelName,
			PublishedAt: published,
		})
	}
	return out, nil
}

// Display builds the card of e, loading its counterparts from the snapshot.
func (s *Snapshot) Display(ctx context.Context, e *catalog.Entity) (display.Card, error) {
	var lookupErr error
	lookup := func(k catalog.Key) (*catalog.Entity, bool) {
		other, err := s.Entity(ctx, k)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				lookupErr = err
			}
			return nil, false
		}
		return other, true
	}
	card := display.Resolve(e, lookup, display.WithCurrency(s.meta.Currency))
	if lookupErr != nil {
		return display.Card{}, lookupErr
	}
	return card, nil
}

// FetchRequests returns the fetch requests the rebuild emitted.
func (s *Snapshot) FetchRequests() []resolve.FetchRequest {
	return s.meta.Report.FetchRequests
}
