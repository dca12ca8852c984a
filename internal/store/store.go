// Package store keeps the raw records the collectors produced and the queue
// of fetch requests the resolver emitted. It is the input side of a rebuild.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

// ErrNotFound is returned when a stored record does not exist.
var ErrNotFound = errors.New("record not found")

// FetchRequest is a persisted fetch request.
type FetchRequest struct {
	Key            catalog.Key `db:"game_key" json:"key"`
	Reason         string      `db:"reason" json:"reason"`
	RequestedJSON  string      `db:"requested_by" json:"-"`
	RequestedBy    []string    `db:"-" json:"requested_by"`
	Times          int         `db:"times" json:"times"`
	FirstRequested time.Time   `db:"first_requested" json:"first_requested"`
	LastRequested  time.Time   `db:"last_requested" json:"last_requested"`
	FetchedAt      *time.Time  `db:"fetched_at" json:"fetched_at,omitempty"`
}

// GameListOpts controls raw game listing.
type GameListOpts struct {
	Platform catalog.Platform
	Since    time.Time
	Limit    int
}

// VideoListOpts controls raw video listing.
type VideoListOpts struct {
	ChannelID string
	Since     time.Time
	Limit     int
}

// FetchListOpts controls fetch request listing.
type FetchListOpts struct {
	PendingOnly bool
	Limit       int
}

// Store is the persistence interface.
type Store interface {
	UpsertGames(ctx context.Context, games []catalog.RawGame) (int, error)
	UpsertVideos(ctx context.Context, videos []catalog.RawVideo) (int, error)
	GetGame(ctx context.Context, key catalog.Key) (*catalog.RawGame, error)
	ListGames(ctx context.Context, opts GameListOpts) ([]catalog.RawGame, error)
	ListVideos(ctx context.Context, opts VideoListOpts) ([]catalog.RawVideo, error)
	CountGamesByPlatform(ctx context.Context) (map[catalog.Platform]int, error)
	LoadInput(ctx context.Context) (resolve.Input, error)

	EnqueueFetchRequests(ctx context.Context, reqs []resolve.FetchRequest) error
	ListFetchRequests(ctx context.Context, opts FetchListOpts) ([]FetchRequest, error)
	MarkFetched(ctx context.Context, key catalog.Key) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces the clock used for collection and request times.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// New opens a SQLite database and runs migrations.
func New(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertGames stores raw games keyed by their identity key. A stored record
// is only replaced by one fetched at the same time or later. Games without a
// derivable key are skipped; the returned count excludes them. Storing a game
// settles any pending fetch request for it.
func (s *SQLiteStore) UpsertGames(ctx context.Context, games []catalog.RawGame) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin games tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	stored := 0
	for _, g := range games {
		key, ok := g.Key()
		if !ok {
			continue
		}
		data, err := json.Marshal(g)
		if err != nil {
			return 0, fmt.Errorf("encode game %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO raw_games (game_key, platform, name, release_date, last_fetched, collected_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(game_key) DO UPDATE SET
				name = excluded.name,
				release_date = excluded.release_date,
				last_fetched = excluded.last_fetched,
				collected_at = excluded.collected_at,
				data = excluded.data
			WHERE excluded.last_fetched >= raw_games.last_fetched
		`, string(key), string(key.Platform()), g.Name, g.ReleaseDate, unixOrZero(g.LastFetched), now, string(data))
		if err != nil {
			return 0, fmt.Errorf("upsert game %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE fetch_requests SET fetched_at = ? WHERE game_key = ? AND fetched_at IS NULL",
			now, string(key))
		if err != nil {
			return 0, fmt.Errorf("settle fetch request %s: %w", key, err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit games: %w", err)
	}
	return stored, nil
}

// UpsertVideos stores raw videos by id. Videos without an id are skipped.
func (s *SQLiteStore) UpsertVideos(ctx context.Context, videos []catalog.RawVideo) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin videos tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	stored := 0
	for _, v := range videos {
		if v.VideoID == "" {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode video %s: %w", v.VideoID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO raw_videos (video_id, channel_id, published_at, collected_at, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(video_id) DO UPDATE SET
				channel_id = excluded.channel_id,
				published_at = excluded.published_at,
				collected_at = excluded.collected_at,
				data = excluded.data
		`, v.VideoID, v.ChannelID, v.PublishedAt.UTC(), now, string(data))
		if err != nil {
			return 0, fmt.Errorf("upsert video %s: %w", v.VideoID, err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit videos: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, key catalog.Key) (*catalog.RawGame, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM raw_games WHERE game_key = ?", string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", key, err)
	}
	var g catalog.RawGame
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", key, err)
	}
	return &g, nil
}

func (s *SQLiteStore) ListGames(ctx context.Context, opts GameListOpts) ([]catalog.RawGame, error) {
	query := "SELECT data FROM raw_games WHERE 1=1"
	var args []any

	if opts.Platform != "" {
		query += " AND platform = ?"
		args = append(args, string(opts.Platform))
	}
	if !opts.Since.IsZero() {
		query += " AND collected_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	query += " ORDER BY game_key"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	games := make([]catalog.RawGame, 0, len(rows))
	for _, data := range rows {
		var g catalog.RawGame
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, fmt.Errorf("decode game: %w", err)
		}
		games = append(games, g)
	}
	return games, nil
}

func (s *SQLiteStore) ListVideos(ctx context.Context, opts VideoListOpts) ([]catalog.RawVideo, error) {
	query := "SELECT data FROM raw_videos WHERE 1=1"
	var args []any

	if opts.ChannelID != "" {
		query += " AND channel_id = ?"
		args = append(args, opts.ChannelID)
	}
	if !opts.Since.IsZero() {
		query += " AND published_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	query += " ORDER BY published_at DESC, video_id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	videos := make([]catalog.RawVideo, 0, len(rows))
	for _, data := range rows {
		var v catalog.RawVideo
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("decode video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (s *SQLiteStore) CountGamesByPlatform(ctx context.Context) (map[catalog.Platform]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT platform, COUNT(*) AS cnt FROM raw_games GROUP BY platform")
	if err != nil {
		return nil, fmt.Errorf("count games by platform: %w", err)
	}
	defer rows.Close()

	counts := make(map[catalog.Platform]int)
	for rows.Next() {
		var p string
		var cnt int
		if err := rows.Scan(&p, &cnt); err != nil {
			return nil, err
		}
		counts[catalog.Platform(p)] = cnt
	}
	return counts, rows.Err()
}

// LoadInput reads every stored record as rebuild input.
func (s *SQLiteStore) LoadInput(ctx context.Context) (resolve.Input, error) {
	games, err := s.ListGames(ctx, GameListOpts{})
	if err != nil {
		return resolve.Input{}, err
	}
	videos, err := s.ListVideos(ctx, VideoListOpts{})
	if err != nil {
		return resolve.Input{}, err
	}
	return resolve.Input{Games: games, Videos: videos}, nil
}

// EnqueueFetchRequests records fetch requests. A repeated request bumps its
// counter, merges the requesters and reopens it if it had been settled.
func (s *SQLiteStore) EnqueueFetchRequests(ctx context.Context, reqs []resolve.FetchRequest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fetch tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, r := range reqs {
		var existing string
		err := tx.GetContext(ctx, &existing, "SELECT requested_by FROM fetch_requests WHERE game_key = ?", string(r.Key))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			requested, err := json.Marshal(mergeRequesters(nil, r.RequestedBy))
			if err != nil {
				return fmt.Errorf("encode requesters of %s: %w", r.Key, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO fetch_requests (game_key, reason, requested_by, times, first_requested, last_requested)
				VALUES (?, ?, ?, 1, ?, ?)
			`, string(r.Key), r.Reason, string(requested), now, now)
			if err != nil {
				return fmt.Errorf("insert fetch request %s: %w", r.Key, err)
			}
		case err != nil:
			return fmt.Errorf("get fetch request %s: %w", r.Key, err)
		default:
			var prev []string
			json.Unmarshal([]byte(existing), &prev)
			requested, err := json.Marshal(mergeRequesters(prev, r.RequestedBy))
			if err != nil {
				return fmt.Errorf("encode requesters of %s: %w", r.Key, err)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE fetch_requests
				SET reason = ?, requested_by = ?, times = times + 1, last_requested = ?, fetched_at = NULL
				WHERE game_key = ?
			`, r.Reason, string(requested), now, string(r.Key))
			if err != nil {
				return fmt.Errorf("update fetch request %s: %w", r.Key, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fetch requests: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFetchRequests(ctx context.Context, opts FetchListOpts) ([]FetchRequest, error) {
	query := "SELECT * FROM fetch_requests WHERE 1=1"
	var args []any

	if opts.PendingOnly {
		query += " AND fetched_at IS NULL"
	}
	query += " ORDER BY times DESC, game_key"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var reqs []FetchRequest
	if err := s.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("list fetch requests: %w", err)
	}
	for i := range reqs {
		json.Unmarshal([]byte(reqs[i].RequestedJSON), &reqs[i].RequestedBy)
	}
	return reqs, nil
}

func (s *SQLiteStore) MarkFetched(ctx context.Context, key catalog.Key) error {
	res, err := s.db.ExecContext(ctx, "UPDATE fetch_requests SET fetched_at = ? WHERE game_key = ?", s.now().UTC(), string(key))
	if err != nil {
		return fmt.Errorf("mark fetched %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func mergeRequesters(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
