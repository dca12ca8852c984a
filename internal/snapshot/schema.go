package snapshot

const schema = `
CREATE TABLE games (
	game_key          TEXT PRIMARY KEY,
	platform          TEXT NOT NULL,
	name              TEXT NOT NULL,
	hidden            INTEGER NOT NULL DEFAULT 0,
	hidden_reason     TEXT NOT NULL DEFAULT '',
	is_absorbed       INTEGER NOT NULL DEFAULT 0,
	absorbed_into     TEXT NOT NULL DEFAULT '',
	rating            INTEGER,
	review_count      INTEGER NOT NULL DEFAULT 0,
	price             REAL,
	price_display     TEXT NOT NULL DEFAULT '',
	is_free           INTEGER NOT NULL DEFAULT 0,
	tags              TEXT NOT NULL DEFAULT '[]',
	genres            TEXT NOT NULL DEFAULT '[]',
	channels          TEXT NOT NULL DEFAULT '[]',
	platforms         TEXT NOT NULL DEFAULT '[]',
	video_count       INTEGER NOT NULL DEFAULT 0,
	latest_video_date TEXT,
	release_date      TEXT NOT NULL DEFAULT '',
	release_sort      TEXT,
	coming_soon       INTEGER NOT NULL DEFAULT 0,
	is_early_access   INTEGER NOT NULL DEFAULT 0,
	is_demo           INTEGER NOT NULL DEFAULT 0,
	has_demo          INTEGER NOT NULL DEFAULT 0,
	cross_platform    INTEGER NOT NULL DEFAULT 0,
	display_state     TEXT NOT NULL,
	search_text       TEXT NOT NULL DEFAULT '',
	entity            TEXT NOT NULL
);

CREATE INDEX idx_games_visible ON games(hidden, platform);
CREATE INDEX idx_games_latest ON games(latest_video_date);
CREATE INDEX idx_games_rating ON games(rating);

CREATE TABLE game_videos (
	game_key     TEXT NOT NULL REFERENCES games(game_key),
	video_id     TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	channel_id   TEXT NOT NULL,
	channel_name TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL,
	PRIMARY KEY (game_key, video_id)
);

CREATE INDEX idx_game_videos_published ON game_videos(game_key, published_at DESC);

CREATE TABLE snapshot_meta (
	id            TEXT PRIMARY KEY,
	built_at      TEXT NOT NULL,
	currency      TEXT NOT NULL,
	entity_count  INTEGER NOT NULL,
	visible_count INTEGER NOT NULL,
	video_count   INTEGER NOT NULL,
	report        TEXT NOT NULL
);
`
