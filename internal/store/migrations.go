package store

const schema = `
CREATE TABLE IF NOT EXISTS raw_games (
    game_key     TEXT PRIMARY KEY,
    platform     TEXT NOT NULL,
    name         TEXT NOT NULL DEFAULT '',
    release_date TEXT NOT NULL DEFAULT '',
    last_fetched INTEGER NOT NULL DEFAULT 0,
    collected_at DATETIME NOT NULL,
    data         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_games_platform ON raw_games(platform);
CREATE INDEX IF NOT EXISTS idx_raw_games_collected_at ON raw_games(collected_at);

CREATE TABLE IF NOT EXISTS raw_videos (
    video_id     TEXT PRIMARY KEY,
    channel_id   TEXT NOT NULL,
    published_at DATETIME NOT NULL,
    collected_at DATETIME NOT NULL,
    data         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_videos_channel ON raw_videos(channel_id);
CREATE INDEX IF NOT EXISTS idx_raw_videos_published_at ON raw_videos(published_at);

CREATE TABLE IF NOT EXISTS fetch_requests (
    game_key        TEXT PRIMARY KEY,
    reason          TEXT NOT NULL,
    requested_by    TEXT NOT NULL DEFAULT '[]',
    times           INTEGER NOT NULL DEFAULT 1,
    first_requested DATETIME NOT NULL,
    last_requested  DATETIME NOT NULL,
    fetched_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_fetch_requests_pending ON fetch_requests(fetched_at);
`
