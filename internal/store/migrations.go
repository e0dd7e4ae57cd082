package store

const schema = `
CREATE TABLE IF NOT EXISTS posts (
    id              TEXT PRIMARY KEY,
    author_id       TEXT NOT NULL DEFAULT '',
    author_username TEXT NOT NULL,
    author_verified BOOLEAN NOT NULL DEFAULT 0,
    text            TEXT NOT NULL DEFAULT '',
    type            TEXT NOT NULL,
    created_at      DATETIME NOT NULL,
    likes           INTEGER NOT NULL DEFAULT 0,
    retweets        INTEGER NOT NULL DEFAULT 0,
    replies         INTEGER NOT NULL DEFAULT 0,
    quotes          INTEGER NOT NULL DEFAULT 0,
    views           INTEGER NOT NULL DEFAULT 1,
    hashtags        TEXT NOT NULL DEFAULT '[]',
    mentions        TEXT NOT NULL DEFAULT '[]',
    bot_score       REAL NOT NULL DEFAULT 0,
    follower_count  INTEGER NOT NULL DEFAULT 0,
    ingested_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_username ON posts(author_username);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

CREATE TABLE IF NOT EXISTS snapshots (
    generation       INTEGER PRIMARY KEY AUTOINCREMENT,
    generated_at     DATETIME NOT NULL,
    total_users      INTEGER NOT NULL DEFAULT 0,
    total_posts      INTEGER NOT NULL DEFAULT 0,
    total_engagement INTEGER NOT NULL DEFAULT 0,
    skipped_posts    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS snapshot_entries (
    generation       INTEGER NOT NULL REFERENCES snapshots(generation),
    window_key       TEXT NOT NULL,
    rank             INTEGER NOT NULL,
    username         TEXT NOT NULL,
    total_score      REAL NOT NULL,
    post_count       INTEGER NOT NULL,
    avg_score        REAL NOT NULL,
    bonus_multiplier REAL NOT NULL,
    verified         BOOLEAN NOT NULL DEFAULT 0,
    PRIMARY KEY (generation, window_key, rank)
);

CREATE TABLE IF NOT EXISTS watermark (
    id                INTEGER PRIMARY KEY CHECK (id = 1),
    last_processed_at DATETIME NOT NULL
);
`
