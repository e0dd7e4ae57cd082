package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fluffybears/fluffyshare/pkg/feed"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
)

// ErrNoSnapshot means no aggregation run has published yet. Distinct
// from a computed-but-empty leaderboard.
var ErrNoSnapshot = errors.New("no leaderboard snapshot published yet")

// ListOpts controls post listing.
type ListOpts struct {
	Since    time.Time
	Username string
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	AppendPosts(ctx context.Context, posts []feed.Post) (int, error)
	ListPosts(ctx context.Context, opts ListOpts) ([]feed.Post, error)
	CountPosts(ctx context.Context) (int, error)

	PublishSnapshot(ctx context.Context, snap *leaderboard.Snapshot, watermark time.Time) error
	LatestSnapshot(ctx context.Context) (*leaderboard.Snapshot, error)
	Watermark(ctx context.Context) (time.Time, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dbPost flattens feed.Post for sqlx scanning.
type dbPost struct {
	ID             string    `db:"id"`
	AuthorID       string    `db:"author_id"`
	AuthorUsername string    `db:"author_username"`
	AuthorVerified bool      `db:"author_verified"`
	Text           string    `db:"text"`
	Type           string    `db:"type"`
	CreatedAt      time.Time `db:"created_at"`
	Likes          int       `db:"likes"`
	Retweets       int       `db:"retweets"`
	Replies        int       `db:"replies"`
	Quotes         int       `db:"quotes"`
	Views          int       `db:"views"`
	HashtagsJSON   string    `db:"hashtags"`
	MentionsJSON   string    `db:"mentions"`
	BotScore       float64   `db:"bot_score"`
	FollowerCount  int       `db:"follower_count"`
	IngestedAt     time.Time `db:"ingested_at"`
}

func toDBPost(p feed.Post) dbPost {
	hashtags, _ := json.Marshal(p.Hashtags)
	mentions, _ := json.Marshal(p.Mentions)
	return dbPost{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorUsername: p.AuthorUsername,
		AuthorVerified: p.AuthorVerified,
		Text:           p.Text,
		Type:           string(p.Type),
		CreatedAt:      p.CreatedAt.UTC(),
		Likes:          p.Metrics.Likes,
		Retweets:       p.Metrics.Retweets,
		Replies:        p.Metrics.Replies,
		Quotes:         p.Metrics.Quotes,
		Views:          p.Metrics.Views,
		HashtagsJSON:   string(hashtags),
		MentionsJSON:   string(mentions),
		BotScore:       p.BotScore,
		FollowerCount:  p.FollowerCount,
		IngestedAt:     p.IngestedAt.UTC(),
	}
}

func (d dbPost) toPost() feed.Post {
	p := feed.Post{
		ID:             d.ID,
		AuthorID:       d.AuthorID,
		AuthorUsername: d.AuthorUsername,
		AuthorVerified: d.AuthorVerified,
		Text:           d.Text,
		Type:           feed.PostType(d.Type),
		CreatedAt:      d.CreatedAt.UTC(),
		Metrics: feed.Metrics{
			Likes:    d.Likes,
			Retweets: d.Retweets,
			Replies:  d.Replies,
			Quotes:   d.Quotes,
			Views:    d.Views,
		},
		BotScore:      d.BotScore,
		FollowerCount: d.FollowerCount,
		IngestedAt:    d.IngestedAt.UTC(),
	}
	json.Unmarshal([]byte(d.HashtagsJSON), &p.Hashtags)
	json.Unmarshal([]byte(d.MentionsJSON), &p.Mentions)
	return p
}

// AppendPosts adds normalized posts to the raw log. The log is
// append-only: a post id seen before is ignored, which makes re-ingesting
// the same export idempotent. Returns the number of new rows.
func (s *SQLiteStore) AppendPosts(ctx context.Context, posts []feed.Post) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range posts {
		p := toDBPost(posts[i])
		res, err := tx.NamedExecContext(ctx, `
			INSERT OR IGNORE INTO posts (id, author_id, author_username, author_verified, text, type, created_at,
				likes, retweets, replies, quotes, views, hashtags, mentions, bot_score, follower_count, ingested_at)
			VALUES (:id, :author_id, :author_username, :author_verified, :text, :type, :created_at,
				:likes, :retweets, :replies, :quotes, :views, :hashtags, :mentions, :bot_score, :follower_count, :ingested_at)
		`, p)
		if err != nil {
			return 0, fmt.Errorf("append post %s: %w", p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) ListPosts(ctx context.Context, opts ListOpts) ([]feed.Post, error) {
	query := "SELECT * FROM posts WHERE 1=1"
	var args []any

	if !opts.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	if opts.Username != "" {
		query += " AND author_username = ?"
		args = append(args, opts.Username)
	}

	query += " ORDER BY created_at, id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []dbPost
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]feed.Post, len(rows))
	for i := range rows {
		posts[i] = rows[i].toPost()
	}
	return posts, nil
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// PublishSnapshot writes a complete generation in one transaction and
// advances the watermark only once the write has succeeded. A crash
// before commit leaves the previous snapshot intact and the watermark
// untouched, so the next run safely reprocesses the same window.
func (s *SQLiteStore) PublishSnapshot(ctx context.Context, snap *leaderboard.Snapshot, watermark time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (generated_at, total_users, total_posts, total_engagement, skipped_posts)
		VALUES (?, ?, ?, ?, ?)
	`, snap.GeneratedAt.UTC(), snap.Stats.TotalUsers, snap.Stats.TotalPosts,
		snap.Stats.TotalEngagement, snap.Stats.SkippedPosts)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	generation, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot generation id: %w", err)
	}

	for _, days := range leaderboard.SupportedWindows {
		window := leaderboard.WindowKey(days)
		for _, e := range snap.Windows[window] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO snapshot_entries (generation, window_key, rank, username, total_score, post_count, avg_score, bonus_multiplier, verified)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, generation, window, e.Rank, e.Username, e.TotalScore, e.PostCount, e.AvgScore, e.BonusMultiplier, e.Verified); err != nil {
				return fmt.Errorf("insert %s entry %d: %w", window, e.Rank, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watermark (id, last_processed_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_processed_at = excluded.last_processed_at
	`, watermark.UTC()); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently published generation, or
// ErrNoSnapshot when no run has published yet.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*leaderboard.Snapshot, error) {
	var meta struct {
		Generation      int64     `db:"generation"`
		GeneratedAt     time.Time `db:"generated_at"`
		TotalUsers      int       `db:"total_users"`
		TotalPosts      int       `db:"total_posts"`
		TotalEngagement int       `db:"total_engagement"`
		SkippedPosts    int       `db:"skipped_posts"`
	}
	err := s.db.GetContext(ctx, &meta, "SELECT * FROM snapshots ORDER BY generation DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	type dbEntry struct {
		Window          string  `db:"window_key"`
		Rank            int     `db:"rank"`
		Username        string  `db:"username"`
		TotalScore      float64 `db:"total_score"`
		PostCount       int     `db:"post_count"`
		AvgScore        float64 `db:"avg_score"`
		BonusMultiplier float64 `db:"bonus_multiplier"`
		Verified        bool    `db:"verified"`
	}
	var rows []dbEntry
	err = s.db.SelectContext(ctx, &rows, `
		SELECT window_key, rank, username, total_score, post_count, avg_score, bonus_multiplier, verified
		FROM snapshot_entries WHERE generation = ? ORDER BY window_key, rank
	`, meta.Generation)
	if err != nil {
		return nil, fmt.Errorf("snapshot entries: %w", err)
	}

	snap := &leaderboard.Snapshot{
		GeneratedAt: meta.GeneratedAt.UTC(),
		Windows:     make(map[string][]leaderboard.Entry, len(leaderboard.SupportedWindows)),
		Stats: leaderboard.Stats{
			TotalUsers:      meta.TotalUsers,
			TotalPosts:      meta.TotalPosts,
			TotalEngagement: meta.TotalEngagement,
			SkippedPosts:    meta.SkippedPosts,
		},
	}
	for _, days := range leaderboard.SupportedWindows {
		snap.Windows[leaderboard.WindowKey(days)] = []leaderboard.Entry{}
	}
	for _, row := range rows {
		snap.Windows[row.Window] = append(snap.Windows[row.Window], leaderboard.Entry{
			Rank:            row.Rank,
			Username:        row.Username,
			TotalScore:      row.TotalScore,
			PostCount:       row.PostCount,
			AvgScore:        row.AvgScore,
			BonusMultiplier: row.BonusMultiplier,
			Verified:        row.Verified,
		})
	}
	return snap, nil
}

// Watermark returns the last-processed timestamp, or the zero time when
// no run has published yet.
func (s *SQLiteStore) Watermark(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.db.GetContext(ctx, &ts, "SELECT last_processed_at FROM watermark WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark: %w", err)
	}
	return ts.UTC(), nil
}
