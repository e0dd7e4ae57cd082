package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluffybears/fluffyshare/internal/config"
	"github.com/fluffybears/fluffyshare/internal/store"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
)

func testSetup(t *testing.T) (*Runner, *store.SQLiteStore, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := store.New(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	runner, err := New(db, cfg, nil, log)
	require.NoError(t, err)
	return runner, db, cfg
}

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAppendsAndReportsSkips(t *testing.T) {
	runner, db, _ := testSetup(t)
	ctx := context.Background()

	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "2025-06-01T10:00:00Z", "likes": 5},
		{"id": "2", "author_username": "cub", "created_at": "2025-06-01T11:00:00Z"},
		{"author_username": "ghost", "created_at": "2025-06-01T12:00:00Z"}
	]`)

	skipped, err := runner.Ingest(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped) // record without id

	count, err := db.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-ingesting the same file adds nothing.
	_, err = runner.Ingest(ctx, []string{path})
	require.NoError(t, err)
	count, err = db.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestUnreadableFileFailsRun(t *testing.T) {
	runner, _, _ := testSetup(t)
	_, err := runner.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestRecomputePublishesAllWindows(t *testing.T) {
	runner, db, _ := testSetup(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "2025-06-29T10:00:00Z", "likes": 50, "views": 1000},
		{"id": "2", "author_username": "bear", "created_at": "2025-06-10T10:00:00Z", "likes": 30},
		{"id": "3", "author_username": "cub", "created_at": "2025-06-28T10:00:00Z", "likes": 10}
	]`)
	_, err := runner.Ingest(ctx, []string{path})
	require.NoError(t, err)

	snap, err := runner.Recompute(ctx, now, 0)
	require.NoError(t, err)

	for _, days := range leaderboard.SupportedWindows {
		_, ok := snap.Windows[leaderboard.WindowKey(days)]
		assert.True(t, ok, "window %dd missing", days)
	}

	assert.Equal(t, 2, snap.Stats.TotalUsers)
	assert.Equal(t, 3, snap.Stats.TotalPosts)
	assert.Zero(t, snap.Stats.SkippedPosts)

	// Both accounts posted within the last 7 days; bear outranks cub.
	week := snap.Windows["7d"]
	require.Len(t, week, 2)
	assert.Equal(t, "bear", week[0].Username)
	assert.Equal(t, 1, week[0].Rank)

	stored, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Stats, stored.Stats)

	wm, err := db.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(now))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	runner, _, _ := testSetup(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "2025-06-29T10:00:00Z", "likes": 50},
		{"id": "2", "author_username": "cub", "created_at": "2025-06-28T10:00:00Z", "likes": 50}
	]`)
	_, err := runner.Ingest(ctx, []string{path})
	require.NoError(t, err)

	first, err := runner.Recompute(ctx, now, 0)
	require.NoError(t, err)

	second, err := runner.Recompute(ctx, now, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecomputeCountsUnknownTypes(t *testing.T) {
	runner, _, _ := testSetup(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "2025-06-29T10:00:00Z", "type": "broadcast"},
		{"id": "2", "author_username": "bear", "created_at": "2025-06-29T11:00:00Z", "likes": 5}
	]`)
	_, err := runner.Ingest(ctx, []string{path})
	require.NoError(t, err)

	snap, err := runner.Recompute(ctx, now, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Stats.SkippedPosts)
	assert.Equal(t, 1, snap.Stats.TotalPosts)
}

func TestRecomputePointsMode(t *testing.T) {
	runner, _, cfg := testSetup(t)
	cfg.Scoring.Mode = config.ModePoints
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "2025-06-29T10:00:00Z", "likes": 120, "retweets": 10}
	]`)
	_, err := runner.Ingest(ctx, []string{path})
	require.NoError(t, err)

	snap, err := runner.Recompute(ctx, now, 0)
	require.NoError(t, err)

	week := snap.Windows["7d"]
	require.Len(t, week, 1)
	assert.Equal(t, 40.0, week[0].TotalScore) // 5 base + 15 like tier + 20 retweet bonus
}

func TestRunOnceEndToEnd(t *testing.T) {
	runner, _, cfg := testSetup(t)

	recent := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	path := writeExport(t, `[
		{"id": "1", "author_username": "bear", "created_at": "`+recent+`", "likes": 20}
	]`)
	cfg.Ingest.Paths = []string{path}

	snap, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stats.TotalUsers)
	require.Len(t, snap.Windows["7d"], 1)
	assert.Equal(t, "bear", snap.Windows["7d"][0].Username)
}
