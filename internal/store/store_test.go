package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluffybears/fluffyshare/pkg/feed"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPost(id, username string, createdAt time.Time) feed.Post {
	return feed.Post{
		ID:             id,
		AuthorUsername: username,
		Type:           feed.TypeOriginal,
		Text:           "hello #FluffyBears",
		CreatedAt:      createdAt,
		Metrics:        feed.Metrics{Likes: 10, Views: 100},
		Hashtags:       []string{"FluffyBears"},
		IngestedAt:     createdAt.Add(time.Minute),
	}
}

func TestAppendPostsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	posts := []feed.Post{
		testPost("1", "bear", base),
		testPost("2", "cub", base.Add(time.Hour)),
	}

	n, err := s.AppendPosts(ctx, posts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-ingesting the same export inserts nothing new.
	n, err = s.AppendPosts(ctx, posts)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListPostsRoundTripAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.AppendPosts(ctx, []feed.Post{
		testPost("b", "bear", base.Add(time.Hour)),
		testPost("a", "bear", base),
	})
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx, ListOpts{})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "a", posts[0].ID) // chronological
	assert.Equal(t, "b", posts[1].ID)
	assert.Equal(t, []string{"FluffyBears"}, posts[0].Hashtags)
	assert.Equal(t, 10, posts[0].Metrics.Likes)
	assert.True(t, posts[0].CreatedAt.Equal(base))
}

func TestListPostsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.AppendPosts(ctx, []feed.Post{
		testPost("1", "bear", base),
		testPost("2", "cub", base.Add(time.Hour)),
		testPost("3", "bear", base.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	byUser, err := s.ListPosts(ctx, ListOpts{Username: "bear"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	since, err := s.ListPosts(ctx, ListOpts{Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := s.ListPosts(ctx, ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "1", limited[0].ID)
}

func TestLatestSnapshotBeforeFirstPublish(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	wm, err := s.Watermark(context.Background())
	require.NoError(t, err)
	assert.True(t, wm.IsZero())
}

func TestPublishAndReadBackSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	snap := &leaderboard.Snapshot{
		GeneratedAt: now,
		Windows: map[string][]leaderboard.Entry{
			"7d": {
				{Rank: 1, Username: "bear", TotalScore: 500, PostCount: 3, AvgScore: 166.67, BonusMultiplier: 1.1, Verified: true},
				{Rank: 2, Username: "cub", TotalScore: 120, PostCount: 2, AvgScore: 60},
			},
			"30d": {
				{Rank: 1, Username: "bear", TotalScore: 900, PostCount: 7, AvgScore: 128.57, BonusMultiplier: 1.1, Verified: true},
			},
		},
		Stats: leaderboard.Stats{TotalUsers: 2, TotalPosts: 9, TotalEngagement: 340, SkippedPosts: 1},
	}

	require.NoError(t, s.PublishSnapshot(ctx, snap, now))

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)

	assert.True(t, got.GeneratedAt.Equal(now))
	assert.Equal(t, snap.Stats, got.Stats)
	require.Len(t, got.Windows["7d"], 2)
	assert.Equal(t, "bear", got.Windows["7d"][0].Username)
	assert.Equal(t, 500.0, got.Windows["7d"][0].TotalScore)
	assert.True(t, got.Windows["7d"][0].Verified)
	assert.Len(t, got.Windows["30d"], 1)

	// A window with no entries comes back empty, not missing.
	entries, ok := got.Windows["90d"]
	assert.True(t, ok)
	assert.Empty(t, entries)

	wm, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(now))
}

func TestLatestSnapshotReturnsNewestGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	first := &leaderboard.Snapshot{
		GeneratedAt: base,
		Windows: map[string][]leaderboard.Entry{
			"7d": {{Rank: 1, Username: "bear", TotalScore: 100, PostCount: 1, AvgScore: 100, BonusMultiplier: 1}},
		},
	}
	require.NoError(t, s.PublishSnapshot(ctx, first, base))

	second := &leaderboard.Snapshot{
		GeneratedAt: base.Add(time.Hour),
		Windows: map[string][]leaderboard.Entry{
			"7d": {{Rank: 1, Username: "cub", TotalScore: 200, PostCount: 2, AvgScore: 100, BonusMultiplier: 1}},
		},
	}
	require.NoError(t, s.PublishSnapshot(ctx, second, base.Add(time.Hour)))

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Windows["7d"], 1)
	assert.Equal(t, "cub", got.Windows["7d"][0].Username)

	wm, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(base.Add(time.Hour)))
}
