package scoring

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluffybears/fluffyshare/pkg/feed"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T, params Params) *Engine {
	t.Helper()
	engine, err := NewEngine(params, testLogger())
	require.NoError(t, err)
	return engine
}

// flatParams strips decay, reach, originality and bonuses so a post's
// score equals its like count. Makes cap arithmetic exact in tests.
func flatParams() Params {
	p := DefaultParams()
	p.DecayLambda = 0
	p.ReachWeight = 0
	p.OriginalityBonus = 0
	p.RetweetWeight = 0
	p.ReplyWeight = 0
	p.QuoteWeight = 0
	return p
}

func TestScoreHalvesEveryFourteenDays(t *testing.T) {
	engine := newTestEngine(t, DefaultParams())

	post := feed.Post{
		ID:        "p1",
		Type:      feed.TypeOriginal,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metrics:   feed.Metrics{Likes: 50, Views: 1000},
	}

	now := post.CreatedAt.Add(24 * time.Hour)
	fresh, err := engine.PostScore(post, now)
	require.NoError(t, err)

	aged, err := engine.PostScore(post, now.Add(14*24*time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, aged/fresh, 0.01)
}

func TestTypeMultiplierOrdering(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	scores := make(map[feed.PostType]float64)
	for _, typ := range feed.AllPostTypes() {
		post := feed.Post{ID: "p", Type: typ, CreatedAt: now, Metrics: feed.Metrics{Likes: 100}}
		score, err := engine.PostScore(post, now)
		require.NoError(t, err)
		scores[typ] = score
	}

	assert.Greater(t, scores[feed.TypeOriginal], scores[feed.TypeQuote])
	assert.Greater(t, scores[feed.TypeQuote], scores[feed.TypeReply])
	assert.Greater(t, scores[feed.TypeReply], scores[feed.TypeRetweet])
}

func TestOriginalityBonusOnlyForOriginals(t *testing.T) {
	params := flatParams()
	params.OriginalityBonus = 5
	engine := newTestEngine(t, params)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	original := feed.Post{ID: "a", Type: feed.TypeOriginal, CreatedAt: now, Metrics: feed.Metrics{Likes: 100}}
	quote := feed.Post{ID: "b", Type: feed.TypeQuote, CreatedAt: now, Metrics: feed.Metrics{Likes: 100}}

	origScore, err := engine.PostScore(original, now)
	require.NoError(t, err)
	quoteScore, err := engine.PostScore(quote, now)
	require.NoError(t, err)

	assert.Equal(t, 105.0, origScore)
	assert.Equal(t, 90.0, quoteScore)
}

func TestBotPenaltyAtThreshold(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	clean := feed.Post{ID: "a", Type: feed.TypeOriginal, CreatedAt: now, BotScore: 0.69, Metrics: feed.Metrics{Likes: 100}}
	bot := feed.Post{ID: "b", Type: feed.TypeOriginal, CreatedAt: now, BotScore: 0.7, Metrics: feed.Metrics{Likes: 100}}

	cleanScore, err := engine.PostScore(clean, now)
	require.NoError(t, err)
	botScore, err := engine.PostScore(bot, now)
	require.NoError(t, err)

	assert.Equal(t, cleanScore*0.5, botScore)
}

func TestFollowerBonusMultiplier(t *testing.T) {
	engine := newTestEngine(t, DefaultParams())

	assert.Equal(t, 1.0, engine.BonusMultiplier(0))
	assert.Equal(t, 1.0, engine.BonusMultiplier(999))
	assert.InDelta(t, 1.05, engine.BonusMultiplier(1000), 1e-9)
	assert.InDelta(t, 1.25, engine.BonusMultiplier(5500), 1e-9)
	assert.Equal(t, 2.0, engine.BonusMultiplier(10_000_000)) // capped
}

func TestDailyCapClipsOverflow(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	posts := []feed.Post{
		{ID: "a", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: day.Add(1 * time.Hour), Metrics: feed.Metrics{Likes: 300}},
		{ID: "b", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: day.Add(2 * time.Hour), Metrics: feed.Metrics{Likes: 400}},
		{ID: "c", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: day.Add(3 * time.Hour), Metrics: feed.Metrics{Likes: 100}},
	}

	scored, skipped, err := engine.ScoreAll(context.Background(), posts, day.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, scored, 3)

	total := 0.0
	for _, sp := range scored {
		total += sp.Score
	}
	assert.Equal(t, 500.0, total) // 300 + 200 + 0
	assert.Equal(t, 300.0, scored[0].Score)
	assert.Equal(t, 200.0, scored[1].Score)
	assert.Equal(t, 0.0, scored[2].Score)
}

func TestDailyCapResetsAcrossDays(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	day := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)

	posts := []feed.Post{
		{ID: "a", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: day, Metrics: feed.Metrics{Likes: 450}},
		{ID: "b", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: day.Add(2 * time.Hour), Metrics: feed.Metrics{Likes: 450}},
	}

	scored, _, err := engine.ScoreAll(context.Background(), posts, day.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, scored, 2)

	// Second post lands on the next UTC day, so it gets a fresh budget.
	assert.Equal(t, 450.0, scored[0].Score)
	assert.Equal(t, 450.0, scored[1].Score)
}

func TestDailyCapDeterministicForAnyOrdering(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var posts []feed.Post
	for i := 0; i < 10; i++ {
		posts = append(posts, feed.Post{
			ID:             string(rune('a' + i)),
			AuthorUsername: "bear",
			Type:           feed.TypeOriginal,
			CreatedAt:      day.Add(time.Duration(i) * time.Minute),
			Metrics:        feed.Metrics{Likes: 90},
		})
	}

	want, _, err := engine.ScoreAll(context.Background(), posts, day.Add(time.Hour))
	require.NoError(t, err)

	shuffled := make([]feed.Post, len(posts))
	copy(shuffled, posts)
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	got, _, err := engine.ScoreAll(context.Background(), shuffled, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUnknownTypeExcluded(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	posts := []feed.Post{
		{ID: "a", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: now, Metrics: feed.Metrics{Likes: 10}},
		{ID: "b", AuthorUsername: "bear", Type: "broadcast", CreatedAt: now, Metrics: feed.Metrics{Likes: 10}},
	}

	scored, skipped, err := engine.ScoreAll(context.Background(), posts, now)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, scored, 1)
	assert.Equal(t, "a", scored[0].Post.ID)
}

func TestScoreAllCancellable(t *testing.T) {
	engine := newTestEngine(t, flatParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	posts := []feed.Post{{ID: "a", AuthorUsername: "bear", Type: feed.TypeOriginal, CreatedAt: now}}

	_, _, err := engine.ScoreAll(ctx, posts, now)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidation(t *testing.T) {
	valid := DefaultParams()
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"negative decay lambda", func(p *Params) { p.DecayLambda = -0.1 }},
		{"zero daily cap", func(p *Params) { p.DailyCap = 0 }},
		{"negative daily cap", func(p *Params) { p.DailyCap = -5 }},
		{"max bonus below one", func(p *Params) { p.MaxBonusMultiplier = 0.9 }},
		{"bot threshold above one", func(p *Params) { p.BotScoreThreshold = 1.5 }},
		{"zero bot penalty", func(p *Params) { p.BotPenalty = 0 }},
		{"negative like weight", func(p *Params) { p.LikeWeight = -1 }},
		{"zero follower block", func(p *Params) { p.FollowerBlockSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			tc.mutate(&params)
			err := params.Validate()
			assert.Error(t, err)

			_, err = NewEngine(params, testLogger())
			assert.Error(t, err)
		})
	}
}
