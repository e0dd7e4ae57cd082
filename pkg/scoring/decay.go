package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluffybears/fluffyshare/pkg/feed"
)

// ErrUnknownPostType marks a post whose type is outside the recognized
// set. Such posts are excluded from scoring and reported, never silently
// defaulted.
var ErrUnknownPostType = errors.New("unknown post type")

// Params is the immutable configuration of the decay and cap engine.
// Every field is independently overridable; Validate rejects anything
// out of range instead of clamping.
type Params struct {
	// Multipliers applied to the weighted engagement sum per post type.
	OriginalMultiplier float64 `yaml:"original_multiplier"`
	QuoteMultiplier    float64 `yaml:"quote_multiplier"`
	ReplyMultiplier    float64 `yaml:"reply_multiplier"`
	RetweetMultiplier  float64 `yaml:"retweet_multiplier"`

	// Weights of the individual engagement counters.
	LikeWeight    float64 `yaml:"like_weight"`
	RetweetWeight float64 `yaml:"retweet_weight"`
	ReplyWeight   float64 `yaml:"reply_weight"`
	QuoteWeight   float64 `yaml:"quote_weight"`

	// ReachWeight scales the additive log1p(views) reach term.
	ReachWeight float64 `yaml:"reach_weight"`

	// OriginalityBonus is added to original posts before decay.
	OriginalityBonus float64 `yaml:"originality_bonus"`

	// DecayLambda is the exponential decay rate per day of age. The
	// default 0.05 halves a score roughly every 14 days.
	DecayLambda float64 `yaml:"decay_lambda"`

	// Bot penalty: scores of accounts at or above the threshold are
	// multiplied by the penalty factor. Soft penalty, not an exclusion.
	BotScoreThreshold float64 `yaml:"bot_score_threshold"`
	BotPenalty        float64 `yaml:"bot_penalty"`

	// Follower bonus: 1 + FollowerBonus per full block of followers,
	// capped at MaxBonusMultiplier.
	FollowerBonus      float64 `yaml:"follower_bonus"`
	FollowerBlockSize  int     `yaml:"follower_block_size"`
	MaxBonusMultiplier float64 `yaml:"max_bonus_multiplier"`

	// DailyCap bounds the cumulative score one account can earn within
	// a single UTC calendar day.
	DailyCap float64 `yaml:"daily_cap"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		OriginalMultiplier: 1.0,
		QuoteMultiplier:    0.9,
		ReplyMultiplier:    0.7,
		RetweetMultiplier:  0.4,
		LikeWeight:         1.0,
		RetweetWeight:      1.2,
		ReplyWeight:        1.5,
		QuoteWeight:        1.0,
		ReachWeight:        0.5,
		OriginalityBonus:   5.0,
		DecayLambda:        0.05,
		BotScoreThreshold:  0.7,
		BotPenalty:         0.5,
		FollowerBonus:      0.05,
		FollowerBlockSize:  1000,
		MaxBonusMultiplier: 2.0,
		DailyCap:           500,
	}
}

// Validate checks every parameter and returns a descriptive error for
// the first violation. A run never starts with an invalid configuration.
func (p Params) Validate() error {
	for name, mult := range map[string]float64{
		"original_multiplier": p.OriginalMultiplier,
		"quote_multiplier":    p.QuoteMultiplier,
		"reply_multiplier":    p.ReplyMultiplier,
		"retweet_multiplier":  p.RetweetMultiplier,
	} {
		if mult < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, mult)
		}
	}
	for name, w := range map[string]float64{
		"like_weight":    p.LikeWeight,
		"retweet_weight": p.RetweetWeight,
		"reply_weight":   p.ReplyWeight,
		"quote_weight":   p.QuoteWeight,
		"reach_weight":   p.ReachWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, w)
		}
	}
	if p.OriginalityBonus < 0 {
		return fmt.Errorf("originality_bonus must be non-negative, got %g", p.OriginalityBonus)
	}
	if p.DecayLambda < 0 {
		return fmt.Errorf("decay_lambda must be non-negative, got %g", p.DecayLambda)
	}
	if p.BotScoreThreshold < 0 || p.BotScoreThreshold > 1 {
		return fmt.Errorf("bot_score_threshold must be within [0,1], got %g", p.BotScoreThreshold)
	}
	if p.BotPenalty <= 0 || p.BotPenalty > 1 {
		return fmt.Errorf("bot_penalty must be within (0,1], got %g", p.BotPenalty)
	}
	if p.FollowerBonus < 0 {
		return fmt.Errorf("follower_bonus must be non-negative, got %g", p.FollowerBonus)
	}
	if p.FollowerBlockSize <= 0 {
		return fmt.Errorf("follower_block_size must be positive, got %d", p.FollowerBlockSize)
	}
	if p.MaxBonusMultiplier < 1 {
		return fmt.Errorf("max_bonus_multiplier must be at least 1, got %g", p.MaxBonusMultiplier)
	}
	if p.DailyCap <= 0 {
		return fmt.Errorf("daily_cap must be positive, got %g", p.DailyCap)
	}
	return nil
}

func (p Params) typeMultiplier(t feed.PostType) (float64, bool) {
	switch t {
	case feed.TypeOriginal:
		return p.OriginalMultiplier, true
	case feed.TypeQuote:
		return p.QuoteMultiplier, true
	case feed.TypeReply:
		return p.ReplyMultiplier, true
	case feed.TypeRetweet:
		return p.RetweetMultiplier, true
	}
	return 0, false
}

// ScoredPost pairs a post with its final per-post score after decay,
// penalties, bonuses and the daily cap.
type ScoredPost struct {
	Post  feed.Post
	Score float64
}

// Engine computes decayed, capped per-post scores. Stateless between
// runs: every score is relative to the reference time handed to ScoreAll,
// so recomputing the same log with the same reference time reproduces
// the same output exactly.
type Engine struct {
	params Params
	log    *logrus.Logger
}

// NewEngine validates the parameters and builds an engine.
func NewEngine(params Params, log *logrus.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring params: %w", err)
	}
	return &Engine{params: params, log: log}, nil
}

// Params returns the engine's configuration.
func (e *Engine) Params() Params {
	return e.params
}

// PostScore computes the decayed, penalized, bonus-adjusted score of a
// single post relative to now, before the daily cap is applied.
func (e *Engine) PostScore(post feed.Post, now time.Time) (float64, error) {
	mult, ok := e.params.typeMultiplier(post.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPostType, post.Type)
	}

	m := post.Metrics
	weighted := float64(m.Likes)*e.params.LikeWeight +
		float64(m.Retweets)*e.params.RetweetWeight +
		float64(m.Replies)*e.params.ReplyWeight +
		float64(m.Quotes)*e.params.QuoteWeight

	raw := weighted*mult + e.params.ReachWeight*math.Log1p(float64(m.Views))
	if post.Type == feed.TypeOriginal {
		raw += e.params.OriginalityBonus
	}

	ageDays := now.Sub(post.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score := raw * math.Exp(-e.params.DecayLambda*ageDays)

	if post.BotScore >= e.params.BotScoreThreshold {
		score *= e.params.BotPenalty
	}

	return score * e.BonusMultiplier(post.FollowerCount), nil
}

// BonusMultiplier returns the follower bonus multiplier for an account
// with the given follower count.
func (e *Engine) BonusMultiplier(followers int) float64 {
	if followers < 0 {
		followers = 0
	}
	blocks := followers / e.params.FollowerBlockSize
	mult := 1 + e.params.FollowerBonus*float64(blocks)
	if mult > e.params.MaxBonusMultiplier {
		return e.params.MaxBonusMultiplier
	}
	return mult
}

// ScoreAll scores a batch of posts relative to now and applies the
// per-account per-day cumulative cap. Posts are processed per account in
// chronological order, ties broken by post id, so the result is
// deterministic for any input ordering. Posts with an unknown type are
// logged and excluded; the count of exclusions is returned. The context
// is checked between posts so a long run can be cancelled cleanly.
func (e *Engine) ScoreAll(ctx context.Context, posts []feed.Post, now time.Time) ([]ScoredPost, int, error) {
	ordered := make([]feed.Post, len(posts))
	copy(ordered, posts)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.AuthorUsername != b.AuthorUsername {
			return a.AuthorUsername < b.AuthorUsername
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	type dayKey struct {
		username string
		day      string
	}
	dailyTotals := make(map[dayKey]float64)

	scored := make([]ScoredPost, 0, len(ordered))
	skipped := 0

	for _, post := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		score, err := e.PostScore(post, now)
		if err != nil {
			skipped++
			e.log.WithFields(logrus.Fields{
				"post_id": post.ID,
				"author":  post.AuthorUsername,
				"type":    post.Type,
			}).WithError(err).Warn("Excluding post from scoring")
			continue
		}

		key := dayKey{post.AuthorUsername, post.CreatedAt.UTC().Format("2006-01-02")}
		remaining := e.params.DailyCap - dailyTotals[key]
		if remaining <= 0 {
			score = 0
		} else if score > remaining {
			score = remaining
		}
		dailyTotals[key] += score

		scored = append(scored, ScoredPost{Post: post, Score: score})
	}

	return scored, skipped, nil
}
