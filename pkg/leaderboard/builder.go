package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidWindow rejects windows outside the supported set.
	// Snapshots are pre-materialized per window, so arbitrary windows
	// cannot be served and are never silently rounded.
	ErrInvalidWindow = errors.New("unsupported leaderboard window")

	// ErrInvalidLimit rejects out-of-range result limits. Rejecting
	// instead of clamping surfaces caller bugs early.
	ErrInvalidLimit = errors.New("invalid result limit")
)

// SupportedWindows are the trailing ranges, in days, a leaderboard can
// be built over.
var SupportedWindows = []int{7, 30, 90}

// DefaultMaxLimit bounds the result limit when the configuration does
// not override it.
const DefaultMaxLimit = 1000

// Entry is one ranked row of a leaderboard.
type Entry struct {
	Rank            int     `json:"rank"`
	Username        string  `json:"username"`
	TotalScore      float64 `json:"total_score"`
	PostCount       int     `json:"post_count"`
	AvgScore        float64 `json:"avg_score"`
	BonusMultiplier float64 `json:"bonus_multiplier"`
	Verified        bool    `json:"verified"`
}

// Builder turns aggregated account activity into ranked leaderboards.
type Builder struct {
	now      time.Time
	maxLimit int
}

// NewBuilder creates a Builder anchored at the batch reference time.
func NewBuilder(now time.Time, maxLimit int) *Builder {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Builder{now: now.UTC(), maxLimit: maxLimit}
}

// WindowSupported reports whether days is one of the supported windows.
func WindowSupported(days int) bool {
	for _, w := range SupportedWindows {
		if w == days {
			return true
		}
	}
	return false
}

// Build ranks the accounts with at least one post inside the trailing
// window. Entries are sorted descending by total score; at equal scores
// the account that reached its score first (older last post) ranks
// higher, then username ascending. Ranks are dense and 1-based.
func (b *Builder) Build(activity map[string]*AccountActivity, bonusFor func(followers int) float64, windowDays, limit int) ([]Entry, error) {
	if !WindowSupported(windowDays) {
		return nil, fmt.Errorf("%w: %d days (supported: %v)", ErrInvalidWindow, windowDays, SupportedWindows)
	}
	if limit < 1 || limit > b.maxLimit {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidLimit, limit, b.maxLimit)
	}

	cutoff := b.now.AddDate(0, 0, -windowDays)

	// Lexical account order in, stable sort out: ties that the
	// comparator cannot split stay reproducible across runs.
	var in []*AccountActivity
	for _, name := range SortedUsernames(activity) {
		acct := activity[name]
		if acct.LastPostAt.Before(cutoff) || acct.LastPostAt.After(b.now) {
			continue
		}
		in = append(in, acct)
	}

	sort.SliceStable(in, func(i, j int) bool {
		if in[i].TotalPoints != in[j].TotalPoints {
			return in[i].TotalPoints > in[j].TotalPoints
		}
		if !in[i].LastPostAt.Equal(in[j].LastPostAt) {
			return in[i].LastPostAt.Before(in[j].LastPostAt)
		}
		return in[i].Username < in[j].Username
	})

	if len(in) > limit {
		in = in[:limit]
	}

	entries := make([]Entry, len(in))
	for i, acct := range in {
		avg := 0.0
		if acct.PostCount > 0 {
			avg = acct.TotalPoints / float64(acct.PostCount)
		}
		bonus := 1.0
		if bonusFor != nil {
			bonus = bonusFor(acct.FollowerCount)
		}
		entries[i] = Entry{
			Rank:            i + 1,
			Username:        acct.Username,
			TotalScore:      acct.TotalPoints,
			PostCount:       acct.PostCount,
			AvgScore:        avg,
			BonusMultiplier: bonus,
			Verified:        acct.Verified,
		}
	}
	return entries, nil
}
