package leaderboard

import (
	"sort"
	"time"

	"github.com/fluffybears/fluffyshare/pkg/feed"
	"github.com/fluffybears/fluffyshare/pkg/scoring"
)

// AccountActivity is the per-username aggregate over one scoring run.
// Derived and disposable: recomputed from the raw log on every run,
// never mutated incrementally.
type AccountActivity struct {
	Username        string     `json:"username"`
	TotalPoints     float64    `json:"total_points"`
	PostCount       int        `json:"post_count"`
	TotalEngagement int        `json:"total_engagement"`
	BestPost        *feed.Post `json:"best_post,omitempty"`
	BestPostPoints  float64    `json:"best_post_points"`
	FirstPostAt     time.Time  `json:"first_post_at"`
	LastPostAt      time.Time  `json:"last_post_at"`
	FollowerCount   int        `json:"follower_count"`
	Verified        bool       `json:"verified"`
}

// Aggregator folds scored posts into per-account activity. Grouping is
// by author username, case-sensitive; callers normalize case upstream
// if they want folding.
type Aggregator struct {
	keywords scoring.Keywords
}

// NewAggregator creates an Aggregator. The keyword set drives the
// point breakdown used for best-post selection.
func NewAggregator(kw scoring.Keywords) *Aggregator {
	return &Aggregator{keywords: kw}
}

// Aggregate runs in O(n) over the input with O(accounts) auxiliary
// space. The best post per account is the one with the highest point
// breakdown total, ties broken by earliest creation time.
func (a *Aggregator) Aggregate(scored []scoring.ScoredPost) map[string]*AccountActivity {
	activity := make(map[string]*AccountActivity)

	for i := range scored {
		post := scored[i].Post
		acct, ok := activity[post.AuthorUsername]
		if !ok {
			acct = &AccountActivity{
				Username:    post.AuthorUsername,
				FirstPostAt: post.CreatedAt,
				LastPostAt:  post.CreatedAt,
			}
			activity[post.AuthorUsername] = acct
		}

		acct.TotalPoints += scored[i].Score
		acct.PostCount++
		acct.TotalEngagement += post.Metrics.Total()
		if post.CreatedAt.Before(acct.FirstPostAt) {
			acct.FirstPostAt = post.CreatedAt
		}
		if post.CreatedAt.After(acct.LastPostAt) {
			acct.LastPostAt = post.CreatedAt
		}
		if post.FollowerCount > acct.FollowerCount {
			acct.FollowerCount = post.FollowerCount
		}
		if post.AuthorVerified {
			acct.Verified = true
		}

		points := scoring.CalculatePoints(post, a.keywords).Total
		if acct.BestPost == nil || points > acct.BestPostPoints ||
			(points == acct.BestPostPoints && post.CreatedAt.Before(acct.BestPost.CreatedAt)) {
			p := post
			acct.BestPost = &p
			acct.BestPostPoints = points
		}
	}

	return activity
}

// SortedUsernames returns the account keys in lexical order. The
// builder's stable sort relies on this deterministic input ordering to
// keep snapshots reproducible across runs.
func SortedUsernames(activity map[string]*AccountActivity) []string {
	names := make([]string, 0, len(activity))
	for name := range activity {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
