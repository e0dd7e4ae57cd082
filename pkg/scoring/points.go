package scoring

import (
	"strings"

	"github.com/fluffybears/fluffyshare/pkg/feed"
)

// Breakdown itemizes the points a single post earned. Total is always
// the exact sum of the other four fields.
type Breakdown struct {
	Base       float64 `json:"base_points"`
	Engagement float64 `json:"engagement_bonus"`
	Quality    float64 `json:"quality_bonus"`
	Official   float64 `json:"official_bonus"`
	Total      float64 `json:"total_points"`
}

// Keywords is the brand configuration the calculators match against.
// Matching is case-insensitive, so everything is lowercased on the way in.
type Keywords struct {
	brand    []string
	official string
}

// NewKeywords builds a Keywords set from the configured brand keyword
// list and official account handle.
func NewKeywords(brand []string, officialHandle string) Keywords {
	lowered := make([]string, 0, len(brand))
	for _, kw := range brand {
		if trimmed := strings.ToLower(strings.TrimSpace(kw)); trimmed != "" {
			lowered = append(lowered, trimmed)
		}
	}
	return Keywords{
		brand:    lowered,
		official: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(officialHandle), "@")),
	}
}

// MatchesBrand reports whether a hashtag contains any brand keyword.
func (k Keywords) MatchesBrand(hashtag string) bool {
	lower := strings.ToLower(hashtag)
	for _, kw := range k.brand {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsOfficialMention reports whether a mention refers to the official
// account handle.
func (k Keywords) IsOfficialMention(mention string) bool {
	return k.official != "" && strings.Contains(strings.ToLower(mention), k.official)
}

// IsOfficialAccount reports whether the username is the official handle.
func (k Keywords) IsOfficialAccount(username string) bool {
	return k.official != "" && strings.ToLower(strings.TrimPrefix(username, "@")) == k.official
}

// CalculatePoints computes the per-post point breakdown. Pure and total:
// it never fails, and an unrecognized post type earns a zero base.
// The production leaderboard uses the decay engine instead; this
// calculator backs the raw scoring mode and the best-post ranking.
func CalculatePoints(post feed.Post, kw Keywords) Breakdown {
	b := Breakdown{
		Base:       basePoints(post.Type),
		Engagement: engagementBonus(post.Metrics),
		Quality:    qualityBonus(post, kw),
		Official:   officialBonus(post, kw),
	}
	b.Total = b.Base + b.Engagement + b.Quality + b.Official
	return b
}

// basePoints values authored content above reposts: originals and quotes
// earn 5, replies 3, retweets 2.
func basePoints(t feed.PostType) float64 {
	switch t {
	case feed.TypeOriginal, feed.TypeQuote:
		return 5
	case feed.TypeReply:
		return 3
	case feed.TypeRetweet:
		return 2
	}
	return 0
}

func engagementBonus(m feed.Metrics) float64 {
	bonus := likeTierBonus(m.Likes)
	bonus += capped(float64(m.Retweets)*2, 30)
	bonus += capped(float64(m.Replies)*1.5, 20)
	bonus += capped(float64(m.Quotes)*3, 25)
	return bonus
}

// likeTierBonus is a step function of the like count. Tier boundaries
// are closed on the lower bound: 5 likes lands in the >=5 tier.
func likeTierBonus(likes int) float64 {
	switch {
	case likes <= 0:
		return 0
	case likes < 5:
		return 1
	case likes < 10:
		return 3
	case likes < 20:
		return 5
	case likes < 50:
		return 7
	case likes < 100:
		return 10
	default:
		return 15
	}
}

func qualityBonus(post feed.Post, kw Keywords) float64 {
	var bonus float64
	if len(post.Text) > 100 {
		bonus += 2
	}

	matching := 0
	for _, tag := range post.Hashtags {
		if kw.MatchesBrand(tag) {
			matching++
		}
	}
	bonus += capped(float64(matching)*3, 10)
	return bonus
}

func officialBonus(post feed.Post, kw Keywords) float64 {
	var bonus float64
	for _, mention := range post.Mentions {
		if kw.IsOfficialMention(mention) {
			bonus += 5
			break
		}
	}
	if kw.IsOfficialAccount(post.AuthorUsername) {
		bonus += 10
	}
	return bonus
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
