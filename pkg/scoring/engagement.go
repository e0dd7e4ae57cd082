package scoring

import (
	"sort"
	"strings"

	"github.com/fluffybears/fluffyshare/pkg/feed"
)

// EngagementRate returns interactions per hundred views. Display and
// tie-break signal only, never part of a point total.
func EngagementRate(post feed.Post) float64 {
	views := post.Metrics.Views
	if views < 1 {
		views = 1
	}
	return 100 * float64(post.Metrics.Total()) / float64(views)
}

// FilterQuality keeps posts whose combined interaction count meets the
// threshold.
func FilterQuality(posts []feed.Post, minEngagement int) []feed.Post {
	out := make([]feed.Post, 0, len(posts))
	for _, post := range posts {
		if post.Metrics.Total() >= minEngagement {
			out = append(out, post)
		}
	}
	return out
}

// HashtagCount is one entry of a trending-hashtags ranking.
type HashtagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TrendingHashtags counts hashtag occurrences across the posts and
// returns the top N by frequency. Counting is case-insensitive; the
// first-seen spelling is reported and ties keep first-seen order.
func TrendingHashtags(posts []feed.Post, topN int) []HashtagCount {
	if topN <= 0 {
		return nil
	}

	counts := make(map[string]int)
	spelling := make(map[string]string)
	firstSeen := make(map[string]int)
	order := 0

	for _, post := range posts {
		for _, tag := range post.Hashtags {
			key := strings.ToLower(tag)
			if _, seen := counts[key]; !seen {
				spelling[key] = tag
				firstSeen[key] = order
				order++
			}
			counts[key]++
		}
	}

	ranked := make([]HashtagCount, 0, len(counts))
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return firstSeen[keys[i]] < firstSeen[keys[j]]
	})

	for _, key := range keys {
		ranked = append(ranked, HashtagCount{Tag: spelling[key], Count: counts[key]})
		if len(ranked) == topN {
			break
		}
	}
	return ranked
}
