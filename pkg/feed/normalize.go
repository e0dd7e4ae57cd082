package feed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RawRecord is one post as delivered by an upstream export. Different
// sources use different field names and shapes; the Normalizer resolves
// them through per-attribute alias lists so the engine never sees a raw
// shape.
type RawRecord map[string]any

// Field alias lists, in priority order. The first alias present in a
// record wins.
var (
	idAliases        = []string{"id", "id_str", "tweet_id", "post_id"}
	authorIDAliases  = []string{"author_id", "user_id", "userId"}
	usernameAliases  = []string{"author_username", "username", "screen_name", "user", "handle"}
	verifiedAliases  = []string{"author_verified", "verified", "is_verified"}
	textAliases      = []string{"text", "full_text", "content", "body", "message"}
	typeAliases      = []string{"type", "tweet_type", "post_type", "kind"}
	createdAliases   = []string{"created_at", "createdAt", "timestamp", "date", "time"}
	likesAliases     = []string{"likes", "like_count", "favorite_count", "favorites"}
	retweetsAliases  = []string{"retweets", "retweet_count", "shares", "reposts"}
	repliesAliases   = []string{"replies", "reply_count", "comments"}
	quotesAliases    = []string{"quotes", "quote_count"}
	viewsAliases     = []string{"views", "view_count", "impressions", "impression_count"}
	hashtagsAliases  = []string{"hashtags", "tags"}
	mentionsAliases  = []string{"mentions", "user_mentions"}
	botScoreAliases  = []string{"bot_score", "botScore", "bot_probability"}
	followersAliases = []string{"follower_count", "followers", "followers_count"}
)

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@(\w+)`)
)

// Skipped describes one raw record the Normalizer rejected.
type Skipped struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Result is the outcome of normalizing a batch of raw records.
type Result struct {
	Posts   []Post
	Skipped []Skipped
}

// Normalizer maps heterogeneous raw records into canonical Posts.
// A malformed record is skipped and reported, never fatal to the batch.
type Normalizer struct {
	log *logrus.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize converts a batch of raw records. The returned Result lists
// every record that could not be normalized along with the reason.
func (n *Normalizer) Normalize(records []RawRecord) Result {
	res := Result{Posts: make([]Post, 0, len(records))}

	for i, rec := range records {
		post, err := n.normalizeOne(rec)
		if err != nil {
			id, _ := lookupString(rec, idAliases)
			res.Skipped = append(res.Skipped, Skipped{Index: i, ID: id, Reason: err.Error()})
			n.log.WithFields(logrus.Fields{
				"index":  i,
				"id":     id,
				"reason": err.Error(),
			}).Warn("Skipping malformed post record")
			continue
		}
		res.Posts = append(res.Posts, post)
	}

	return res
}

func (n *Normalizer) normalizeOne(rec RawRecord) (Post, error) {
	id, ok := lookupString(rec, idAliases)
	if !ok || id == "" {
		return Post{}, fmt.Errorf("missing post id")
	}

	username, ok := lookupString(rec, usernameAliases)
	if !ok || username == "" {
		return Post{}, fmt.Errorf("missing author username")
	}

	createdAt, ok := lookupTime(rec, createdAliases)
	if !ok {
		return Post{}, fmt.Errorf("missing or unparseable creation time")
	}

	text, _ := lookupString(rec, textAliases)

	post := Post{
		ID:             id,
		AuthorUsername: strings.TrimPrefix(username, "@"),
		Text:           text,
		Type:           resolveType(rec, text),
		CreatedAt:      createdAt.UTC(),
		IngestedAt:     time.Now().UTC(),
	}

	if v, ok := lookupString(rec, authorIDAliases); ok {
		post.AuthorID = v
	}
	if v, ok := lookupBool(rec, verifiedAliases); ok {
		post.AuthorVerified = v
	}

	post.Metrics = Metrics{
		Likes:    lookupCount(rec, likesAliases),
		Retweets: lookupCount(rec, retweetsAliases),
		Replies:  lookupCount(rec, repliesAliases),
		Quotes:   lookupCount(rec, quotesAliases),
		Views:    1, // avoids division by zero downstream
	}
	if v, ok := lookupInt(rec, viewsAliases); ok && v > 0 {
		post.Metrics.Views = v
	}

	if tags, ok := lookupStrings(rec, hashtagsAliases); ok {
		post.Hashtags = cleanTags(tags, "#")
	} else {
		post.Hashtags = extractTags(text, hashtagRe)
	}
	if mentions, ok := lookupStrings(rec, mentionsAliases); ok {
		post.Mentions = cleanTags(mentions, "@")
	} else {
		post.Mentions = extractTags(text, mentionRe)
	}

	if v, ok := lookupFloat(rec, botScoreAliases); ok {
		if v < 0 || v > 1 {
			// Out-of-range optional field is treated as absent.
			n.log.WithFields(logrus.Fields{"id": id, "bot_score": v}).Debug("Ignoring out-of-range bot score")
		} else {
			post.BotScore = v
		}
	}
	if v, ok := lookupInt(rec, followersAliases); ok && v > 0 {
		post.FollowerCount = v
	}

	return post, nil
}

// resolveType picks the post type from an explicit field when present,
// otherwise infers it from structural hints. An explicit but unrecognized
// value is preserved as-is so the scoring engine can reject and report it.
func resolveType(rec RawRecord, text string) PostType {
	if raw, ok := lookupString(rec, typeAliases); ok && raw != "" {
		t := PostType(strings.ToLower(strings.TrimSpace(raw)))
		switch t {
		case "rt":
			return TypeRetweet
		case "tweet", "post", "status":
			return TypeOriginal
		}
		return t
	}

	if v, ok := lookupBool(rec, []string{"is_retweet", "retweeted"}); ok && v {
		return TypeRetweet
	}
	if v, ok := lookupBool(rec, []string{"is_quote", "is_quote_status"}); ok && v {
		return TypeQuote
	}
	if v, ok := lookupString(rec, []string{"in_reply_to", "in_reply_to_status_id", "in_reply_to_user_id"}); ok && v != "" {
		return TypeReply
	}
	if strings.HasPrefix(text, "RT @") {
		return TypeRetweet
	}
	return TypeOriginal
}

func lookup(rec RawRecord, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := rec[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(rec RawRecord, aliases []string) (string, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}

func lookupBool(rec RawRecord, aliases []string) (bool, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(b))
		return parsed, err == nil
	}
	return false, false
}

func lookupInt(rec RawRecord, aliases []string) (int, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// lookupCount is lookupInt with missing and negative values collapsed to
// zero, the default for engagement counters.
func lookupCount(rec RawRecord, aliases []string) int {
	v, ok := lookupInt(rec, aliases)
	if !ok || v < 0 {
		return 0
	}
	return v
}

func lookupFloat(rec RawRecord, aliases []string) (float64, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RubyDate, // Twitter API classic created_at format
}

func lookupTime(rec RawRecord, aliases []string) (time.Time, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case float64:
		return time.Unix(int64(t), 0), true
	case int64:
		return time.Unix(t, 0), true
	case string:
		s := strings.TrimSpace(t)
		if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(unix, 0), true
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func lookupStrings(rec RawRecord, aliases []string) ([]string, bool) {
	v, ok := lookup(rec, aliases)
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		if list == "" {
			return nil, true
		}
		parts := strings.Split(list, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, true
	}
	return nil, false
}

// cleanTags strips the given prefix and drops empties, preserving order.
func cleanTags(tags []string, prefix string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimPrefix(strings.TrimSpace(tag), prefix)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// extractTags pulls hashtags or mentions out of the post text when the
// source did not deliver them as a structured field.
func extractTags(text string, re *regexp.Regexp) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
