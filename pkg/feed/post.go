package feed

import (
	"time"
)

// PostType identifies how a post relates to its content.
type PostType string

const (
	TypeOriginal PostType = "original"
	TypeQuote    PostType = "quote"
	TypeRetweet  PostType = "retweet"
	TypeReply    PostType = "reply"
)

// KnownType reports whether t is one of the four recognized post types.
func KnownType(t PostType) bool {
	switch t {
	case TypeOriginal, TypeQuote, TypeRetweet, TypeReply:
		return true
	}
	return false
}

// AllPostTypes returns all recognized post types.
func AllPostTypes() []PostType {
	return []PostType{TypeOriginal, TypeQuote, TypeRetweet, TypeReply}
}

// Metrics holds the public engagement counters of a post.
// Missing counters default to zero; Views defaults to 1 so rate
// calculations never divide by zero.
type Metrics struct {
	Likes    int `json:"likes" db:"likes"`
	Retweets int `json:"retweets" db:"retweets"`
	Replies  int `json:"replies" db:"replies"`
	Quotes   int `json:"quotes" db:"quotes"`
	Views    int `json:"views" db:"views"`
}

// Total returns the sum of all interaction counters (views excluded).
func (m Metrics) Total() int {
	return m.Likes + m.Retweets + m.Replies + m.Quotes
}

// Post is the canonical, immutable record every raw source shape is
// normalized into. The raw feed is an append-only log; a Post is never
// mutated after normalization.
type Post struct {
	ID             string    `json:"id" db:"id"`
	AuthorID       string    `json:"author_id" db:"author_id"`
	AuthorUsername string    `json:"author_username" db:"author_username"`
	AuthorVerified bool      `json:"author_verified" db:"author_verified"`
	Text           string    `json:"text" db:"text"`
	Type           PostType  `json:"type" db:"type"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	Metrics        Metrics   `json:"metrics"`
	Hashtags       []string  `json:"hashtags" db:"-"`
	Mentions       []string  `json:"mentions" db:"-"`
	BotScore       float64   `json:"bot_score" db:"bot_score"`
	FollowerCount  int       `json:"follower_count" db:"follower_count"`
	IngestedAt     time.Time `json:"ingested_at" db:"ingested_at"`
}
