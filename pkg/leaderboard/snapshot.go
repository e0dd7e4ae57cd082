package leaderboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stats summarizes one aggregation run.
type Stats struct {
	TotalUsers      int `json:"total_users"`
	TotalPosts      int `json:"total_posts"`
	TotalEngagement int `json:"total_engagement"`
	SkippedPosts    int `json:"skipped_posts"`
}

// Snapshot is one complete published generation: every supported window,
// ranked, plus run stats. Readers always see a whole snapshot or the
// previous whole snapshot, never a mix.
type Snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Windows     map[string][]Entry `json:"windows"`
	Stats       Stats              `json:"stats"`
}

// WindowKey renders a window in days as its snapshot key ("7d").
func WindowKey(days int) string {
	return strconv.Itoa(days) + "d"
}

// ParseWindow resolves a snapshot key back to days, rejecting anything
// outside the supported set.
func ParseWindow(key string) (int, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(key)), "d")
	days, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, key)
	}
	if !WindowSupported(days) {
		return 0, fmt.Errorf("%w: %q (supported: %v)", ErrInvalidWindow, key, SupportedWindows)
	}
	return days, nil
}
