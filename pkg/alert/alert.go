package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
)

// Notification announces a freshly published leaderboard snapshot.
type Notification struct {
	Title      string              `json:"title"`
	Body       string              `json:"body"`
	Window     string              `json:"window"`
	TopEntries []leaderboard.Entry `json:"top_entries"`
	Stats      leaderboard.Stats   `json:"stats"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. One
// failing destination does not stop delivery to the others.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromSnapshot builds the publish notification for a snapshot, carrying
// the top entries of the given window.
func FromSnapshot(snap *leaderboard.Snapshot, window string, topN int) *Notification {
	entries := snap.Windows[window]
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return &Notification{
		Title:  "New engagement leaderboard published",
		Window: window,
		Body: fmt.Sprintf("%d accounts ranked from %d posts (%s window)",
			snap.Stats.TotalUsers, snap.Stats.TotalPosts, window),
		TopEntries: entries,
		Stats:      snap.Stats,
	}
}
