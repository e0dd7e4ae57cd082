package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluffybears/fluffyshare/internal/config"
	"github.com/fluffybears/fluffyshare/internal/store"
	"github.com/fluffybears/fluffyshare/pkg/alert"
	"github.com/fluffybears/fluffyshare/pkg/feed"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
	"github.com/fluffybears/fluffyshare/pkg/scoring"
)

// Runner executes aggregation batches: ingest configured exports,
// recompute every leaderboard window from the raw post log, and publish
// the result as one atomic snapshot. Each run is stateless; the published
// snapshot and the watermark are the only state shared across runs.
type Runner struct {
	store      store.Store
	cfg        *config.Config
	engine     *scoring.Engine
	normalizer *feed.Normalizer
	aggregator *leaderboard.Aggregator
	alerts     *alert.Manager
	log        *logrus.Logger
}

// New wires a Runner from validated configuration.
func New(st store.Store, cfg *config.Config, alerts *alert.Manager, log *logrus.Logger) (*Runner, error) {
	engine, err := scoring.NewEngine(cfg.Scoring.Params, log)
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:      st,
		cfg:        cfg,
		engine:     engine,
		normalizer: feed.NewNormalizer(log),
		aggregator: leaderboard.NewAggregator(cfg.Keywords()),
		alerts:     alerts,
		log:        log,
	}, nil
}

// Run starts the periodic batch loop. An initial run fires immediately;
// the loop blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.Schedule.ParseRecomputeInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.WithField("interval", interval.String()).Info("Starting aggregation loop")
	if _, err := r.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Error("Aggregation run failed")
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Aggregation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.WithError(err).Error("Aggregation run failed")
			}
		}
	}
}

// RunOnce executes one full batch: ingest, recompute, publish, notify.
func (r *Runner) RunOnce(ctx context.Context) (*leaderboard.Snapshot, error) {
	ingestSkipped, err := r.Ingest(ctx, r.cfg.Ingest.Paths)
	if err != nil {
		return nil, err
	}

	snap, err := r.Recompute(ctx, time.Now().UTC(), ingestSkipped)
	if err != nil {
		return nil, err
	}

	r.notify(ctx, snap)
	return snap, nil
}

// Ingest reads the given export files, normalizes their records and
// appends new posts to the raw log. Malformed records are skipped and
// reported; a file that cannot be read at all fails the run. Returns the
// number of records skipped by the Normalizer.
func (r *Runner) Ingest(ctx context.Context, paths []string) (int, error) {
	skippedTotal := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		records, err := feed.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("ingest %s: %w", path, err)
		}

		res := r.normalizer.Normalize(records)
		added, err := r.store.AppendPosts(ctx, res.Posts)
		if err != nil {
			return 0, fmt.Errorf("ingest %s: %w", path, err)
		}

		skippedTotal += len(res.Skipped)
		r.log.WithFields(logrus.Fields{
			"path":    path,
			"records": len(records),
			"new":     added,
			"skipped": len(res.Skipped),
		}).Info("Ingested export")
	}
	return skippedTotal, nil
}

// Recompute rebuilds every window from the full raw log relative to now
// and publishes the snapshot atomically. The watermark advances inside
// the same transaction, so a crash before publish reprocesses the same
// data instead of losing it. Recomputing an unchanged log with the same
// reference time yields an identical snapshot.
func (r *Runner) Recompute(ctx context.Context, now time.Time, ingestSkipped int) (*leaderboard.Snapshot, error) {
	posts, err := r.store.ListPosts(ctx, store.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("read raw post log: %w", err)
	}

	scored, scoringSkipped, err := r.scorePosts(ctx, posts, now)
	if err != nil {
		return nil, err
	}

	activity := r.aggregator.Aggregate(scored)

	builder := leaderboard.NewBuilder(now, r.cfg.Leaderboard.MaxLimit)
	windows := make(map[string][]leaderboard.Entry, len(leaderboard.SupportedWindows))
	for _, days := range leaderboard.SupportedWindows {
		entries, err := builder.Build(activity, r.engine.BonusMultiplier, days, r.cfg.Leaderboard.MaxLimit)
		if err != nil {
			return nil, fmt.Errorf("build %dd leaderboard: %w", days, err)
		}
		windows[leaderboard.WindowKey(days)] = entries
	}

	totalEngagement := 0
	for _, acct := range activity {
		totalEngagement += acct.TotalEngagement
	}

	snap := &leaderboard.Snapshot{
		GeneratedAt: now,
		Windows:     windows,
		Stats: leaderboard.Stats{
			TotalUsers:      len(activity),
			TotalPosts:      len(scored),
			TotalEngagement: totalEngagement,
			SkippedPosts:    ingestSkipped + scoringSkipped,
		},
	}

	if err := r.store.PublishSnapshot(ctx, snap, now); err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"total_users":   snap.Stats.TotalUsers,
		"total_posts":   snap.Stats.TotalPosts,
		"skipped_posts": snap.Stats.SkippedPosts,
		"generated_at":  snap.GeneratedAt.Format(time.RFC3339),
	}).Info("Published leaderboard snapshot")
	return snap, nil
}

// scorePosts applies the configured scoring mode. Decay mode runs the
// decay & cap engine; points mode sums raw point breakdowns. Unknown
// post types are excluded and counted in both modes.
func (r *Runner) scorePosts(ctx context.Context, posts []feed.Post, now time.Time) ([]scoring.ScoredPost, int, error) {
	if r.cfg.Scoring.Mode == config.ModeDecay {
		return r.engine.ScoreAll(ctx, posts, now)
	}

	kw := r.cfg.Keywords()
	scored := make([]scoring.ScoredPost, 0, len(posts))
	skipped := 0
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if !feed.KnownType(post.Type) {
			skipped++
			r.log.WithFields(logrus.Fields{
				"post_id": post.ID,
				"type":    post.Type,
			}).Warn("Excluding post with unknown type")
			continue
		}
		scored = append(scored, scoring.ScoredPost{
			Post:  post,
			Score: scoring.CalculatePoints(post, kw).Total,
		})
	}
	return scored, skipped, nil
}

// notify broadcasts the publish notification when destinations are
// configured. Delivery failures are logged, never fatal to the batch.
func (r *Runner) notify(ctx context.Context, snap *leaderboard.Snapshot) {
	if r.alerts == nil || !r.alerts.HasNotifiers() {
		return
	}

	window := leaderboard.WindowKey(leaderboard.SupportedWindows[0])
	n := alert.FromSnapshot(snap, window, r.cfg.Alerts.TopEntries)
	if err := r.alerts.Broadcast(ctx, n); err != nil {
		r.log.WithError(err).Warn("Snapshot notification failed")
	}
}
