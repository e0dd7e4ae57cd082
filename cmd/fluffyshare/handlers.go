package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluffybears/fluffyshare/internal/config"
	"github.com/fluffybears/fluffyshare/internal/scheduler"
	"github.com/fluffybears/fluffyshare/internal/store"
	"github.com/fluffybears/fluffyshare/pkg/alert"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
	"github.com/fluffybears/fluffyshare/pkg/server"
)

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runIngest(paths []string) error {
	log := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := scheduler.New(db, cfg, nil, log)
	if err != nil {
		return err
	}

	skipped, err := runner.Ingest(context.Background(), paths)
	if err != nil {
		return err
	}

	total, err := db.CountPosts(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "ingested %d files, %d records skipped, %d posts in log\n", len(paths), skipped, total)
	return nil
}

func runRecompute() error {
	log := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := scheduler.New(db, cfg, buildAlertManager(cfg), log)
	if err != nil {
		return err
	}

	snap, err := runner.RunOnce(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "snapshot published: %d users, %d posts, %d skipped\n",
		snap.Stats.TotalUsers, snap.Stats.TotalPosts, snap.Stats.SkippedPosts)
	return nil
}

func runLeaderboard(window string, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	days, err := leaderboard.ParseWindow(window)
	if err != nil {
		return err
	}
	if limit == 0 {
		limit = cfg.Leaderboard.DefaultLimit
	}
	if limit < 1 || limit > cfg.Leaderboard.MaxLimit {
		return fmt.Errorf("%w: %d (must be 1..%d)", leaderboard.ErrInvalidLimit, limit, cfg.Leaderboard.MaxLimit)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.LatestSnapshot(context.Background())
	if err != nil {
		return err
	}

	entries := snap.Windows[leaderboard.WindowKey(days)]
	if len(entries) > limit {
		entries = entries[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("leaderboard is empty for this window")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSERNAME\tSCORE\tPOSTS\tAVG\tBONUS\tVERIFIED")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t@%s\t%.1f\t%d\t%.1f\t%.2fx\t%t\n",
			e.Rank, e.Username, e.TotalScore, e.PostCount, e.AvgScore, e.BonusMultiplier, e.Verified)
	}
	return w.Flush()
}

func runExport(window, out string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	days, err := leaderboard.ParseWindow(window)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.LatestSnapshot(context.Background())
	if err != nil {
		return err
	}

	dest := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		dest = f
	}

	return leaderboard.WriteCSV(dest, snap.Windows[leaderboard.WindowKey(days)])
}

func runServe(port int) error {
	log := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return server.New(db, cfg, log).Start(ctx)
}

func runDaemon(port int) error {
	log := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := scheduler.New(db, cfg, buildAlertManager(cfg), log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Aggregation loop stopped unexpectedly")
		}
	}()

	return server.New(db, cfg, log).Start(ctx)
}
