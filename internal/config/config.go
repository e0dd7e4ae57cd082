package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
	"github.com/fluffybears/fluffyshare/pkg/scoring"
)

// Scoring modes for the aggregation run.
const (
	ModeDecay  = "decay"  // decay & cap engine (production leaderboard)
	ModePoints = "points" // raw point breakdown totals
)

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Brand       BrandConfig       `yaml:"brand"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Server      ServerConfig      `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the batch recompute interval.
type ScheduleConfig struct {
	RecomputeInterval string `yaml:"recompute_interval"`
}

// ParseRecomputeInterval returns the recompute interval as a Duration.
func (s ScheduleConfig) ParseRecomputeInterval() time.Duration {
	d, err := time.ParseDuration(s.RecomputeInterval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// BrandConfig is the brand keyword surface the quality and official
// bonuses match against.
type BrandConfig struct {
	Keywords       []string `yaml:"keywords"`
	OfficialHandle string   `yaml:"official_handle"`
}

// ScoringConfig selects the scoring mode and carries the decay & cap
// engine parameters.
type ScoringConfig struct {
	Mode   string         `yaml:"mode"`
	Params scoring.Params `yaml:"params"`
}

// LeaderboardConfig configures result shaping.
type LeaderboardConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	TrendingTopN int `yaml:"trending_top_n"`
	MinQuality   int `yaml:"min_quality_engagement"`
}

// IngestConfig lists post export files read on each scheduled run.
type IngestConfig struct {
	Paths []string `yaml:"paths"`
}

// AlertsConfig configures snapshot publish notifications.
type AlertsConfig struct {
	TopEntries int           `yaml:"top_entries"`
	Slack      SlackConfig   `yaml:"slack"`
	Discord    DiscordConfig `yaml:"discord"`
	Webhook    WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                 int `yaml:"port"`
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./fluffyshare.db"},
		Schedule: ScheduleConfig{RecomputeInterval: "30m"},
		Brand: BrandConfig{
			Keywords:       []string{"fluffybears", "fluffy"},
			OfficialHandle: "FluffyBears",
		},
		Scoring: ScoringConfig{
			Mode:   ModeDecay,
			Params: scoring.DefaultParams(),
		},
		Leaderboard: LeaderboardConfig{
			DefaultLimit: 50,
			MaxLimit:     leaderboard.DefaultMaxLimit,
			TrendingTopN: 10,
			MinQuality:   10,
		},
		Alerts: AlertsConfig{TopEntries: 5},
		Server: ServerConfig{
			Port:                 8080,
			MaxRequestsPerMinute: 120,
		},
	}
}

// Load reads configuration from a YAML file, applies .env and
// environment overrides, and validates the result. Invalid parameters
// fail the run here, before any batch starts.
func Load(path string) (*Config, error) {
	// Optional .env next to the binary; absence is not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration surface. Errors here are
// configuration errors: the run fails at startup, nothing is clamped.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := time.ParseDuration(c.Schedule.RecomputeInterval); err != nil {
		return fmt.Errorf("schedule.recompute_interval: %w", err)
	}
	switch c.Scoring.Mode {
	case ModeDecay, ModePoints:
	default:
		return fmt.Errorf("scoring.mode must be %q or %q, got %q", ModeDecay, ModePoints, c.Scoring.Mode)
	}
	if err := c.Scoring.Params.Validate(); err != nil {
		return err
	}
	if c.Leaderboard.MaxLimit < 1 {
		return fmt.Errorf("leaderboard.max_limit must be positive, got %d", c.Leaderboard.MaxLimit)
	}
	if c.Leaderboard.DefaultLimit < 1 || c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return fmt.Errorf("leaderboard.default_limit must be 1..%d, got %d", c.Leaderboard.MaxLimit, c.Leaderboard.DefaultLimit)
	}
	if c.Leaderboard.TrendingTopN < 1 {
		return fmt.Errorf("leaderboard.trending_top_n must be positive, got %d", c.Leaderboard.TrendingTopN)
	}
	if c.Leaderboard.MinQuality < 0 {
		return fmt.Errorf("leaderboard.min_quality_engagement must be non-negative, got %d", c.Leaderboard.MinQuality)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("server.max_requests_per_minute must be positive, got %d", c.Server.MaxRequestsPerMinute)
	}
	if c.Alerts.TopEntries < 1 {
		return fmt.Errorf("alerts.top_entries must be positive, got %d", c.Alerts.TopEntries)
	}
	return nil
}

// Keywords builds the scoring keyword set from the brand configuration.
func (c *Config) Keywords() scoring.Keywords {
	return scoring.NewKeywords(c.Brand.Keywords, c.Brand.OfficialHandle)
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLUFFYSHARE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FLUFFYSHARE_OFFICIAL_HANDLE"); v != "" {
		cfg.Brand.OfficialHandle = v
	}
	if v := os.Getenv("FLUFFYSHARE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
