package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fluffybears/fluffyshare/internal/config"
	"github.com/fluffybears/fluffyshare/internal/store"
	"github.com/fluffybears/fluffyshare/pkg/leaderboard"
	"github.com/fluffybears/fluffyshare/pkg/scoring"
)

// Server exposes the published snapshot over HTTP. Strictly read-only:
// every request is answered from the last complete generation, and
// invalid windows, limits or formats are rejected before the engine is
// ever involved.
type Server struct {
	store store.Store
	cfg   *config.Config
	log   *logrus.Logger
	echo  *echo.Echo
}

// New creates the API server.
func New(st store.Store, cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{store: st, cfg: cfg, log: log}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(cfg.Server.MaxRequestsPerMinute) / 60.0),
				Burst:     cfg.Server.MaxRequestsPerMinute,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/v1/leaderboard/:window", s.handleLeaderboard)
	e.GET("/api/v1/trending", s.handleTrending)
	e.GET("/api/v1/stats", s.handleStats)

	s.echo = e
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
		s.log.WithField("port", s.cfg.Server.Port).Info("Starting API server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	window := c.Param("window")
	if _, err := leaderboard.ParseWindow(window); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	windowKey := normalizeWindowKey(window)

	limit := s.cfg.Leaderboard.DefaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > s.cfg.Leaderboard.MaxLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("limit must be an integer 1..%d", s.cfg.Leaderboard.MaxLimit),
			})
		}
		limit = parsed
	}

	format := c.QueryParam("format")
	switch format {
	case "", "json", "csv":
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unsupported format %q (json or csv)", format),
		})
	}

	snap, err := s.latestSnapshot(c)
	if err != nil || snap == nil {
		return err
	}

	entries := snap.Windows[windowKey]
	if len(entries) > limit {
		entries = entries[:limit]
	}

	if format == "csv" {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=leaderboard-%s.csv", windowKey))
		c.Response().WriteHeader(http.StatusOK)
		return leaderboard.WriteCSV(c.Response(), entries)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"window":       windowKey,
		"generated_at": snap.GeneratedAt,
		"entries":      entries,
		"count":        len(entries),
	})
}

func (s *Server) handleTrending(c echo.Context) error {
	days := leaderboard.SupportedWindows[0]
	if raw := c.QueryParam("window"); raw != "" {
		parsed, err := leaderboard.ParseWindow(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		days = parsed
	}

	topN := s.cfg.Leaderboard.TrendingTopN
	if raw := c.QueryParam("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > s.cfg.Leaderboard.MaxLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("n must be an integer 1..%d", s.cfg.Leaderboard.MaxLimit),
			})
		}
		topN = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	posts, err := s.store.ListPosts(c.Request().Context(), store.ListOpts{Since: since})
	if err != nil {
		s.log.WithError(err).Error("Failed to read posts for trending")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	quality := scoring.FilterQuality(posts, s.cfg.Leaderboard.MinQuality)
	tags := scoring.TrendingHashtags(quality, topN)
	return c.JSON(http.StatusOK, map[string]any{
		"window":   leaderboard.WindowKey(days),
		"hashtags": tags,
		"count":    len(tags),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	snap, err := s.latestSnapshot(c)
	if err != nil || snap == nil {
		return err
	}

	watermark, err := s.store.Watermark(c.Request().Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to read watermark")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"generated_at":      snap.GeneratedAt,
		"last_processed_at": watermark,
		"stats":             snap.Stats,
	})
}

// latestSnapshot loads the last published generation. A missing
// snapshot is a 503, distinct from a computed-but-empty leaderboard:
// callers can tell "not yet computed" from "genuinely empty".
func (s *Server) latestSnapshot(c echo.Context) (*leaderboard.Snapshot, error) {
	snap, err := s.store.LatestSnapshot(c.Request().Context())
	if errors.Is(err, store.ErrNoSnapshot) {
		return nil, c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "leaderboard not yet computed",
		})
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to load snapshot")
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return snap, nil
}

func normalizeWindowKey(raw string) string {
	days, err := leaderboard.ParseWindow(raw)
	if err != nil {
		return raw
	}
	return leaderboard.WindowKey(days)
}
