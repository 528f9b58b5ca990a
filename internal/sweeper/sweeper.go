// Package sweeper reconciles generation state that request-driven paths
// left behind: due retries, stale in-flight work, and records whose locale
// or content no longer exists.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"glot/internal/content"
	"glot/internal/genstate"
	"glot/internal/issuer"
	"glot/internal/l10n"
	"glot/internal/logging"
	"glot/internal/services"
)

// Options wires a Sweeper.
type Options struct {
	States *genstate.Store
	Source content.Source
	Issuer *issuer.Issuer

	Interval      time.Duration
	BatchSize     int
	MaxAttempts   int
	StaleInFlight time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration

	Logger *slog.Logger
}

// Sweeper periodically re-issues overdue generation work.
type Sweeper struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New validates options and builds a sweeper.
func New(opts Options) (*Sweeper, error) {
	switch {
	case opts.States == nil || opts.Source == nil || opts.Issuer == nil:
		return nil, services.Wrap(services.ErrConfiguration, "sweeper", "new", "stores and issuer are required", nil)
	case opts.Interval <= 0 || opts.BatchSize < 1:
		return nil, services.Wrap(services.ErrConfiguration, "sweeper", "new", "interval and batch size must be positive", nil)
	case opts.MaxAttempts < 1 || opts.BackoffBase <= 0 || opts.BackoffCap < opts.BackoffBase:
		return nil, services.Wrap(services.ErrConfiguration, "sweeper", "new", "retry policy is invalid", nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Sweeper{opts: opts, logger: opts.Logger, now: time.Now}, nil
}

// Stats summarizes one sweep cycle.
type Stats struct {
	Scanned    int
	Exhausted  int
	Superseded int
	Demoted    int
	Reissued   int
	Errors     int
}

// Run sweeps on the configured interval until the context is canceled. One
// sweep runs immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		stats, err := s.SweepOnce(ctx)
		if err != nil {
			s.logger.Error("sweep failed", logging.Error(err))
		} else if stats.Scanned > 0 {
			s.logger.Info("sweep complete",
				logging.Int("scanned", stats.Scanned),
				logging.Int("reissued", stats.Reissued),
				logging.Int("exhausted", stats.Exhausted),
				logging.Int("superseded", stats.Superseded),
				logging.Int("errors", stats.Errors),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce processes one batch of due records. Terminal conditions are
// settled in place; everything else funnels back through the issuer so the
// skip rules stay in one place.
func (s *Sweeper) SweepOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	records, err := s.opts.States.ListDue(ctx, s.now(), s.opts.StaleInFlight, s.opts.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(records)
	if len(records) == 0 {
		return stats, nil
	}

	localeCache := make(map[string]map[string]bool)
	reissue := make(map[string]struct{})

	for _, rec := range records {
		if rec.Status == genstate.StatusFailed && rec.AttemptsExhausted(s.opts.MaxAttempts) {
			if _, err := s.opts.States.ForceFail(ctx, rec.Key, genstate.RetryExhaustedPrefix+" "+rec.LastError); err != nil {
				s.logger.Warn("force fail", logging.String("content_id", rec.ContentID), logging.Error(err))
				stats.Errors++
				continue
			}
			stats.Exhausted++
			continue
		}

		if rec.WorkspaceID == "" || rec.WidgetType == "" {
			s.demote(ctx, &rec, "missing job metadata")
			stats.Demoted++
			continue
		}

		active, err := s.activeLocales(ctx, rec.WorkspaceID, localeCache)
		if err != nil {
			s.logger.Warn("resolve locales", logging.String("workspace_id", rec.WorkspaceID), logging.Error(err))
			stats.Errors++
			continue
		}
		if !active[rec.Locale] {
			if _, err := s.opts.States.SupersedeLocale(ctx, rec.ContentID, l10n.LayerLocale, rec.Locale, genstate.ReasonLocaleNotSelected); err != nil {
				s.logger.Warn("supersede locale", logging.String("content_id", rec.ContentID), logging.Error(err))
				stats.Errors++
				continue
			}
			stats.Superseded++
			continue
		}

		reissue[rec.ContentID] = struct{}{}
	}

	for contentID := range reissue {
		res, err := s.opts.Issuer.Enqueue(ctx, contentID, false)
		switch {
		case errors.Is(err, services.ErrNotFound):
			// The issuer already retired state for vanished content.
		case errors.Is(err, services.ErrDenied):
			s.logger.Info("reissue denied by budget", logging.String("content_id", contentID))
		case err != nil:
			s.logger.Warn("reissue", logging.String("content_id", contentID), logging.Error(err))
			stats.Errors++
		default:
			stats.Reissued += len(res.Enqueued)
		}
	}
	return stats, nil
}

func (s *Sweeper) activeLocales(ctx context.Context, workspaceID string, cache map[string]map[string]bool) (map[string]bool, error) {
	if set, ok := cache[workspaceID]; ok {
		return set, nil
	}
	locales, err := s.opts.Source.ActiveLocales(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(locales))
	for _, locale := range locales {
		set[locale] = true
	}
	cache[workspaceID] = set
	return set, nil
}

func (s *Sweeper) demote(ctx context.Context, rec *genstate.Record, message string) {
	next := genstate.NextAttempt(s.now(), rec.Attempts+1, s.opts.BackoffBase, s.opts.BackoffCap)
	if _, err := s.opts.States.MarkFailed(ctx, rec.Key, message, &next); err != nil {
		s.logger.Warn("demote", logging.String("content_id", rec.ContentID), logging.Error(err))
	}
}
