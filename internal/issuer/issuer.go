package issuer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"glot/internal/budget"
	"glot/internal/capability"
	"glot/internal/content"
	"glot/internal/genstate"
	"glot/internal/jobqueue"
	"glot/internal/l10n"
	"glot/internal/logging"
	"glot/internal/overlay"
	"glot/internal/policy"
	"glot/internal/services"
	"glot/internal/snapshot"
)

// AgentID identifies the translation agent in capability grants.
const AgentID = "agent_l10n"

// Per-locale skip reasons reported in Result.Skipped.
const (
	SkipAlreadySucceeded = "already_succeeded"
	SkipInFlight         = "in_flight"
	SkipBackoffPending   = "backoff_pending"
	SkipRetryExhausted   = "retry_exhausted"
	SkipNothingToDo      = "nothing_to_translate"
)

// Options wires an Issuer. Every dependency is required except Logger and
// ResolvePolicy, which default to a nop logger and the free tier.
type Options struct {
	Source    content.Source
	Snapshots *snapshot.Store
	States    *genstate.Store
	Overlays  *overlay.Store
	Gate      *budget.Gate
	Grants    *capability.Issuer
	Queue     jobqueue.Queue

	// ResolvePolicy maps a workspace onto its entitlements.
	ResolvePolicy func(workspaceID string) policy.Policy

	TranslateSubject string
	// CanonicalLocale never counts against the workspace locale cap.
	CanonicalLocale string
	MaxAttempts     int
	StaleInFlight   time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration

	Logger *slog.Logger
}

// Issuer plans and enqueues translation work for changed content.
type Issuer struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New validates options and builds an issuer.
func New(opts Options) (*Issuer, error) {
	switch {
	case opts.Source == nil:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "content source is required", nil)
	case opts.Snapshots == nil || opts.States == nil || opts.Overlays == nil:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "stores are required", nil)
	case opts.Gate == nil:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "budget gate is required", nil)
	case opts.Grants == nil:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "grant issuer is required", nil)
	case opts.Queue == nil:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "job queue is required", nil)
	case opts.TranslateSubject == "":
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "translate subject is required", nil)
	case opts.MaxAttempts < 1 || opts.BackoffBase <= 0 || opts.BackoffCap < opts.BackoffBase:
		return nil, services.Wrap(services.ErrConfiguration, "issuer", "new", "retry policy is invalid", nil)
	}
	if opts.ResolvePolicy == nil {
		opts.ResolvePolicy = func(string) policy.Policy { return policy.Resolve("free", "") }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Issuer{opts: opts, logger: opts.Logger, now: time.Now}, nil
}

// Result reports what one Enqueue call did, per locale.
type Result struct {
	ContentID   string
	Fingerprint string
	Diff        snapshot.Diff

	Enqueued  []string
	Succeeded []string
	Skipped   map[string]string
	Failed    map[string]string
}

// Enqueue plans translation work for one content instance: snapshot the
// current object, retire state pinned to older fingerprints, rebase
// overlays, and hand one job per locale that still needs work to the queue.
// force bypasses the attempt ceiling and backoff schedule, not the budget.
func (i *Issuer) Enqueue(ctx context.Context, contentID string, force bool) (*Result, error) {
	info, err := i.opts.Source.Content(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "issuer", "enqueue", "load content", err)
	}
	if info == nil {
		return nil, services.Wrap(services.ErrNotFound, "issuer", "enqueue",
			fmt.Sprintf("content %s not found", contentID), nil)
	}
	if info.Status != content.StatusActive {
		// A deleted instance retires its pending work and produces none.
		if _, err := i.opts.States.Supersede(ctx, contentID, l10n.LayerLocale, "", genstate.ReasonStaleInstance); err != nil {
			return nil, err
		}
		return &Result{ContentID: contentID}, nil
	}

	allow, err := i.opts.Source.Allowlist(ctx, info.WidgetType)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "issuer", "enqueue", "load allowlist", err)
	}

	fingerprint, err := snapshot.Fingerprint(info.Object)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "issuer", "enqueue", "fingerprint content", err)
	}
	snap := snapshot.Build(info.Object, allow)

	prev, err := i.opts.Snapshots.LatestBase(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var prevSnap snapshot.Snapshot
	baseChanged := prev == nil || prev.Fingerprint != fingerprint
	if prev != nil {
		prevSnap = prev.Snapshot
	}
	diff := snapshot.Compare(prevSnap, snap)

	if baseChanged {
		if err := i.adoptBase(ctx, info, allow, fingerprint, snap); err != nil {
			return nil, err
		}
	}

	locales, err := i.opts.Source.ActiveLocales(ctx, info.WorkspaceID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "issuer", "enqueue", "load locales", err)
	}
	pol := i.opts.ResolvePolicy(info.WorkspaceID)
	if err := policy.ValidateLocaleSelection(pol, i.opts.CanonicalLocale, locales); err != nil {
		return nil, err
	}

	result := &Result{
		ContentID:   contentID,
		Fingerprint: fingerprint,
		Diff:        diff,
		Skipped:     make(map[string]string),
		Failed:      make(map[string]string),
	}

	var candidates []string
	for _, locale := range locales {
		reason, direct, err := i.planLocale(ctx, info, locale, fingerprint, diff, force)
		if err != nil {
			return nil, err
		}
		switch {
		case direct:
			result.Succeeded = append(result.Succeeded, locale)
		case reason != "":
			result.Skipped[locale] = reason
		default:
			candidates = append(candidates, locale)
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}

	consumed, err := i.opts.Gate.Consume(ctx, info.WorkspaceID, policy.BudgetGenerate,
		pol.Budget(policy.BudgetGenerate), int64(len(candidates)))
	if err != nil {
		i.logger.Warn("budget check failed, proceeding", logging.Error(err))
	} else if !consumed.OK {
		return nil, services.Wrap(services.ErrDenied, "issuer", "enqueue",
			fmt.Sprintf("generation budget exhausted for workspace %s (used %d)", info.WorkspaceID, consumed.Used), nil)
	}

	i.dispatch(ctx, info, fingerprint, diff, snap, candidates, result)

	i.logger.Info("enqueue planned",
		logging.String("content_id", contentID),
		logging.String("fingerprint", fingerprint[:12]),
		logging.Int("enqueued", len(result.Enqueued)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// adoptBase persists the new baseline, retires state for other fingerprints,
// and rebases overlays onto the new snapshot.
func (i *Issuer) adoptBase(ctx context.Context, info *content.Info, allow l10n.Allowlist, fingerprint string, snap snapshot.Snapshot) error {
	err := i.opts.Snapshots.UpsertBase(ctx, snapshot.Base{
		ContentID:     info.ID,
		Fingerprint:   fingerprint,
		Snapshot:      snap,
		BaseUpdatedAt: info.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if _, err := i.opts.States.Supersede(ctx, info.ID, l10n.LayerLocale, fingerprint, genstate.ReasonNewBase); err != nil {
		return err
	}

	paths := make(map[string]struct{}, len(snap))
	for path := range snap {
		paths[path] = struct{}{}
	}
	rebased, err := i.opts.Overlays.Rebase(ctx, info.ID, l10n.LayerLocale, fingerprint, info.UpdatedAt, allow, paths)
	if err != nil {
		return err
	}
	if len(rebased) > 0 {
		i.logger.Info("overlays rebased",
			logging.String("content_id", info.ID),
			logging.Int("locales", len(rebased)),
		)
	}
	return nil
}

// planLocale applies the per-locale skip rules at the current fingerprint.
// It returns a skip reason, or direct=true when the locale converged without
// a job.
func (i *Issuer) planLocale(ctx context.Context, info *content.Info, locale, fingerprint string, diff snapshot.Diff, force bool) (reason string, direct bool, err error) {
	key := genstate.Key{
		ContentID:       info.ID,
		Layer:           l10n.LayerLocale,
		Locale:          locale,
		BaseFingerprint: fingerprint,
	}
	rec, err := i.opts.States.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	if rec != nil && rec.Status == genstate.StatusSuperseded {
		// The record was retired while its fingerprint stayed current, as
		// when the workspace dropped the language and later re-added it.
		// Revive it here; the dirty upsert in dispatch refuses to touch
		// superseded rows.
		if _, err := i.opts.States.Reopen(ctx, key); err != nil {
			return "", false, err
		}
		rec.Status = genstate.StatusDirty
		rec.Attempts = 0
		rec.NextAttemptAt = nil
	}

	if rec != nil && !force {
		switch rec.Status {
		case genstate.StatusSucceeded:
			return SkipAlreadySucceeded, false, nil
		case genstate.StatusQueued, genstate.StatusRunning:
			if rec.LastAttemptAt != nil && i.now().Sub(*rec.LastAttemptAt) < i.opts.StaleInFlight {
				return SkipInFlight, false, nil
			}
		case genstate.StatusFailed:
			if rec.AttemptsExhausted(i.opts.MaxAttempts) {
				return SkipRetryExhausted, false, nil
			}
			if rec.NextAttemptAt != nil && rec.NextAttemptAt.After(i.now()) {
				return SkipBackoffPending, false, nil
			}
		}
	}
	if rec != nil && force && rec.Status == genstate.StatusSucceeded {
		return SkipAlreadySucceeded, false, nil
	}

	if diff.Empty() {
		ov, err := i.opts.Overlays.Get(ctx, info.ID, l10n.LayerLocale, locale)
		if err != nil {
			return "", false, err
		}
		// The rebase re-pinned converged overlays; the text itself did not
		// change, so the locale is done without an executor round trip.
		if ov != nil && ov.BaseFingerprint == fingerprint {
			err := i.opts.States.UpsertSucceeded(ctx, genstate.Record{
				Key:           key,
				WidgetType:    info.WidgetType,
				WorkspaceID:   info.WorkspaceID,
				BaseUpdatedAt: info.UpdatedAt,
			})
			if err != nil {
				return "", false, err
			}
			return "", true, nil
		}
	}
	return "", false, nil
}

// dispatch marks candidates dirty, grants and enqueues them, and records the
// per-locale outcome. Grant or send failures demote only the affected
// locales.
func (i *Issuer) dispatch(ctx context.Context, info *content.Info, fingerprint string, diff snapshot.Diff, snap snapshot.Snapshot, candidates []string, result *Result) {
	now := i.now()

	var (
		granted []string
		jobs    []any
	)
	for _, locale := range candidates {
		changed, removed, err := i.localePaths(ctx, info.ID, locale, diff, snap)
		if err != nil {
			result.Failed[locale] = err.Error()
			continue
		}
		if len(changed) == 0 && len(removed) == 0 {
			result.Skipped[locale] = SkipNothingToDo
			continue
		}

		key := genstate.Key{
			ContentID:       info.ID,
			Layer:           l10n.LayerLocale,
			Locale:          locale,
			BaseFingerprint: fingerprint,
		}
		err = i.opts.States.MarkDirty(ctx, genstate.Record{
			Key:           key,
			ChangedPaths:  changed,
			RemovedPaths:  removed,
			WidgetType:    info.WidgetType,
			WorkspaceID:   info.WorkspaceID,
			BaseUpdatedAt: info.UpdatedAt,
		})
		if err != nil {
			result.Failed[locale] = err.Error()
			continue
		}

		traceID, _ := services.TraceIDFromContext(ctx)
		grant, err := i.opts.Grants.Issue(ctx, AgentID, info.WorkspaceID, traceID)
		if err != nil {
			i.demote(ctx, key, fmt.Sprintf("grant: %v", err))
			result.Failed[locale] = err.Error()
			continue
		}

		granted = append(granted, locale)
		jobs = append(jobs, jobqueue.TranslateJob{
			ContentID:       info.ID,
			WidgetType:      info.WidgetType,
			Locale:          locale,
			BaseFingerprint: fingerprint,
			BaseUpdatedAt:   info.UpdatedAt,
			ChangedPaths:    changed,
			RemovedPaths:    removed,
			WorkspaceID:     info.WorkspaceID,
			Grant:           grant.Token,
			TraceID:         grant.TraceID,
		})
	}
	if len(jobs) == 0 {
		return
	}

	if err := i.opts.Queue.SendBatch(ctx, i.opts.TranslateSubject, jobs); err != nil {
		for _, locale := range granted {
			i.demote(ctx, genstate.Key{
				ContentID:       info.ID,
				Layer:           l10n.LayerLocale,
				Locale:          locale,
				BaseFingerprint: fingerprint,
			}, fmt.Sprintf("enqueue: %v", err))
			result.Failed[locale] = err.Error()
		}
		return
	}

	for _, locale := range granted {
		key := genstate.Key{
			ContentID:       info.ID,
			Layer:           l10n.LayerLocale,
			Locale:          locale,
			BaseFingerprint: fingerprint,
		}
		if _, err := i.opts.States.MarkQueued(ctx, key, now); err != nil {
			i.logger.Warn("mark queued failed",
				logging.String("content_id", info.ID),
				logging.String("locale", locale),
				logging.Error(err),
			)
		}
		result.Enqueued = append(result.Enqueued, locale)
	}
}

// localePaths decides what one locale must translate: the triggering diff
// when it already carries an overlay, the whole snapshot when the locale has
// never been generated.
func (i *Issuer) localePaths(ctx context.Context, contentID, locale string, diff snapshot.Diff, snap snapshot.Snapshot) (changed, removed []string, err error) {
	ov, err := i.opts.Overlays.Get(ctx, contentID, l10n.LayerLocale, locale)
	if err != nil {
		return nil, nil, err
	}
	if ov == nil {
		return snap.Paths(), nil, nil
	}
	return diff.ChangedPaths, diff.RemovedPaths, nil
}

// demote records a grant or enqueue failure as a retryable failed attempt so
// the sweeper picks the locale back up on schedule.
func (i *Issuer) demote(ctx context.Context, key genstate.Key, message string) {
	rec, err := i.opts.States.Get(ctx, key)
	attempts := 1
	if err == nil && rec != nil {
		attempts = rec.Attempts + 1
	}
	next := genstate.NextAttempt(i.now(), attempts, i.opts.BackoffBase, i.opts.BackoffCap)
	if _, err := i.opts.States.MarkFailed(ctx, key, message, &next); err != nil {
		i.logger.Warn("demote failed",
			logging.String("content_id", key.ContentID),
			logging.String("locale", key.Locale),
			logging.Error(err),
		)
	}
}
