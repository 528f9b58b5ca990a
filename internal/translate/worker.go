package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"glot/internal/capability"
	"glot/internal/content"
	"glot/internal/genstate"
	"glot/internal/jobqueue"
	"glot/internal/l10n"
	"glot/internal/logging"
	"glot/internal/overlay"
	"glot/internal/services"
	"glot/internal/snapshot"
)

// WorkerOptions wires a Worker.
type WorkerOptions struct {
	Source   content.Source
	States   *genstate.Store
	Overlays *overlay.Store
	Grants   *capability.Issuer
	Executor Executor

	// Limits caps the op payload written per overlay.
	Limits l10n.OpLimits

	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	Logger *slog.Logger
}

// Worker consumes translation jobs, calls the executor, and persists the
// validated output as overlay ops.
type Worker struct {
	opts   WorkerOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker validates options and builds a worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	switch {
	case opts.Source == nil || opts.States == nil || opts.Overlays == nil:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "stores are required", nil)
	case opts.Grants == nil:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "grant issuer is required", nil)
	case opts.Executor == nil:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "executor is required", nil)
	case opts.MaxAttempts < 1 || opts.BackoffBase <= 0 || opts.BackoffCap < opts.BackoffBase:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "retry policy is invalid", nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Worker{opts: opts, logger: opts.Logger, now: time.Now}, nil
}

// Handler adapts the worker to the queue consumer contract. Undecodable
// payloads are logged and dropped; job errors are already recorded in the
// state machine.
func (w *Worker) Handler() jobqueue.Handler {
	return func(ctx context.Context, data []byte) {
		var job jobqueue.TranslateJob
		if err := json.Unmarshal(data, &job); err != nil {
			w.logger.Error("drop undecodable job", logging.Error(err))
			return
		}
		if err := w.Process(ctx, job); err != nil {
			w.logger.Warn("translate job failed",
				logging.String("content_id", job.ContentID),
				logging.String("locale", job.Locale),
				logging.Error(err),
			)
		}
	}
}

// Process runs one translation job end to end.
func (w *Worker) Process(ctx context.Context, job jobqueue.TranslateJob) error {
	if job.ContentID == "" || job.Locale == "" || job.BaseFingerprint == "" {
		return services.Wrap(services.ErrValidation, "translate", "process", "job is missing identity fields", nil)
	}
	ctx = services.WithContentID(services.WithLocale(services.WithTraceID(ctx, job.TraceID), job.Locale), job.ContentID)

	key := genstate.Key{
		ContentID:       job.ContentID,
		Layer:           l10n.LayerLocale,
		Locale:          job.Locale,
		BaseFingerprint: job.BaseFingerprint,
	}

	claims, err := w.opts.Grants.Verify(job.Grant)
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("grant rejected: %v", err))
	}
	if claims.WorkspaceID != job.WorkspaceID {
		return w.fail(ctx, key, "grant workspace does not match job")
	}

	info, err := w.opts.Source.Content(ctx, job.ContentID)
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("load content: %v", err))
	}
	if info == nil || info.Status != content.StatusActive {
		if _, err := w.opts.States.Supersede(ctx, job.ContentID, l10n.LayerLocale, "", genstate.ReasonStaleInstance); err != nil {
			return err
		}
		return nil
	}

	allow, err := w.opts.Source.Allowlist(ctx, info.WidgetType)
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("load allowlist: %v", err))
	}
	fingerprint, err := snapshot.Fingerprint(info.Object)
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("fingerprint content: %v", err))
	}
	if fingerprint != job.BaseFingerprint {
		// The content moved on while this job sat in the queue. The work is
		// moot; the next issue cycle targets the new fingerprint.
		if _, err := w.opts.States.Supersede(ctx, job.ContentID, l10n.LayerLocale, fingerprint, genstate.ReasonNewBase); err != nil {
			return err
		}
		w.logger.Info("job superseded by newer fingerprint",
			logging.String("content_id", job.ContentID),
			logging.String("locale", job.Locale),
		)
		return nil
	}

	// Duplicate deliveries are expected from an at-least-once queue; a key
	// that already converged or was retired is dropped without side effects.
	if rec, err := w.opts.States.Get(ctx, key); err == nil && rec != nil {
		if rec.Status == genstate.StatusSucceeded || rec.Status == genstate.StatusSuperseded {
			return nil
		}
	}

	if _, err := w.opts.States.MarkRunning(ctx, key, w.now()); err != nil {
		return w.fail(ctx, key, fmt.Sprintf("mark running: %v", err))
	}

	existing, err := w.opts.Overlays.Get(ctx, job.ContentID, l10n.LayerLocale, job.Locale)
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("load overlay: %v", err))
	}
	if existing != nil && existing.BaseFingerprint == fingerprint && len(job.ChangedPaths) == 0 {
		if _, err := w.opts.States.MarkSucceeded(ctx, key); err != nil {
			return err
		}
		return nil
	}

	snap := snapshot.Build(info.Object, allow)
	items, directOps := w.partition(job.ChangedPaths, snap, allow)

	var outputs []Output
	if len(items) > 0 {
		resp, err := w.opts.Executor.Translate(ctx, job.Grant, Request{
			ContentID:       job.ContentID,
			Locale:          job.Locale,
			BaseFingerprint: job.BaseFingerprint,
			BaseUpdatedAt:   job.BaseUpdatedAt,
			Items:           items,
		})
		if err != nil {
			return w.fail(ctx, key, fmt.Sprintf("executor: %v", err))
		}
		if err := ValidateResponse(items, resp.Items); err != nil {
			return w.fail(ctx, key, fmt.Sprintf("executor output rejected: %v", err))
		}
		outputs = resp.Items
	}

	ops := mergeOps(existing, directOps, outputs, job.RemovedPaths, allow)
	err = w.opts.Overlays.Upsert(ctx, overlay.Update{
		ContentID:       job.ContentID,
		Layer:           l10n.LayerLocale,
		Locale:          job.Locale,
		Ops:             ops,
		BaseFingerprint: fingerprint,
		BaseUpdatedAt:   info.UpdatedAt,
		Source:          overlay.SourceAgent,
		Allow:           allow,
		Limits:          w.opts.Limits,
	})
	if err != nil {
		return w.fail(ctx, key, fmt.Sprintf("write overlay: %v", err))
	}

	if _, err := w.opts.States.MarkSucceeded(ctx, key); err != nil {
		return err
	}
	w.logger.Info("translation applied",
		logging.String("content_id", job.ContentID),
		logging.String("locale", job.Locale),
		logging.Int("translated", len(outputs)),
		logging.Int("passthrough", len(directOps)),
	)
	return nil
}

// partition splits the changed paths into executor items and passthrough
// ops. Paths that vanished from the snapshot are silently skipped; the
// removed set cleans them up.
func (w *Worker) partition(changed []string, snap snapshot.Snapshot, allow l10n.Allowlist) ([]Item, []l10n.Op) {
	var (
		items []Item
		ops   []l10n.Op
	)
	for _, path := range changed {
		value, ok := snap[path]
		if !ok {
			continue
		}
		if Passthrough(value) {
			ops = append(ops, l10n.Op{Op: "set", Path: path, Value: value})
			continue
		}
		kind := l10n.KindString
		if entry, ok := allow.Match(path); ok {
			kind = entry.Kind
		}
		items = append(items, Item{Path: path, Kind: kind, Value: value})
	}
	return items, ops
}

// mergeOps carries forward the surviving base ops, drops removed paths and
// paths the allowlist no longer covers, and overlays the new output. Removed
// entries containing "*" are treated as patterns.
func mergeOps(existing *overlay.Record, directOps []l10n.Op, outputs []Output, removed []string, allow l10n.Allowlist) []l10n.Op {
	merged := make(map[string]string)
	if existing != nil {
		for _, op := range existing.Ops {
			if isRemoved(op.Path, removed) || !allow.Allows(op.Path) {
				continue
			}
			merged[op.Path] = op.Value
		}
	}
	for _, op := range directOps {
		merged[op.Path] = op.Value
	}
	for _, out := range outputs {
		merged[out.Path] = out.Value
	}

	ops := make([]l10n.Op, 0, len(merged))
	for path, value := range merged {
		ops = append(ops, l10n.Op{Op: "set", Path: path, Value: value})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })
	return ops
}

func isRemoved(path string, removed []string) bool {
	for _, r := range removed {
		if r == path {
			return true
		}
		if strings.Contains(r, "*") && l10n.MatchPattern(r, path) {
			return true
		}
	}
	return false
}

// fail records one failed attempt. Hitting the attempt ceiling pins the
// record as terminally failed until an operator retry resets it.
func (w *Worker) fail(ctx context.Context, key genstate.Key, message string) error {
	rec, err := w.opts.States.Get(ctx, key)
	attempts := 1
	if err == nil && rec != nil {
		attempts = rec.Attempts + 1
	}

	if attempts >= w.opts.MaxAttempts {
		if _, err := w.opts.States.MarkFailed(ctx, key, genstate.RetryExhaustedPrefix+" "+message, nil); err != nil {
			w.logger.Error("record exhausted failure", logging.Error(err))
		}
	} else {
		next := genstate.NextAttempt(w.now(), attempts, w.opts.BackoffBase, w.opts.BackoffCap)
		if _, err := w.opts.States.MarkFailed(ctx, key, message, &next); err != nil {
			w.logger.Error("record failure", logging.Error(err))
		}
	}
	return services.Wrap(services.ErrTransient, "translate", "process", message, nil)
}
