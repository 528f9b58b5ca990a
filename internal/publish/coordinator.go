package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"glot/internal/budget"
	"glot/internal/content"
	"glot/internal/jobqueue"
	"glot/internal/logging"
	"glot/internal/policy"
	"glot/internal/services"
)

// Options wires a Coordinator.
type Options struct {
	Blobs    BlobStore
	Renderer Renderer
	Source   content.Source
	Gate     *budget.Gate
	Queue    jobqueue.Queue

	// ResolvePolicy maps a workspace onto its entitlements.
	ResolvePolicy func(workspaceID string) policy.Policy

	Canonical      string
	PublishSubject string
	WaitTimeout    time.Duration
	PollInterval   time.Duration

	Logger *slog.Logger
}

// Coordinator drives the pointer/revision protocol: callers request a
// publish, the queue fans the work out, and Apply performs the atomic
// revision write and pointer flip.
type Coordinator struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New validates options and builds a coordinator.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Blobs == nil || opts.Renderer == nil || opts.Source == nil:
		return nil, services.Wrap(services.ErrConfiguration, "publish", "new", "blob store, renderer, and source are required", nil)
	case opts.Gate == nil || opts.Queue == nil:
		return nil, services.Wrap(services.ErrConfiguration, "publish", "new", "gate and queue are required", nil)
	case opts.Canonical == "" || opts.PublishSubject == "":
		return nil, services.Wrap(services.ErrConfiguration, "publish", "new", "canonical locale and subject are required", nil)
	case opts.WaitTimeout <= 0 || opts.PollInterval <= 0:
		return nil, services.Wrap(services.ErrConfiguration, "publish", "new", "wait timeout and poll interval must be positive", nil)
	}
	if opts.ResolvePolicy == nil {
		opts.ResolvePolicy = func(string) policy.Policy { return policy.Resolve("free", "") }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Coordinator{opts: opts, logger: opts.Logger, now: time.Now}, nil
}

// Publish meters the budget and enqueues regeneration of all of a content's
// locales. With wait set it blocks until the canonical locale is confirmed
// live, bounded by the configured timeout; the remaining locales always
// publish fire-and-forget.
func (c *Coordinator) Publish(ctx context.Context, contentID string, wait bool) (string, *Pointer, error) {
	info, err := c.opts.Source.Content(ctx, contentID)
	if err != nil {
		return "", nil, services.Wrap(services.ErrTransient, "publish", "publish", "load content", err)
	}
	if info == nil || info.Status != content.StatusActive {
		return "", nil, services.Wrap(services.ErrNotFound, "publish", "publish",
			fmt.Sprintf("content %s not found", contentID), nil)
	}

	pol := c.opts.ResolvePolicy(info.WorkspaceID)
	consumed, err := c.opts.Gate.Consume(ctx, info.WorkspaceID, policy.BudgetPublish,
		pol.Budget(policy.BudgetPublish), 1)
	if err != nil {
		c.logger.Warn("budget check failed, proceeding", logging.Error(err))
	} else if !consumed.OK {
		return "", nil, services.Wrap(services.ErrDenied, "publish", "publish",
			fmt.Sprintf("publish budget exhausted for workspace %s (used %d)", info.WorkspaceID, consumed.Used), nil)
	}

	baseline := ""
	if ptr, err := c.Pointer(ctx, contentID); err == nil && ptr != nil {
		baseline = ptr.Revision
	}

	traceID, _ := services.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	err = c.opts.Queue.Send(ctx, c.opts.PublishSubject, jobqueue.PublishJob{
		ContentID: contentID,
		Action:    jobqueue.PublishActionUpsert,
		TraceID:   traceID,
	})
	if err != nil {
		return "", nil, services.Wrap(services.ErrTransient, "publish", "publish", "enqueue publish", err)
	}

	if !wait {
		return StatePublishing, nil, nil
	}
	return c.WaitForCanonical(ctx, contentID, c.opts.Canonical, baseline)
}

// Unpublish deletes the pointer, making the content immediately unservable
// without destroying revision history.
func (c *Coordinator) Unpublish(ctx context.Context, contentID string) error {
	if err := c.opts.Blobs.Delete(ctx, pointerKey(contentID)); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "unpublish", "delete pointer", err)
	}
	c.logger.Info("unpublished", logging.String("content_id", contentID))
	return nil
}

// Handler adapts the coordinator to the queue consumer contract.
func (c *Coordinator) Handler() jobqueue.Handler {
	return func(ctx context.Context, data []byte) {
		var job jobqueue.PublishJob
		if err := json.Unmarshal(data, &job); err != nil {
			c.logger.Error("drop undecodable publish job", logging.Error(err))
			return
		}
		if err := c.Apply(ctx, job); err != nil {
			c.logger.Warn("publish job failed",
				logging.String("content_id", job.ContentID),
				logging.Error(err),
			)
		}
	}
}

// Apply performs one publish job: render the requested locales, write the
// immutable revision, then flip the pointer.
func (c *Coordinator) Apply(ctx context.Context, job jobqueue.PublishJob) error {
	if job.Action == jobqueue.PublishActionDelete {
		return c.Unpublish(ctx, job.ContentID)
	}

	info, err := c.opts.Source.Content(ctx, job.ContentID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "apply", "load content", err)
	}
	if info == nil || info.Status != content.StatusActive {
		return services.Wrap(services.ErrNotFound, "publish", "apply",
			fmt.Sprintf("content %s not found", job.ContentID), nil)
	}

	locales := job.Locales
	if len(locales) == 0 {
		active, err := c.opts.Source.ActiveLocales(ctx, info.WorkspaceID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "publish", "apply", "load locales", err)
		}
		locales = append([]string{c.opts.Canonical}, active...)
	}

	previous, err := c.Pointer(ctx, job.ContentID)
	if err != nil {
		return err
	}

	revision := newRevision(c.now())
	index := Index{V: 1, ContentID: job.ContentID, Current: make(map[string]LocaleHashes)}

	// Locales untouched by this batch keep serving from the carried-forward
	// entries of the previous revision.
	if previous != nil {
		if prevIndex, err := c.RevisionIndex(ctx, job.ContentID, previous.Revision); err == nil && prevIndex != nil {
			for locale, hashes := range prevIndex.Current {
				index.Current[locale] = hashes
			}
		}
	}

	for _, locale := range dedupe(locales) {
		artifact, err := c.opts.Renderer.Render(ctx, info, locale)
		if err != nil {
			return services.Wrap(services.ErrTransient, "publish", "apply",
				fmt.Sprintf("render locale %s", locale), err)
		}
		writes := map[string][]byte{
			artifactKey(job.ContentID, revision, locale, "content.json"): artifact.Content,
			artifactKey(job.ContentID, revision, locale, "render.json"):  artifact.Render,
			artifactKey(job.ContentID, revision, locale, "meta.json"):    artifact.Meta,
		}
		for key, data := range writes {
			if err := c.opts.Blobs.Put(ctx, key, data); err != nil {
				return services.Wrap(services.ErrTransient, "publish", "apply", "write artifact", err)
			}
		}
		index.Current[locale] = LocaleHashes{
			ContentHash: digest(artifact.Content),
			RenderHash:  digest(artifact.Render),
			MetaHash:    digest(artifact.Meta),
		}
	}

	indexData, err := json.Marshal(index)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "apply", "marshal index", err)
	}
	if err := c.opts.Blobs.Put(ctx, indexKey(job.ContentID, revision), indexData); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "apply", "write index", err)
	}

	pointer := Pointer{
		V:         1,
		ContentID: job.ContentID,
		Revision:  revision,
		UpdatedAt: c.now().UTC(),
	}
	if previous != nil {
		pointer.PreviousRevision = previous.Revision
	}
	pointerData, err := json.Marshal(pointer)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "apply", "marshal pointer", err)
	}
	if err := c.opts.Blobs.Put(ctx, pointerKey(job.ContentID), pointerData); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "apply", "flip pointer", err)
	}

	c.logger.Info("revision published",
		logging.String("content_id", job.ContentID),
		logging.String("revision", revision),
		logging.Int("locales", len(index.Current)),
	)
	return nil
}

// Pointer reads a content's pointer, or nil when unpublished.
func (c *Coordinator) Pointer(ctx context.Context, contentID string) (*Pointer, error) {
	data, ok, err := c.opts.Blobs.Get(ctx, pointerKey(contentID))
	if err != nil || !ok {
		return nil, err
	}
	var ptr Pointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return nil, services.Wrap(services.ErrValidation, "publish", "pointer", "decode pointer", err)
	}
	return &ptr, nil
}

// RevisionIndex reads one revision's index, or nil when absent.
func (c *Coordinator) RevisionIndex(ctx context.Context, contentID, revision string) (*Index, error) {
	data, ok, err := c.opts.Blobs.Get(ctx, indexKey(contentID, revision))
	if err != nil || !ok {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, services.Wrap(services.ErrValidation, "publish", "index", "decode index", err)
	}
	return &index, nil
}

// WaitForCanonical polls the pointer until it advances past baseline and
// its index carries the locale. On timeout or cancellation it reports
// "publishing", never an error; the underlying work continues.
func (c *Coordinator) WaitForCanonical(ctx context.Context, contentID, locale, baseline string) (string, *Pointer, error) {
	deadline := c.now().Add(c.opts.WaitTimeout)
	for {
		ptr, err := c.Pointer(ctx, contentID)
		if err != nil {
			return "", nil, err
		}
		if ptr != nil && ptr.Revision != baseline {
			index, err := c.RevisionIndex(ctx, contentID, ptr.Revision)
			if err != nil {
				return "", nil, err
			}
			if index != nil {
				if _, ok := index.Current[locale]; ok {
					return StatePublished, ptr, nil
				}
			}
		}
		if c.now().After(deadline) {
			return StatePublishing, nil, nil
		}
		select {
		case <-ctx.Done():
			return StatePublishing, nil, nil
		case <-time.After(c.opts.PollInterval):
		}
	}
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func dedupe(locales []string) []string {
	seen := make(map[string]struct{}, len(locales))
	out := make([]string, 0, len(locales))
	for _, locale := range locales {
		if _, ok := seen[locale]; ok {
			continue
		}
		seen[locale] = struct{}{}
		out = append(out, locale)
	}
	return out
}
