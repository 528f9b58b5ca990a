package sweeper

import (
	"testing"
	"time"

	"glot/internal/budget"
	"glot/internal/capability"
	"glot/internal/content"
	"glot/internal/genstate"
	"glot/internal/issuer"
	"glot/internal/jobqueue"
	"glot/internal/kv"
	"glot/internal/l10n"
	"glot/internal/overlay"
	"glot/internal/policy"
	"glot/internal/snapshot"
	"glot/internal/store"
)

const translateSubject = "glot.translate"

type fixture struct {
	sweeper *Sweeper
	source  *content.MemorySource
	queue   *jobqueue.MemoryQueue
	states  *genstate.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	grants, err := capability.NewIssuer(capability.Options{
		SigningKey: "test-signing-key",
		TTL:        time.Minute,
		Providers:  []string{"openai"},
		Models:     []string{"gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("new grant issuer: %v", err)
	}

	f := &fixture{
		source: content.NewMemorySource(),
		queue:  jobqueue.NewMemoryQueue(),
		states: genstate.NewStore(db),
	}
	iss, err := issuer.New(issuer.Options{
		Source:           f.source,
		Snapshots:        snapshot.NewStore(db),
		States:           f.states,
		Overlays:         overlay.NewStore(db),
		Gate:             budget.NewGate(kv.NewStore(db), time.Hour),
		Grants:           grants,
		Queue:            f.queue,
		ResolvePolicy:    func(string) policy.Policy { return policy.Resolve("growth", "") },
		TranslateSubject: translateSubject,
		MaxAttempts:      5,
		StaleInFlight:    5 * time.Minute,
		BackoffBase:      time.Minute,
		BackoffCap:       time.Hour,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	f.sweeper, err = New(Options{
		States:        f.states,
		Source:        f.source,
		Issuer:        iss,
		Interval:      time.Minute,
		BatchSize:     50,
		MaxAttempts:   5,
		StaleInFlight: 5 * time.Minute,
		BackoffBase:   time.Minute,
		BackoffCap:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	return f
}

func (f *fixture) seedContent(t *testing.T, locales ...string) string {
	t.Helper()
	object := map[string]any{"title": "Hello"}
	f.source.PutContent(content.Info{
		ID:          "wgt_1",
		WorkspaceID: "ws_1",
		WidgetType:  "faq",
		Object:      object,
		UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	f.source.SetActiveLocales("ws_1", locales)
	f.source.PutAllowlist("faq", l10n.Allowlist{{Path: "title", Kind: l10n.KindString}})

	fp, err := snapshot.Fingerprint(object)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fp
}

func (f *fixture) seedRecord(t *testing.T, locale, fingerprint string) genstate.Key {
	t.Helper()
	key := genstate.Key{ContentID: "wgt_1", Layer: l10n.LayerLocale, Locale: locale, BaseFingerprint: fingerprint}
	err := f.states.MarkDirty(t.Context(), genstate.Record{
		Key:           key,
		ChangedPaths:  []string{"title"},
		WidgetType:    "faq",
		WorkspaceID:   "ws_1",
		BaseUpdatedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	return key
}

func TestSweepReissuesDueFailure(t *testing.T) {
	f := newFixture(t)
	fp := f.seedContent(t, "fr")
	key := f.seedRecord(t, "fr", fp)
	ctx := t.Context()

	past := time.Now().Add(-time.Minute)
	if ok, err := f.states.MarkFailed(ctx, key, "executor timeout", &past); err != nil || !ok {
		t.Fatalf("mark failed: ok=%v err=%v", ok, err)
	}

	stats, err := f.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Scanned != 1 || stats.Reissued != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := len(f.queue.Sent(translateSubject)); got != 1 {
		t.Fatalf("sent = %d", got)
	}
	rec, _ := f.states.Get(ctx, key)
	if rec.Status != genstate.StatusQueued {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestSweepReissuesStaleInFlight(t *testing.T) {
	f := newFixture(t)
	fp := f.seedContent(t, "fr")
	key := f.seedRecord(t, "fr", fp)
	ctx := t.Context()

	// Queued ten minutes ago with no completion signal since.
	if ok, err := f.states.MarkQueued(ctx, key, time.Now().Add(-10*time.Minute)); err != nil || !ok {
		t.Fatalf("mark queued: ok=%v err=%v", ok, err)
	}

	stats, err := f.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Reissued != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := len(f.queue.Sent(translateSubject)); got != 1 {
		t.Fatalf("sent = %d", got)
	}
}

func TestSweepSupersedesDroppedLocale(t *testing.T) {
	f := newFixture(t)
	fp := f.seedContent(t, "fr")
	key := f.seedRecord(t, "ja", fp)
	ctx := t.Context()

	stats, err := f.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Superseded != 1 || stats.Reissued != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	rec, _ := f.states.Get(ctx, key)
	if rec.Status != genstate.StatusSuperseded || rec.LastError != genstate.ReasonLocaleNotSelected {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestSweepForceFailsExhausted(t *testing.T) {
	f := newFixture(t)
	fp := f.seedContent(t, "fr")
	key := f.seedRecord(t, "fr", fp)
	ctx := t.Context()

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		if ok, err := f.states.MarkFailed(ctx, key, "executor timeout", &past); err != nil || !ok {
			t.Fatalf("mark failed %d: ok=%v err=%v", i, ok, err)
		}
	}

	stats, err := f.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Exhausted != 1 || stats.Reissued != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	rec, _ := f.states.Get(ctx, key)
	if rec.Status != genstate.StatusFailed || rec.NextAttemptAt != nil {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.LastError[:len(genstate.RetryExhaustedPrefix)] != genstate.RetryExhaustedPrefix {
		t.Fatalf("last error = %q", rec.LastError)
	}

	// A further sweep finds nothing to do.
	stats, err = f.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := len(f.queue.Sent(translateSubject)); got != 0 {
		t.Fatalf("sent = %d", got)
	}
}
