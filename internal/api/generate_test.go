package api

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

func newService(t *testing.T) (*GenerateService, *genstate.Store, *content.MemorySource) {
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

	source := content.NewMemorySource()
	states := genstate.NewStore(db)
	iss, err := issuer.New(issuer.Options{
		Source:           source,
		Snapshots:        snapshot.NewStore(db),
		States:           states,
		Overlays:         overlay.NewStore(db),
		Gate:             budget.NewGate(kv.NewStore(db), time.Hour),
		Grants:           grants,
		Queue:            jobqueue.NewMemoryQueue(),
		ResolvePolicy:    func(string) policy.Policy { return policy.Resolve("growth", "") },
		TranslateSubject: "glot.translate",
		CanonicalLocale:  "en",
		MaxAttempts:      5,
		StaleInFlight:    5 * time.Minute,
		BackoffBase:      time.Minute,
		BackoffCap:       time.Hour,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return NewGenerateService(states, iss), states, source
}

func seedContent(t *testing.T, source *content.MemorySource) {
	t.Helper()
	source.PutContent(content.Info{
		ID:          "wgt_1",
		WorkspaceID: "ws_1",
		WidgetType:  "faq",
		Object:      map[string]any{"title": "Hello"},
		UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	source.SetActiveLocales("ws_1", []string{"fr"})
	source.PutAllowlist("faq", l10n.Allowlist{{Path: "title", Kind: l10n.KindString}})
}

func TestStatusPrefersLiveRecordOverSuperseded(t *testing.T) {
	svc, states, _ := newService(t)
	ctx := t.Context()

	old := genstate.Record{
		Key:         genstate.Key{ContentID: "wgt_1", Layer: l10n.LayerLocale, Locale: "fr", BaseFingerprint: "f1"},
		WorkspaceID: "ws_1",
		WidgetType:  "faq",
	}
	if err := states.MarkDirty(ctx, old); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	if _, err := states.Supersede(ctx, "wgt_1", l10n.LayerLocale, "f2", genstate.ReasonNewBase); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	fresh := old
	fresh.BaseFingerprint = "f2"
	if err := states.MarkDirty(ctx, fresh); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}

	resp, err := svc.Status(ctx, "wgt_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(resp.Locales) != 1 {
		t.Fatalf("locales = %+v", resp.Locales)
	}
	row := resp.Locales[0]
	if row.Locale != "fr" || row.Status != string(genstate.StatusDirty) || row.BaseFingerprint != "f2" {
		t.Fatalf("row = %+v", row)
	}
}

func TestStatusFallsBackToSupersededRecord(t *testing.T) {
	svc, states, _ := newService(t)
	ctx := t.Context()

	rec := genstate.Record{
		Key:         genstate.Key{ContentID: "wgt_1", Layer: l10n.LayerLocale, Locale: "ja", BaseFingerprint: "f1"},
		WorkspaceID: "ws_1",
		WidgetType:  "faq",
	}
	if err := states.MarkDirty(ctx, rec); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	if _, err := states.SupersedeLocale(ctx, "wgt_1", l10n.LayerLocale, "ja", genstate.ReasonLocaleNotSelected); err != nil {
		t.Fatalf("supersede locale: %v", err)
	}

	resp, err := svc.Status(ctx, "wgt_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(resp.Locales) != 1 || resp.Locales[0].Status != string(genstate.StatusSuperseded) {
		t.Fatalf("locales = %+v", resp.Locales)
	}
	if resp.Locales[0].LastError != "locale is no longer selected for this workspace" {
		t.Fatalf("last error = %q", resp.Locales[0].LastError)
	}
}

func TestRetryResetsAttemptsAndReenqueues(t *testing.T) {
	svc, states, source := newService(t)
	seedContent(t, source)
	ctx := t.Context()

	if _, err := svc.Trigger(ctx, "wgt_1", false); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp, err := svc.Status(ctx, "wgt_1")
	if err != nil || len(resp.Locales) != 1 {
		t.Fatalf("status = %+v err = %v", resp, err)
	}
	key := genstate.Key{
		ContentID: "wgt_1", Layer: l10n.LayerLocale,
		Locale: "fr", BaseFingerprint: resp.Locales[0].BaseFingerprint,
	}
	for i := 0; i < 5; i++ {
		if _, err := states.MarkFailed(ctx, key, "executor unavailable", nil); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	retry, err := svc.Retry(ctx, "wgt_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Reopened != 1 {
		t.Fatalf("reopened = %d", retry.Reopened)
	}
	if len(retry.Result.Enqueued) != 1 {
		t.Fatalf("result = %+v", retry.Result)
	}
	rec, err := states.Get(ctx, key)
	if err != nil || rec == nil {
		t.Fatalf("get: rec=%v err=%v", rec, err)
	}
	if rec.Status != genstate.StatusQueued || rec.Attempts != 0 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestHumanizeError(t *testing.T) {
	cases := map[string]string{
		"":                                    "",
		"superseded_by_new_base":              "replaced by a newer source version",
		"locale_not_selected":                 "locale is no longer selected for this workspace",
		"stale_instance":                      "content was deleted or archived",
		"retry_exhausted: executor timed out": "gave up after repeated failures: executor timed out",
		"executor timed out":                  "executor timed out",
	}
	for input, want := range cases {
		if got := HumanizeError(input); got != want {
			t.Fatalf("HumanizeError(%q) = %q, want %q", input, got, want)
		}
	}
}
