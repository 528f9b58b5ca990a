package genstate

import (
	"context"
	"testing"
	"time"

	"glot/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func testKey(locale, fingerprint string) Key {
	return Key{ContentID: "wgt_1", Layer: "locale", Locale: locale, BaseFingerprint: fingerprint}
}

func markDirty(t *testing.T, s *Store, ctx context.Context, key Key) {
	t.Helper()
	err := s.MarkDirty(ctx, Record{
		Key:           key,
		ChangedPaths:  []string{"title"},
		WidgetType:    "faq",
		WorkspaceID:   "ws_1",
		BaseUpdatedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("fr", "f1")
	now := time.Now()

	markDirty(t, s, ctx, key)

	rec, err := s.Get(ctx, key)
	if err != nil || rec == nil {
		t.Fatalf("get: rec=%v err=%v", rec, err)
	}
	if rec.Status != StatusDirty || rec.Attempts != 0 {
		t.Fatalf("rec = %+v", rec)
	}
	if len(rec.ChangedPaths) != 1 || rec.ChangedPaths[0] != "title" {
		t.Fatalf("changed paths = %v", rec.ChangedPaths)
	}

	ok, err := s.MarkQueued(ctx, key, now)
	if err != nil || !ok {
		t.Fatalf("mark queued: ok=%v err=%v", ok, err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusQueued || rec.Attempts != 0 || rec.LastAttemptAt == nil {
		t.Fatalf("rec = %+v", rec)
	}

	if ok, err := s.MarkRunning(ctx, key, now); err != nil || !ok {
		t.Fatalf("mark running: ok=%v err=%v", ok, err)
	}
	if ok, err := s.MarkSucceeded(ctx, key); err != nil || !ok {
		t.Fatalf("mark succeeded: ok=%v err=%v", ok, err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusSucceeded || rec.NextAttemptAt != nil || rec.LastError != "" {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestMarkQueuedRequiresDirty(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("fr", "f1")

	if ok, err := s.MarkQueued(ctx, key, time.Now()); err != nil || ok {
		t.Fatalf("queue without record: ok=%v err=%v", ok, err)
	}

	markDirty(t, s, ctx, key)
	if ok, _ := s.MarkQueued(ctx, key, time.Now()); !ok {
		t.Fatal("expected queue from dirty")
	}
	if ok, _ := s.MarkQueued(ctx, key, time.Now()); ok {
		t.Fatal("expected second queue to be rejected")
	}
}

func TestMarkFailedSchedulesRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("de", "f1")
	markDirty(t, s, ctx, key)
	if ok, _ := s.MarkQueued(ctx, key, time.Now()); !ok {
		t.Fatal("queue failed")
	}

	next := time.Now().Add(4 * time.Minute)
	ok, err := s.MarkFailed(ctx, key, "executor timeout", &next)
	if err != nil || !ok {
		t.Fatalf("mark failed: ok=%v err=%v", ok, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusFailed || rec.Attempts != 1 || rec.NextAttemptAt == nil {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.LastError != "executor timeout" {
		t.Fatalf("last error = %q", rec.LastError)
	}
}

func TestForceFailClearsNextAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("ja", "f1")
	markDirty(t, s, ctx, key)

	ok, err := s.ForceFail(ctx, key, RetryExhaustedPrefix+"executor timeout")
	if err != nil || !ok {
		t.Fatalf("force fail: ok=%v err=%v", ok, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusFailed || rec.NextAttemptAt != nil || rec.Attempts != 0 {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestSupersedeKeepsMatchingFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	markDirty(t, s, ctx, testKey("fr", "f1"))
	markDirty(t, s, ctx, testKey("de", "f1"))
	markDirty(t, s, ctx, testKey("fr", "f2"))

	n, err := s.Supersede(ctx, "wgt_1", "locale", "f2", ReasonNewBase)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if n != 2 {
		t.Fatalf("superseded %d rows, want 2", n)
	}

	old, _ := s.Get(ctx, testKey("fr", "f1"))
	if old.Status != StatusSuperseded || old.LastError != ReasonNewBase {
		t.Fatalf("old = %+v", old)
	}
	current, _ := s.Get(ctx, testKey("fr", "f2"))
	if current.Status != StatusDirty {
		t.Fatalf("current = %+v", current)
	}

	// Audit rows survive and refuse further transitions.
	if err := s.MarkDirty(ctx, Record{Key: testKey("fr", "f1")}); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	old, _ = s.Get(ctx, testKey("fr", "f1"))
	if old.Status != StatusSuperseded {
		t.Fatalf("superseded row transitioned: %+v", old)
	}
}

func TestSupersedeLocale(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	markDirty(t, s, ctx, testKey("fr", "f1"))
	markDirty(t, s, ctx, testKey("fr", "f2"))

	n, err := s.SupersedeLocale(ctx, "wgt_1", "locale", "fr", ReasonLocaleNotSelected)
	if err != nil || n != 2 {
		t.Fatalf("supersede locale: n=%d err=%v", n, err)
	}
}

func TestReopenRevivesSupersededOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("fr", "f1")
	markDirty(t, s, ctx, key)

	// Only a superseded record may be reopened.
	if ok, err := s.Reopen(ctx, key); err != nil || ok {
		t.Fatalf("reopen dirty: ok=%v err=%v", ok, err)
	}

	if ok, _ := s.MarkQueued(ctx, key, time.Now()); !ok {
		t.Fatal("queue fr")
	}
	if ok, _ := s.MarkFailed(ctx, key, "boom", nil); !ok {
		t.Fatal("fail fr")
	}
	if _, err := s.SupersedeLocale(ctx, "wgt_1", "locale", "fr", ReasonLocaleNotSelected); err != nil {
		t.Fatalf("supersede locale: %v", err)
	}

	ok, err := s.Reopen(ctx, key)
	if err != nil || !ok {
		t.Fatalf("reopen: ok=%v err=%v", ok, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusDirty || rec.Attempts != 0 || rec.LastError != "" || rec.NextAttemptAt != nil {
		t.Fatalf("rec = %+v", rec)
	}
	if ok, _ := s.MarkQueued(ctx, key, time.Now()); !ok {
		t.Fatal("reopened record is not queueable")
	}
}

func TestListForContentOrdersSameSecondByInsertion(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	// Both rows land within one second; the later insert must still come
	// back first so status views see the current fingerprint on top.
	markDirty(t, s, ctx, testKey("fr", "f1"))
	markDirty(t, s, ctx, testKey("fr", "f2"))

	records, err := s.ListForContent(ctx, "wgt_1", "locale")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].BaseFingerprint != "f2" || records[1].BaseFingerprint != "f1" {
		t.Fatalf("order = [%s %s]", records[0].BaseFingerprint, records[1].BaseFingerprint)
	}
}

func TestListDueSelection(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now()

	// Dirty: always due.
	markDirty(t, s, ctx, testKey("fr", "f1"))

	// Failed with elapsed retry: due.
	markDirty(t, s, ctx, testKey("de", "f1"))
	if ok, _ := s.MarkQueued(ctx, testKey("de", "f1"), now.Add(-time.Hour)); !ok {
		t.Fatal("queue de")
	}
	past := now.Add(-time.Minute)
	if ok, _ := s.MarkFailed(ctx, testKey("de", "f1"), "boom", &past); !ok {
		t.Fatal("fail de")
	}

	// Failed with future retry: not due.
	markDirty(t, s, ctx, testKey("es", "f1"))
	if ok, _ := s.MarkQueued(ctx, testKey("es", "f1"), now); !ok {
		t.Fatal("queue es")
	}
	future := now.Add(time.Hour)
	if ok, _ := s.MarkFailed(ctx, testKey("es", "f1"), "boom", &future); !ok {
		t.Fatal("fail es")
	}

	// Exhausted failure (no next attempt): not due.
	markDirty(t, s, ctx, testKey("it", "f1"))
	if ok, _ := s.ForceFail(ctx, testKey("it", "f1"), RetryExhaustedPrefix+"boom"); !ok {
		t.Fatal("force fail it")
	}

	// Stale queued: due.
	markDirty(t, s, ctx, testKey("ja", "f1"))
	if ok, _ := s.MarkQueued(ctx, testKey("ja", "f1"), now.Add(-10*time.Minute)); !ok {
		t.Fatal("queue ja")
	}

	// Fresh queued: not due.
	markDirty(t, s, ctx, testKey("pt", "f1"))
	if ok, _ := s.MarkQueued(ctx, testKey("pt", "f1"), now); !ok {
		t.Fatal("queue pt")
	}

	due, err := s.ListDue(ctx, now, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	got := make(map[string]bool, len(due))
	for _, rec := range due {
		got[rec.Locale] = true
	}
	for _, locale := range []string{"fr", "de", "ja"} {
		if !got[locale] {
			t.Fatalf("expected %s due, got %v", locale, got)
		}
	}
	for _, locale := range []string{"es", "it", "pt"} {
		if got[locale] {
			t.Fatalf("did not expect %s due, got %v", locale, got)
		}
	}
}

func TestListDueRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	for _, locale := range []string{"fr", "de", "es", "it"} {
		markDirty(t, s, ctx, testKey(locale, "f1"))
	}
	due, err := s.ListDue(ctx, time.Now(), 5*time.Minute, 2)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len = %d", len(due))
	}
}

func TestUpsertSucceededCreatesRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("fr", "f9")

	err := s.UpsertSucceeded(ctx, Record{Key: key, WidgetType: "faq", WorkspaceID: "ws_1"})
	if err != nil {
		t.Fatalf("upsert succeeded: %v", err)
	}
	rec, _ := s.Get(ctx, key)
	if rec == nil || rec.Status != StatusSucceeded {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestResetAttemptsReopensFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	key := testKey("fr", "f1")
	markDirty(t, s, ctx, key)
	if ok, _ := s.ForceFail(ctx, key, RetryExhaustedPrefix+"boom"); !ok {
		t.Fatal("force fail")
	}

	n, err := s.ResetAttempts(ctx, "wgt_1", "locale")
	if err != nil || n != 1 {
		t.Fatalf("reset: n=%d err=%v", n, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusDirty || rec.Attempts != 0 || rec.LastError != "" {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestHealthCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	markDirty(t, s, ctx, testKey("fr", "f1"))
	markDirty(t, s, ctx, testKey("de", "f1"))
	if ok, _ := s.MarkQueued(ctx, testKey("de", "f1"), time.Now()); !ok {
		t.Fatal("queue")
	}

	counts, err := s.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if counts[StatusDirty] != 1 || counts[StatusQueued] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}
