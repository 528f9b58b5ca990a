package genstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"glot/internal/store"
)

// Store persists generation state records.
type Store struct {
	db *store.DB
}

// NewStore binds a generation state store to the shared database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `content_id, layer, locale, base_fingerprint, status, attempts,
    next_attempt_at, last_attempt_at, last_error, changed_paths, removed_paths,
    widget_type, workspace_id, base_updated_at, created_at, updated_at`

// statusGuard renders the statuses an event may fire from as a SQL IN list.
// Status values are package constants, never caller input.
func statusGuard(event Event) string {
	sources := sourcesFor(event)
	parts := make([]string, len(sources))
	for i, status := range sources {
		parts[i] = "'" + string(status) + "'"
	}
	return strings.Join(parts, ", ")
}

// MarkDirty creates or refreshes a record as dirty, carrying the triggering
// diff and the denormalized context needed to resume work later. Superseded
// records are left untouched.
func (s *Store) MarkDirty(ctx context.Context, rec Record) error {
	changed, removed, err := encodePaths(rec.ChangedPaths, rec.RemovedPaths)
	if err != nil {
		return err
	}
	now := store.FormatTime(time.Now())
	_, err = s.db.Exec(ctx, `
        INSERT INTO generate_states (
            content_id, layer, locale, base_fingerprint, status, attempts,
            next_attempt_at, last_attempt_at, last_error, changed_paths, removed_paths,
            widget_type, workspace_id, base_updated_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, NULL, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (content_id, layer, locale, base_fingerprint) DO UPDATE SET
            status = excluded.status,
            next_attempt_at = NULL,
            last_error = NULL,
            changed_paths = excluded.changed_paths,
            removed_paths = excluded.removed_paths,
            widget_type = excluded.widget_type,
            workspace_id = excluded.workspace_id,
            base_updated_at = excluded.base_updated_at,
            updated_at = excluded.updated_at
        WHERE generate_states.status IN (`+statusGuard(EventDirty)+`)`,
		rec.ContentID, rec.Layer, rec.Locale, rec.BaseFingerprint, StatusDirty,
		changed, removed,
		rec.WidgetType, rec.WorkspaceID, store.FormatTime(rec.BaseUpdatedAt),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return nil
}

// MarkQueued transitions a dirty record to queued and stamps the attempt
// time. Attempts are counted on failure, not on enqueue. Returns false when
// the record was not in a queueable state.
func (s *Store) MarkQueued(ctx context.Context, key Key, now time.Time) (bool, error) {
	return s.conditionalUpdate(ctx, "mark queued", key, `
        UPDATE generate_states SET
            status = ?,
            last_attempt_at = ?,
            next_attempt_at = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status IN (`+statusGuard(EventQueue)+`)`,
		StatusQueued, store.FormatTime(now), store.FormatTime(time.Now()),
	)
}

// MarkRunning records the executor's claim signal. Missing the signal is
// tolerated, so callers ignore a false return.
func (s *Store) MarkRunning(ctx context.Context, key Key, now time.Time) (bool, error) {
	return s.conditionalUpdate(ctx, "mark running", key, `
        UPDATE generate_states SET
            status = ?,
            last_attempt_at = ?,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status IN (`+statusGuard(EventRun)+`)`,
		StatusRunning, store.FormatTime(now), store.FormatTime(time.Now()),
	)
}

// MarkSucceeded terminates a record after an overlay write at its
// fingerprint.
func (s *Store) MarkSucceeded(ctx context.Context, key Key) (bool, error) {
	return s.conditionalUpdate(ctx, "mark succeeded", key, `
        UPDATE generate_states SET
            status = ?,
            next_attempt_at = NULL,
            last_error = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status IN (`+statusGuard(EventSucceed)+`)`,
		StatusSucceeded, store.FormatTime(time.Now()),
	)
}

// UpsertSucceeded records a success for a key that may have no row yet, as
// when an empty diff finds the overlay already pinned to the new
// fingerprint.
func (s *Store) UpsertSucceeded(ctx context.Context, rec Record) error {
	changed, removed, err := encodePaths(rec.ChangedPaths, rec.RemovedPaths)
	if err != nil {
		return err
	}
	now := store.FormatTime(time.Now())
	_, err = s.db.Exec(ctx, `
        INSERT INTO generate_states (
            content_id, layer, locale, base_fingerprint, status, attempts,
            next_attempt_at, last_attempt_at, last_error, changed_paths, removed_paths,
            widget_type, workspace_id, base_updated_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, NULL, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (content_id, layer, locale, base_fingerprint) DO UPDATE SET
            status = excluded.status,
            next_attempt_at = NULL,
            last_error = NULL,
            updated_at = excluded.updated_at
        WHERE generate_states.status IN (`+statusGuard(EventSucceed)+`)`,
		rec.ContentID, rec.Layer, rec.Locale, rec.BaseFingerprint, StatusSucceeded,
		changed, removed,
		rec.WidgetType, rec.WorkspaceID, store.FormatTime(rec.BaseUpdatedAt),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert succeeded: %w", err)
	}
	return nil
}

// MarkFailed records a failure, counts the attempt, and schedules the next
// one. A nil nextAttempt leaves the record failed with no automatic retry.
func (s *Store) MarkFailed(ctx context.Context, key Key, message string, nextAttempt *time.Time) (bool, error) {
	return s.conditionalUpdate(ctx, "mark failed", key, `
        UPDATE generate_states SET
            status = ?,
            attempts = attempts + 1,
            last_error = ?,
            next_attempt_at = ?,
            last_attempt_at = ?,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status IN (`+statusGuard(EventFail)+`)`,
		StatusFailed, truncateError(message), nullableTime(nextAttempt),
		store.FormatTime(time.Now()), store.FormatTime(time.Now()),
	)
}

// ForceFail terminates a record that exhausted its attempts. The attempt
// counter is left as is and no further retry is scheduled.
func (s *Store) ForceFail(ctx context.Context, key Key, message string) (bool, error) {
	return s.conditionalUpdate(ctx, "force fail", key, `
        UPDATE generate_states SET
            status = ?,
            last_error = ?,
            next_attempt_at = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status IN (`+statusGuard(EventFail)+`)`,
		StatusFailed, truncateError(message), store.FormatTime(time.Now()),
	)
}

// Supersede retires every record for the content and layer whose fingerprint
// differs from keepFingerprint. Records are marked, never deleted.
func (s *Store) Supersede(ctx context.Context, contentID, layer, keepFingerprint, reason string) (int64, error) {
	res, err := s.db.Exec(ctx, `
        UPDATE generate_states SET
            status = ?,
            last_error = ?,
            next_attempt_at = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND base_fingerprint != ? AND status != ?`,
		StatusSuperseded, reason, store.FormatTime(time.Now()),
		contentID, layer, keepFingerprint, StatusSuperseded,
	)
	if err != nil {
		return 0, fmt.Errorf("supersede: %w", err)
	}
	return res.RowsAffected()
}

// SupersedeLocale retires every record for a locale regardless of
// fingerprint, as when a workspace drops the language.
func (s *Store) SupersedeLocale(ctx context.Context, contentID, layer, locale, reason string) (int64, error) {
	res, err := s.db.Exec(ctx, `
        UPDATE generate_states SET
            status = ?,
            last_error = ?,
            next_attempt_at = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND status != ?`,
		StatusSuperseded, reason, store.FormatTime(time.Now()),
		contentID, layer, locale, StatusSuperseded,
	)
	if err != nil {
		return 0, fmt.Errorf("supersede locale: %w", err)
	}
	return res.RowsAffected()
}

// ResetAttempts re-opens failed records for a content so an operator retry
// bypasses the attempt ceiling.
func (s *Store) ResetAttempts(ctx context.Context, contentID, layer string) (int64, error) {
	res, err := s.db.Exec(ctx, `
        UPDATE generate_states SET
            status = ?,
            attempts = 0,
            next_attempt_at = NULL,
            last_error = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND status = ?`,
		StatusDirty, store.FormatTime(time.Now()),
		contentID, layer, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("reset attempts: %w", err)
	}
	return res.RowsAffected()
}

// Reopen revives one superseded record as dirty with a clean retry ledger.
// Used when a locale retired by a workspace edit is selected again while its
// fingerprint is still current; every other path treats superseded as
// terminal.
func (s *Store) Reopen(ctx context.Context, key Key) (bool, error) {
	return s.conditionalUpdate(ctx, "reopen", key, `
        UPDATE generate_states SET
            status = ?,
            attempts = 0,
            next_attempt_at = NULL,
            last_error = NULL,
            updated_at = ?
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?
          AND status = '`+string(StatusSuperseded)+`'`,
		StatusDirty, store.FormatTime(time.Now()),
	)
}

// Get fetches one record, or nil when absent.
func (s *Store) Get(ctx context.Context, key Key) (*Record, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+recordColumns+` FROM generate_states
        WHERE content_id = ? AND layer = ? AND locale = ? AND base_fingerprint = ?`,
		key.ContentID, key.Layer, key.Locale, key.BaseFingerprint)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListForContent returns every record for a content and layer, newest
// first. Insertion order breaks ties on the second-resolution timestamp.
func (s *Store) ListForContent(ctx context.Context, contentID, layer string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+recordColumns+` FROM generate_states
        WHERE content_id = ? AND layer = ?
        ORDER BY created_at DESC, rowid DESC`, contentID, layer)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListDue selects the sweeper's work: dirty records, failed records with a
// due retry, and queued/running records stale past the TTL. Oldest first,
// capped at limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, staleTTL time.Duration, limit int) ([]Record, error) {
	nowStr := store.FormatTime(now)
	staleBefore := store.FormatTime(now.Add(-staleTTL))
	rows, err := s.db.Query(ctx, `
        SELECT `+recordColumns+` FROM generate_states
        WHERE status = ?
           OR (status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?)
           OR (status IN (?, ?) AND (last_attempt_at IS NULL OR last_attempt_at <= ?))
        ORDER BY updated_at ASC
        LIMIT ?`,
		StatusDirty,
		StatusFailed, nowStr,
		StatusQueued, StatusRunning, staleBefore,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Health counts records per status.
func (s *Store) Health(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(1) FROM generate_states GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan health row: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *Store) conditionalUpdate(ctx context.Context, op string, key Key, query string, args ...any) (bool, error) {
	args = append(args, key.ContentID, key.Layer, key.Locale, key.BaseFingerprint)
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return affected > 0, nil
}

const maxErrorLength = 1024

func truncateError(message string) string {
	if len(message) > maxErrorLength {
		return message[:maxErrorLength]
	}
	return message
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return store.FormatTime(*t)
}

func encodePaths(changed, removed []string) (string, string, error) {
	if changed == nil {
		changed = []string{}
	}
	if removed == nil {
		removed = []string{}
	}
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return "", "", fmt.Errorf("marshal changed paths: %w", err)
	}
	removedJSON, err := json.Marshal(removed)
	if err != nil {
		return "", "", fmt.Errorf("marshal removed paths: %w", err)
	}
	return string(changedJSON), string(removedJSON), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec         Record
		nextAttempt sql.NullString
		lastAttempt sql.NullString
		lastError   sql.NullString
		changed     string
		removed     string
		baseUpdated string
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&rec.ContentID, &rec.Layer, &rec.Locale, &rec.BaseFingerprint,
		&rec.Status, &rec.Attempts,
		&nextAttempt, &lastAttempt, &lastError,
		&changed, &removed,
		&rec.WidgetType, &rec.WorkspaceID, &baseUpdated,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextAttempt.Valid {
		t, err := store.ParseTime(nextAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("parse next attempt: %w", err)
		}
		rec.NextAttemptAt = &t
	}
	if lastAttempt.Valid {
		t, err := store.ParseTime(lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last attempt: %w", err)
		}
		rec.LastAttemptAt = &t
	}
	rec.LastError = lastError.String

	if err := json.Unmarshal([]byte(changed), &rec.ChangedPaths); err != nil {
		return nil, fmt.Errorf("decode changed paths: %w", err)
	}
	if err := json.Unmarshal([]byte(removed), &rec.RemovedPaths); err != nil {
		return nil, fmt.Errorf("decode removed paths: %w", err)
	}
	if rec.BaseUpdatedAt, err = store.ParseTime(baseUpdated); err != nil {
		return nil, fmt.Errorf("parse base timestamp: %w", err)
	}
	if rec.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created timestamp: %w", err)
	}
	if rec.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated timestamp: %w", err)
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
