package overlay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glot/internal/l10n"
	"glot/internal/store"
)

// Store persists overlay records.
type Store struct {
	db *store.DB
}

// NewStore binds an overlay store to the shared database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const overlayColumns = `content_id, layer, locale, ops, user_ops, base_fingerprint,
    base_updated_at, source, geo_targets, created_at, updated_at`

// Upsert writes or merges an overlay. Nil Ops or UserOps in the update keep
// the stored column; geo targets follow the same rule. Op slices are
// normalized and checked against the update's allowlist and limits before
// anything is written.
func (s *Store) Upsert(ctx context.Context, u Update) error {
	if err := u.validate(); err != nil {
		return err
	}
	if u.Ops != nil {
		ops, err := l10n.ValidateOps(u.Ops, u.Allow, u.Limits)
		if err != nil {
			return err
		}
		u.Ops = ops
	}
	if u.UserOps != nil {
		userOps, err := l10n.ValidateOps(u.UserOps, u.Allow, u.Limits)
		if err != nil {
			return err
		}
		u.UserOps = userOps
	}

	opsJSON, err := encodeOps(u.Ops)
	if err != nil {
		return err
	}
	userOpsJSON, err := encodeOps(u.UserOps)
	if err != nil {
		return err
	}
	geoJSON, err := encodeGeo(u.GeoTargets)
	if err != nil {
		return err
	}

	now := store.FormatTime(time.Now())
	_, err = s.db.Exec(ctx, `
        INSERT INTO overlays (
            content_id, layer, locale, ops, user_ops, base_fingerprint,
            base_updated_at, source, geo_targets, created_at, updated_at
        ) VALUES (?, ?, ?, COALESCE(?, '[]'), COALESCE(?, '[]'), ?, ?, ?, ?, ?, ?)
        ON CONFLICT (content_id, layer, locale) DO UPDATE SET
            ops = COALESCE(?, overlays.ops),
            user_ops = COALESCE(?, overlays.user_ops),
            base_fingerprint = excluded.base_fingerprint,
            base_updated_at = excluded.base_updated_at,
            source = excluded.source,
            geo_targets = COALESCE(?, overlays.geo_targets),
            updated_at = excluded.updated_at`,
		u.ContentID, u.Layer, u.Locale, opsJSON, userOpsJSON, u.BaseFingerprint,
		store.FormatTime(u.BaseUpdatedAt), u.Source, geoJSON, now, now,
		opsJSON, userOpsJSON, geoJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert overlay: %w", err)
	}
	return nil
}

// Get fetches one overlay, or nil when absent.
func (s *Store) Get(ctx context.Context, contentID, layer, locale string) (*Record, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+overlayColumns+` FROM overlays
        WHERE content_id = ? AND layer = ? AND locale = ?`, contentID, layer, locale)
	rec, err := scanOverlay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get overlay: %w", err)
	}
	return rec, nil
}

// ListForContent returns every overlay for a content and layer ordered by
// locale.
func (s *Store) ListForContent(ctx context.Context, contentID, layer string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+overlayColumns+` FROM overlays
        WHERE content_id = ? AND layer = ?
        ORDER BY locale ASC`, contentID, layer)
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanOverlay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overlay: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes an overlay. Explicit layer removal is the only path that
// deletes overlay rows.
func (s *Store) Delete(ctx context.Context, contentID, layer, locale string) error {
	if _, err := s.db.Exec(ctx, `
        DELETE FROM overlays WHERE content_id = ? AND layer = ? AND locale = ?`,
		contentID, layer, locale); err != nil {
		return fmt.Errorf("delete overlay: %w", err)
	}
	return nil
}

// Rebase reconciles every overlay of a content and layer against a new base:
// ops and userOps whose paths are still allowlisted and still present in the
// new snapshot are carried forward verbatim, the rest are dropped, and the
// overlay is re-pinned to the new fingerprint. Returns the rebased locales.
func (s *Store) Rebase(ctx context.Context, contentID, layer, newFingerprint string, baseUpdatedAt time.Time, allow l10n.Allowlist, snapshotPaths map[string]struct{}) ([]string, error) {
	records, err := s.ListForContent(ctx, contentID, layer)
	if err != nil {
		return nil, err
	}

	keep := func(op l10n.Op) bool {
		if !allow.Allows(op.Path) {
			return false
		}
		_, present := snapshotPaths[op.Path]
		return present
	}

	var locales []string
	now := store.FormatTime(time.Now())
	for _, rec := range records {
		if rec.BaseFingerprint == newFingerprint {
			continue
		}
		ops := filterOps(rec.Ops, keep)
		userOps := filterOps(rec.UserOps, keep)

		opsJSON, err := encodeOps(ops)
		if err != nil {
			return locales, err
		}
		userOpsJSON, err := encodeOps(userOps)
		if err != nil {
			return locales, err
		}
		if _, err := s.db.Exec(ctx, `
            UPDATE overlays SET
                ops = ?,
                user_ops = ?,
                base_fingerprint = ?,
                base_updated_at = ?,
                updated_at = ?
            WHERE content_id = ? AND layer = ? AND locale = ?`,
			opsJSON, userOpsJSON, newFingerprint, store.FormatTime(baseUpdatedAt), now,
			contentID, layer, rec.Locale,
		); err != nil {
			return locales, fmt.Errorf("rebase overlay %s: %w", rec.Locale, err)
		}
		locales = append(locales, rec.Locale)
	}
	return locales, nil
}

func filterOps(ops []l10n.Op, keep func(l10n.Op) bool) []l10n.Op {
	out := make([]l10n.Op, 0, len(ops))
	for _, op := range ops {
		if keep(op) {
			out = append(out, op)
		}
	}
	return out
}

func encodeOps(ops []l10n.Op) (any, error) {
	if ops == nil {
		return nil, nil
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal ops: %w", err)
	}
	return string(raw), nil
}

func encodeGeo(codes []string) (any, error) {
	if codes == nil {
		return nil, nil
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("marshal geo targets: %w", err)
	}
	return string(raw), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverlay(row scanner) (*Record, error) {
	var (
		rec         Record
		opsJSON     string
		userOpsJSON string
		geoJSON     sql.NullString
		baseUpdated string
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&rec.ContentID, &rec.Layer, &rec.Locale,
		&opsJSON, &userOpsJSON, &rec.BaseFingerprint,
		&baseUpdated, &rec.Source, &geoJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(opsJSON), &rec.Ops); err != nil {
		return nil, fmt.Errorf("decode ops: %w", err)
	}
	if err := json.Unmarshal([]byte(userOpsJSON), &rec.UserOps); err != nil {
		return nil, fmt.Errorf("decode user ops: %w", err)
	}
	if geoJSON.Valid {
		if err := json.Unmarshal([]byte(geoJSON.String), &rec.GeoTargets); err != nil {
			return nil, fmt.Errorf("decode geo targets: %w", err)
		}
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
