package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glot/internal/store"
)

// Base is a persisted diff baseline for one (content, fingerprint) pair.
type Base struct {
	ContentID     string
	Fingerprint   string
	Snapshot      Snapshot
	BaseUpdatedAt time.Time
}

// Store persists base snapshots.
type Store struct {
	db *store.DB
}

// NewStore binds a snapshot store to the shared database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// UpsertBase records the snapshot for a fingerprint. Re-writing the same
// (content, fingerprint) pair replaces the row wholesale so a reverted edit
// makes its old fingerprint the latest baseline again.
func (s *Store) UpsertBase(ctx context.Context, base Base) error {
	payload, err := json.Marshal(base.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT OR REPLACE INTO base_snapshots (content_id, fingerprint, snapshot, base_updated_at, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		base.ContentID,
		base.Fingerprint,
		string(payload),
		store.FormatTime(base.BaseUpdatedAt),
		store.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert base snapshot: %w", err)
	}
	return nil
}

// LatestBase returns the most recent baseline for a content id, or nil when
// none has been recorded.
func (s *Store) LatestBase(ctx context.Context, contentID string) (*Base, error) {
	row := s.db.QueryRow(ctx, `
        SELECT content_id, fingerprint, snapshot, base_updated_at
        FROM base_snapshots
        WHERE content_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT 1`, contentID)

	var (
		base       Base
		payload    string
		baseUpdate string
	)
	err := row.Scan(&base.ContentID, &base.Fingerprint, &payload, &baseUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load base snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &base.Snapshot); err != nil {
		return nil, fmt.Errorf("decode base snapshot: %w", err)
	}
	if base.BaseUpdatedAt, err = store.ParseTime(baseUpdate); err != nil {
		return nil, fmt.Errorf("parse base timestamp: %w", err)
	}
	return &base, nil
}

// GetBase returns the baseline pinned to an exact fingerprint, or nil.
func (s *Store) GetBase(ctx context.Context, contentID, fingerprint string) (*Base, error) {
	row := s.db.QueryRow(ctx, `
        SELECT content_id, fingerprint, snapshot, base_updated_at
        FROM base_snapshots
        WHERE content_id = ? AND fingerprint = ?`, contentID, fingerprint)

	var (
		base       Base
		payload    string
		baseUpdate string
	)
	err := row.Scan(&base.ContentID, &base.Fingerprint, &payload, &baseUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load base snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &base.Snapshot); err != nil {
		return nil, fmt.Errorf("decode base snapshot: %w", err)
	}
	if base.BaseUpdatedAt, err = store.ParseTime(baseUpdate); err != nil {
		return nil, fmt.Errorf("parse base timestamp: %w", err)
	}
	return &base, nil
}
