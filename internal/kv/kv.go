package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"glot/internal/store"
)

// Store persists expiring key-value entries.
type Store struct {
	db *store.DB
}

// NewStore binds a KV store to the shared database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Put writes a value. A non-positive TTL stores the entry without expiry.
func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = store.FormatTime(time.Now().Add(ttl))
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET
            value = excluded.value,
            expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get reads a value. Expired entries read as absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key)
	var (
		value   string
		expires sql.NullString
	)
	err := row.Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if expires.Valid {
		deadline, err := store.ParseTime(expires.String)
		if err != nil {
			return "", false, fmt.Errorf("parse expiry for %s: %w", key, err)
		}
		if !deadline.After(time.Now()) {
			return "", false, nil
		}
	}
	return value, true, nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes entries past their expiry.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Exec(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		store.FormatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}
