package content

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

// SQLiteSource is the reference Source backed by the shared database.
type SQLiteSource struct {
	db *store.DB
}

// NewSQLiteSource binds a content source to the shared database.
func NewSQLiteSource(db *store.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Content fetches one instance, or nil when absent.
func (s *SQLiteSource) Content(ctx context.Context, id string) (*Info, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, workspace_id, widget_type, status, data, updated_at
        FROM contents WHERE id = ?`, id)

	var (
		info      Info
		data      string
		updatedAt string
	)
	err := row.Scan(&info.ID, &info.WorkspaceID, &info.WidgetType, &info.Status, &data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &info.Object); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if info.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse content timestamp: %w", err)
	}
	return &info, nil
}

// PutContent writes an instance, replacing any previous row.
func (s *SQLiteSource) PutContent(ctx context.Context, info Info) error {
	data, err := json.Marshal(info.Object)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	status := info.Status
	if status == "" {
		status = StatusActive
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO contents (id, workspace_id, widget_type, status, data, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            workspace_id = excluded.workspace_id,
            widget_type = excluded.widget_type,
            status = excluded.status,
            data = excluded.data,
            updated_at = excluded.updated_at`,
		info.ID, info.WorkspaceID, info.WidgetType, status, string(data),
		store.FormatTime(info.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put content: %w", err)
	}
	return nil
}

// ActiveLocales returns the workspace's selected locales in sorted order.
func (s *SQLiteSource) ActiveLocales(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
        SELECT locale FROM workspace_locales WHERE workspace_id = ? ORDER BY locale`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("active locales: %w", err)
	}
	defer rows.Close()

	var locales []string
	for rows.Next() {
		var locale string
		if err := rows.Scan(&locale); err != nil {
			return nil, fmt.Errorf("scan locale: %w", err)
		}
		locales = append(locales, locale)
	}
	return locales, rows.Err()
}

// SetActiveLocales replaces the workspace's locale selection.
func (s *SQLiteSource) SetActiveLocales(ctx context.Context, workspaceID string, locales []string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workspace_locales WHERE workspace_id = ?`, workspaceID); err != nil {
		return fmt.Errorf("clear locales: %w", err)
	}
	for _, locale := range l10n.NormalizeLocales(locales) {
		if _, err := s.db.Exec(ctx,
			`INSERT OR IGNORE INTO workspace_locales (workspace_id, locale) VALUES (?, ?)`,
			workspaceID, locale); err != nil {
			return fmt.Errorf("insert locale %s: %w", locale, err)
		}
	}
	return nil
}

// Allowlist returns the translatable paths for a widget type. An unknown
// widget type has an empty allowlist.
func (s *SQLiteSource) Allowlist(ctx context.Context, widgetType string) (l10n.Allowlist, error) {
	row := s.db.QueryRow(ctx, `SELECT entries FROM widget_allowlists WHERE widget_type = ?`, widgetType)
	var entries string
	err := row.Scan(&entries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get allowlist: %w", err)
	}
	var allow l10n.Allowlist
	if err := json.Unmarshal([]byte(entries), &allow); err != nil {
		return nil, fmt.Errorf("decode allowlist: %w", err)
	}
	return allow, nil
}

// PutAllowlist writes the allowlist for a widget type.
func (s *SQLiteSource) PutAllowlist(ctx context.Context, widgetType string, allow l10n.Allowlist) error {
	entries, err := json.Marshal(allow)
	if err != nil {
		return fmt.Errorf("marshal allowlist: %w", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO widget_allowlists (widget_type, entries) VALUES (?, ?)
        ON CONFLICT (widget_type) DO UPDATE SET entries = excluded.entries`,
		widgetType, string(entries),
	)
	if err != nil {
		return fmt.Errorf("put allowlist: %w", err)
	}
	return nil
}

// Touch bumps a content's updated timestamp, used by tests and tooling.
func (s *SQLiteSource) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE contents SET updated_at = ? WHERE id = ?`,
		store.FormatTime(at), id); err != nil {
		return fmt.Errorf("touch content: %w", err)
	}
	return nil
}
