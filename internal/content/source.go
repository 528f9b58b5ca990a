package content

import (
	"context"
	"time"

	"glot/internal/l10n"
)

// Content statuses the pipeline cares about.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Info is one widget instance as the pipeline sees it.
type Info struct {
	ID          string
	WorkspaceID string
	WidgetType  string
	Status      string
	Object      map[string]any
	UpdatedAt   time.Time
}

// Source reads content, locale selections, and allowlists.
type Source interface {
	// Content fetches one instance, or nil when absent.
	Content(ctx context.Context, id string) (*Info, error)
	// ActiveLocales returns the workspace's selected locales.
	ActiveLocales(ctx context.Context, workspaceID string) ([]string, error)
	// Allowlist returns the translatable paths for a widget type.
	Allowlist(ctx context.Context, widgetType string) (l10n.Allowlist, error)
}
