package content

import (
	"context"
	"sync"

	"glot/internal/l10n"
)

// MemorySource is an in-process Source for tests.
type MemorySource struct {
	mu         sync.Mutex
	contents   map[string]Info
	locales    map[string][]string
	allowlists map[string]l10n.Allowlist

	AllowlistCalls int
}

// NewMemorySource builds an empty in-process source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		contents:   make(map[string]Info),
		locales:    make(map[string][]string),
		allowlists: make(map[string]l10n.Allowlist),
	}
}

// PutContent stores an instance.
func (m *MemorySource) PutContent(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.Status == "" {
		info.Status = StatusActive
	}
	m.contents[info.ID] = info
}

// SetActiveLocales stores a workspace's selection.
func (m *MemorySource) SetActiveLocales(workspaceID string, locales []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locales[workspaceID] = append([]string(nil), locales...)
}

// PutAllowlist stores a widget type's allowlist.
func (m *MemorySource) PutAllowlist(widgetType string, allow l10n.Allowlist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowlists[widgetType] = allow
}

// Content implements Source.
func (m *MemorySource) Content(_ context.Context, id string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.contents[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// ActiveLocales implements Source.
func (m *MemorySource) ActiveLocales(_ context.Context, workspaceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.locales[workspaceID]...), nil
}

// Allowlist implements Source.
func (m *MemorySource) Allowlist(_ context.Context, widgetType string) (l10n.Allowlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllowlistCalls++
	return m.allowlists[widgetType], nil
}
