package snapshot

import (
	"sort"
	"strconv"
	"strings"

	"glot/internal/l10n"
)

// Snapshot maps canonical dotted paths to their translatable string values.
type Snapshot map[string]string

// Build walks each allowlist pattern over the content tree and collects
// non-empty string leaves. A "*" pattern segment expands over array indices.
// The first pattern to produce a path wins; later duplicates are ignored.
func Build(content map[string]any, allow l10n.Allowlist) Snapshot {
	snap := make(Snapshot)
	for _, entry := range allow {
		segments, err := l10n.SplitPath(entry.Path)
		if err != nil {
			continue
		}
		collect(content, segments, nil, snap)
	}
	return snap
}

// Paths returns the snapshot's paths in sorted order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func collect(node any, segments, prefix []string, snap Snapshot) {
	if len(segments) == 0 {
		value, ok := node.(string)
		if !ok || value == "" {
			return
		}
		path := strings.Join(prefix, ".")
		if _, exists := snap[path]; !exists {
			snap[path] = value
		}
		return
	}

	segment := segments[0]
	rest := segments[1:]

	if segment == "*" {
		items, ok := node.([]any)
		if !ok {
			return
		}
		for i, item := range items {
			collect(item, rest, append(prefix, strconv.Itoa(i)), snap)
		}
		return
	}

	if index, err := strconv.Atoi(segment); err == nil {
		if items, ok := node.([]any); ok {
			if index >= 0 && index < len(items) {
				collect(items[index], rest, append(prefix, segment), snap)
			}
			return
		}
	}

	object, ok := node.(map[string]any)
	if !ok {
		return
	}
	child, exists := object[segment]
	if !exists {
		return
	}
	collect(child, rest, append(prefix, segment), snap)
}
