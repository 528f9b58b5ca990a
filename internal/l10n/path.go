package l10n

import (
	"strings"

	"glot/internal/services"
)

// Segments that enable prototype pollution through object merges are
// rejected anywhere in a path.
var prohibitedSegments = map[string]struct{}{
	"__proto__":   {},
	"prototype":   {},
	"constructor": {},
}

// SplitPath normalizes a dotted path into its segments. Bracketed array
// indices ("items[2].label") are rewritten to dotted form ("items.2.label").
func SplitPath(path string) ([]string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "l10n", "path", "empty path", nil)
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch r {
		case '[':
			b.WriteByte('.')
		case ']':
		default:
			b.WriteRune(r)
		}
	}

	segments := strings.Split(b.String(), ".")
	out := segments[:0]
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if _, bad := prohibitedSegments[segment]; bad {
			return nil, services.Wrap(services.ErrValidation, "l10n", "path", "prohibited segment "+segment, nil)
		}
		out = append(out, segment)
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrValidation, "l10n", "path", "empty path", nil)
	}
	return out, nil
}

// NormalizePath returns the canonical dotted form of path.
func NormalizePath(path string) (string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "."), nil
}

// MatchPattern reports whether a normalized path matches an allowlist
// pattern. A "*" pattern segment matches a numeric array index and nothing
// else.
func MatchPattern(pattern, path string) bool {
	patternSegments, err := SplitPath(pattern)
	if err != nil {
		return false
	}
	pathSegments, err := SplitPath(path)
	if err != nil {
		return false
	}
	if len(patternSegments) != len(pathSegments) {
		return false
	}
	for i, want := range patternSegments {
		got := pathSegments[i]
		if want == "*" {
			if !isIndexSegment(got) {
				return false
			}
			continue
		}
		if want != got {
			return false
		}
	}
	return true
}

func isIndexSegment(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
