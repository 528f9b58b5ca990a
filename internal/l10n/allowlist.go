package l10n

// Kind describes how a translatable field is validated after translation.
type Kind string

const (
	KindString   Kind = "string"
	KindRichtext Kind = "richtext"
)

// Entry is one allowlisted path pattern for a widget type.
type Entry struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Allowlist is the set of content paths eligible for translation and
// override for one widget type.
type Allowlist []Entry

// Match returns the first entry whose pattern matches path.
func (a Allowlist) Match(path string) (Entry, bool) {
	for _, entry := range a {
		if MatchPattern(entry.Path, path) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Allows reports whether path matches any entry.
func (a Allowlist) Allows(path string) bool {
	_, ok := a.Match(path)
	return ok
}
