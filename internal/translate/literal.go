package translate

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Passthrough reports whether a value carries nothing to translate: empty
// strings, URLs, email addresses, and strings without letters (numbers,
// punctuation, emoji) are copied into the overlay without an executor round
// trip.
func Passthrough(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
		return true
	}
	if emailPattern.MatchString(trimmed) {
		return true
	}

	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
