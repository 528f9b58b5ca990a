package l10n

import (
	"strings"

	"golang.org/x/text/language"

	"glot/internal/services"
)

// Layer names a translation surface. Locale-layer overlays hold generated
// translations; user-layer overlays hold manual per-workspace copy edits.
const (
	LayerLocale = "locale"
	LayerUser   = "user"
)

// ValidLayer reports whether name is a known translation layer.
func ValidLayer(name string) bool {
	return name == LayerLocale || name == LayerUser
}

// NormalizeLocale canonicalizes a locale token: trims, lowercases, accepts
// underscore separators, and validates the result as a BCP 47 tag.
func NormalizeLocale(raw string) (string, error) {
	token := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, "_", "-")))
	if token == "" {
		return "", services.Wrap(services.ErrValidation, "l10n", "locale", "empty locale", nil)
	}
	tag, err := language.Parse(token)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "l10n", "locale", "unrecognized locale "+raw, err)
	}
	return strings.ToLower(tag.String()), nil
}

// NormalizeLocales canonicalizes and dedupes a locale list, dropping tokens
// that do not parse.
func NormalizeLocales(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, token := range raw {
		locale, err := NormalizeLocale(token)
		if err != nil {
			continue
		}
		if _, ok := seen[locale]; ok {
			continue
		}
		seen[locale] = struct{}{}
		out = append(out, locale)
	}
	return out
}
