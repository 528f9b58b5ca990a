package translate

import (
	"fmt"
	"regexp"
	"strings"

	"glot/internal/l10n"
	"glot/internal/services"
)

// ValidateResponse checks executor output against the request items. The
// response must carry exactly one output per input path, preserve
// placeholder multisets, and for richtext items preserve tag structure.
// Any violation fails the whole job.
func ValidateResponse(items []Item, outputs []Output) error {
	inputs := make(map[string]Item, len(items))
	for _, item := range items {
		inputs[item.Path] = item
	}

	seen := make(map[string]string, len(outputs))
	for _, out := range outputs {
		if _, ok := inputs[out.Path]; !ok {
			return invalid(fmt.Sprintf("unexpected output path %s", out.Path))
		}
		if _, dup := seen[out.Path]; dup {
			return invalid(fmt.Sprintf("duplicate output path %s", out.Path))
		}
		seen[out.Path] = out.Value
	}
	for _, item := range items {
		if _, ok := seen[item.Path]; !ok {
			return invalid(fmt.Sprintf("missing output for path %s", item.Path))
		}
	}

	for _, item := range items {
		got := seen[item.Path]
		if err := checkPlaceholders(item.Path, item.Value, got); err != nil {
			return err
		}
		if item.Kind == l10n.KindRichtext {
			if err := checkRichtext(item.Path, item.Value, got); err != nil {
				return err
			}
		}
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "translate", "validate", message, nil)
}

var (
	// Doubles before singles so {{x}} is not consumed as {x}.
	bracePattern = regexp.MustCompile(`\{\{[^{}]*\}\}|\{[^{}]*\}`)
	colonPattern = regexp.MustCompile(`(^|[^a-zA-Z0-9_:]):([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// placeholderCounts extracts the multiset of placeholder tokens in a value.
// Brace placeholder whitespace is normalized, so "{ name }" and "{name}"
// count as the same token.
func placeholderCounts(value string) map[string]int {
	counts := make(map[string]int)
	for _, raw := range bracePattern.FindAllString(value, -1) {
		token := normalizeBrace(raw)
		counts[token]++
	}
	for _, match := range colonPattern.FindAllStringSubmatch(value, -1) {
		counts[":"+match[2]]++
	}
	return counts
}

func normalizeBrace(raw string) string {
	if strings.HasPrefix(raw, "{{") {
		inner := strings.TrimSpace(raw[2 : len(raw)-2])
		return "{{" + inner + "}}"
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	return "{" + inner + "}"
}

func checkPlaceholders(path, source, translated string) error {
	want := placeholderCounts(source)
	got := placeholderCounts(translated)
	if len(want) != len(got) {
		return invalid(fmt.Sprintf("placeholder mismatch at %s", path))
	}
	for token, count := range want {
		if got[token] != count {
			return invalid(fmt.Sprintf("placeholder %s count mismatch at %s", token, path))
		}
	}
	return nil
}

var (
	tagPattern    = regexp.MustCompile(`(?i)<\s*(/?)\s*(b|br)\s*/?\s*>`)
	anchorPattern = regexp.MustCompile(`(?is)<a\b([^>]*)>(.*?)</\s*a\s*>`)
	hrefPattern   = regexp.MustCompile(`(?i)href\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	innerTags     = regexp.MustCompile(`<[^>]*>`)
)

// tagTokens returns the ordered normalized formatting tags of a richtext
// value. Anchors are validated separately and excluded here.
func tagTokens(value string) []string {
	var tokens []string
	for _, match := range tagPattern.FindAllStringSubmatch(value, -1) {
		name := strings.ToLower(match[2])
		if name == "br" {
			tokens = append(tokens, "<br/>")
			continue
		}
		if match[1] == "/" {
			tokens = append(tokens, "</"+name+">")
		} else {
			tokens = append(tokens, "<"+name+">")
		}
	}
	return tokens
}

type anchorShape struct {
	href    string
	hasText bool
}

// anchorShapes returns the ordered (href, has-visible-text) pairs of a
// richtext value.
func anchorShapes(value string) []anchorShape {
	var shapes []anchorShape
	for _, match := range anchorPattern.FindAllStringSubmatch(value, -1) {
		var href string
		if h := hrefPattern.FindStringSubmatch(match[1]); h != nil {
			href = h[1]
			if href == "" {
				href = h[2]
			}
		}
		text := strings.TrimSpace(innerTags.ReplaceAllString(match[2], ""))
		shapes = append(shapes, anchorShape{href: href, hasText: text != ""})
	}
	return shapes
}

func checkRichtext(path, source, translated string) error {
	wantTags := tagTokens(source)
	gotTags := tagTokens(translated)
	if len(wantTags) != len(gotTags) {
		return invalid(fmt.Sprintf("tag structure mismatch at %s", path))
	}
	for i := range wantTags {
		if wantTags[i] != gotTags[i] {
			return invalid(fmt.Sprintf("tag structure mismatch at %s", path))
		}
	}

	wantAnchors := anchorShapes(source)
	gotAnchors := anchorShapes(translated)
	if len(wantAnchors) != len(gotAnchors) {
		return invalid(fmt.Sprintf("anchor mismatch at %s", path))
	}
	for i := range wantAnchors {
		if wantAnchors[i] != gotAnchors[i] {
			return invalid(fmt.Sprintf("anchor mismatch at %s", path))
		}
	}
	return nil
}
