package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"glot/internal/content"
	"glot/internal/l10n"
	"glot/internal/overlay"
	"glot/internal/snapshot"
)

// Artifact is one locale's rendered output.
type Artifact struct {
	Content []byte
	Render  []byte
	Meta    []byte
}

// Renderer produces the artifacts for one locale of one content instance.
type Renderer interface {
	Render(ctx context.Context, info *content.Info, locale string) (Artifact, error)
}

// LocaleRenderer renders a locale by layering its overlay onto the source
// content: machine ops first, user overrides on top.
type LocaleRenderer struct {
	overlays  *overlay.Store
	canonical string
}

// NewLocaleRenderer builds the default renderer.
func NewLocaleRenderer(overlays *overlay.Store, canonical string) *LocaleRenderer {
	return &LocaleRenderer{overlays: overlays, canonical: canonical}
}

// Render implements Renderer. The canonical locale serves the source
// object; other locales without an overlay serve the source as fallback.
func (r *LocaleRenderer) Render(ctx context.Context, info *content.Info, locale string) (Artifact, error) {
	localized, err := copyTree(info.Object)
	if err != nil {
		return Artifact{}, err
	}

	fingerprint, err := snapshot.Fingerprint(info.Object)
	if err != nil {
		return Artifact{}, err
	}

	if locale != r.canonical {
		ov, err := r.overlays.Get(ctx, info.ID, l10n.LayerLocale, locale)
		if err != nil {
			return Artifact{}, err
		}
		if ov != nil {
			for _, op := range ov.Ops {
				applyOp(localized, op)
			}
			for _, op := range ov.UserOps {
				applyOp(localized, op)
			}
		}
	}

	body, err := snapshot.CanonicalJSON(localized)
	if err != nil {
		return Artifact{}, fmt.Errorf("render locale %s: %w", locale, err)
	}
	meta, err := json.Marshal(map[string]any{
		"locale":          locale,
		"baseFingerprint": fingerprint,
		"updatedAt":       info.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("render meta %s: %w", locale, err)
	}
	return Artifact{Content: body, Render: body, Meta: meta}, nil
}

func copyTree(object map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("copy content: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copy content: %w", err)
	}
	return out, nil
}

// applyOp sets an op's value at its path. Ops whose path no longer resolves
// in the tree are skipped; the rebase keeps them rare.
func applyOp(root map[string]any, op l10n.Op) {
	segments, err := l10n.SplitPath(op.Path)
	if err != nil {
		return
	}

	var node any = root
	for i, segment := range segments {
		last := i == len(segments)-1

		if items, ok := node.([]any); ok {
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(items) {
				return
			}
			if last {
				items[index] = op.Value
				return
			}
			node = items[index]
			continue
		}

		object, ok := node.(map[string]any)
		if !ok {
			return
		}
		if last {
			if _, exists := object[segment]; exists {
				object[segment] = op.Value
			}
			return
		}
		child, exists := object[segment]
		if !exists {
			return
		}
		node = child
	}
}
