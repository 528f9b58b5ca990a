package l10n

import (
	"fmt"

	"glot/internal/services"
)

// Op is a single path-scoped value override.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// OpLimits caps overlay op payloads. Values come from configuration.
type OpLimits struct {
	MaxOps        int
	MaxValueBytes int
	MaxTotalBytes int
}

// ValidateOps normalizes and validates a set of overlay ops against an
// allowlist and size limits. The returned ops carry canonical dotted paths.
// Later ops win on duplicate paths.
func ValidateOps(ops []Op, allow Allowlist, limits OpLimits) ([]Op, error) {
	if limits.MaxOps > 0 && len(ops) > limits.MaxOps {
		return nil, services.Wrap(services.ErrValidation, "l10n", "ops",
			fmt.Sprintf("too many ops: %d > %d", len(ops), limits.MaxOps), nil)
	}

	total := 0
	byPath := make(map[string]int, len(ops))
	out := make([]Op, 0, len(ops))
	for i, op := range ops {
		if op.Op != "" && op.Op != "set" {
			return nil, services.Wrap(services.ErrValidation, "l10n", "ops",
				fmt.Sprintf("op %d: unsupported op %q", i, op.Op), nil)
		}
		path, err := NormalizePath(op.Path)
		if err != nil {
			return nil, err
		}
		if !allow.Allows(path) {
			return nil, services.Wrap(services.ErrValidation, "l10n", "ops",
				"path not allowlisted: "+path, nil)
		}
		if limits.MaxValueBytes > 0 && len(op.Value) > limits.MaxValueBytes {
			return nil, services.Wrap(services.ErrValidation, "l10n", "ops",
				fmt.Sprintf("value too large at %s: %d bytes", path, len(op.Value)), nil)
		}
		total += len(path) + len(op.Value)
		if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
			return nil, services.Wrap(services.ErrValidation, "l10n", "ops",
				fmt.Sprintf("payload too large: %d bytes", total), nil)
		}

		normalized := Op{Op: "set", Path: path, Value: op.Value}
		if prev, seen := byPath[path]; seen {
			out[prev] = normalized
			continue
		}
		byPath[path] = len(out)
		out = append(out, normalized)
	}
	return out, nil
}
