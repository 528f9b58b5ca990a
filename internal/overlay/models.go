package overlay

import (
	"time"

	"glot/internal/l10n"
	"glot/internal/services"
)

// Source records how an overlay came to exist.
const (
	SourceAgent  = "agent"
	SourceUser   = "user"
	SourceImport = "import"
)

// ValidSource reports whether source is a known overlay origin.
func ValidSource(source string) bool {
	return source == SourceAgent || source == SourceUser || source == SourceImport
}

// Record is one persisted overlay row.
type Record struct {
	ContentID       string
	Layer           string
	Locale          string
	Ops             []l10n.Op
	UserOps         []l10n.Op
	BaseFingerprint string
	BaseUpdatedAt   time.Time
	Source          string
	GeoTargets      []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Update describes an upsert. Nil op slices leave the stored column alone so
// a caller can patch userOps without touching machine ops, and vice versa.
// Allow and Limits gate the op payload; an update carrying ops for paths
// outside the widget's allowlist never reaches the table.
type Update struct {
	ContentID       string
	Layer           string
	Locale          string
	Ops             []l10n.Op
	UserOps         []l10n.Op
	BaseFingerprint string
	BaseUpdatedAt   time.Time
	Source          string
	GeoTargets      []string

	Allow  l10n.Allowlist
	Limits l10n.OpLimits
}

func (u *Update) validate() error {
	if u.ContentID == "" || u.Locale == "" {
		return services.Wrap(services.ErrValidation, "overlay", "upsert", "missing content id or locale", nil)
	}
	if !l10n.ValidLayer(u.Layer) {
		return services.Wrap(services.ErrValidation, "overlay", "upsert", "unknown layer "+u.Layer, nil)
	}
	if !ValidSource(u.Source) {
		return services.Wrap(services.ErrValidation, "overlay", "upsert", "unknown source "+u.Source, nil)
	}
	if u.BaseFingerprint == "" {
		return services.Wrap(services.ErrValidation, "overlay", "upsert", "missing base fingerprint", nil)
	}
	if len(u.GeoTargets) > 0 {
		if u.Layer != l10n.LayerLocale {
			return services.Wrap(services.ErrValidation, "overlay", "upsert", "geo targets are locale layer only", nil)
		}
		for _, code := range u.GeoTargets {
			if !validCountryCode(code) {
				return services.Wrap(services.ErrValidation, "overlay", "upsert", "invalid country code "+code, nil)
			}
		}
	}
	return nil
}

func validCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
