package policy

import (
	"fmt"

	"glot/internal/services"
)

// Cap and budget keys consumed by the pipeline.
const (
	CapLocalesMax       = "l10n.locales.max"
	CapCustomLocalesMax = "l10n.locales.custom.max"

	BudgetGenerate = "budget.l10n.generate"
	BudgetRegens   = "budget.snapshots.regens"
	BudgetPublish  = "budget.renders.publish"
)

// Policy is a resolved entitlement set. Absent keys mean unlimited.
type Policy struct {
	Profile string
	Caps    map[string]int64
	Budgets map[string]int64
	Flags   map[string]bool
}

// Cap returns the cap for key, or nil when unlimited.
func (p Policy) Cap(key string) *int64 {
	if v, ok := p.Caps[key]; ok {
		return &v
	}
	return nil
}

// Budget returns the budget for key, or nil when unlimited.
func (p Policy) Budget(key string) *int64 {
	if v, ok := p.Budgets[key]; ok {
		return &v
	}
	return nil
}

var tiers = map[string]Policy{
	"free": {
		Caps: map[string]int64{
			CapLocalesMax:       2,
			CapCustomLocalesMax: 0,
		},
		Budgets: map[string]int64{
			BudgetGenerate: 50,
			BudgetRegens:   20,
			BudgetPublish:  10,
		},
	},
	"starter": {
		Caps: map[string]int64{
			CapLocalesMax:       5,
			CapCustomLocalesMax: 2,
		},
		Budgets: map[string]int64{
			BudgetGenerate: 500,
			BudgetRegens:   200,
			BudgetPublish:  100,
		},
	},
	"growth": {
		Caps:    map[string]int64{},
		Budgets: map[string]int64{},
	},
}

// Resolve maps an entitlement profile and role onto a Policy. Unknown
// profiles resolve to the free tier; elevated roles are recorded as flags
// for callers that relax operator-only actions.
func Resolve(profile, role string) Policy {
	tier, ok := tiers[profile]
	if !ok {
		tier = tiers["free"]
		profile = "free"
	}

	resolved := Policy{
		Profile: profile,
		Caps:    make(map[string]int64, len(tier.Caps)),
		Budgets: make(map[string]int64, len(tier.Budgets)),
		Flags:   map[string]bool{},
	}
	for k, v := range tier.Caps {
		resolved.Caps[k] = v
	}
	for k, v := range tier.Budgets {
		resolved.Budgets[k] = v
	}
	if role == "admin" || role == "operator" {
		resolved.Flags["role.elevated"] = true
	}
	return resolved
}

// ValidateLocaleSelection enforces the cap on locales beyond the canonical
// one. The canonical locale is always allowed and does not count.
func ValidateLocaleSelection(p Policy, canonical string, selected []string) error {
	cap := p.Cap(CapLocalesMax)
	if cap == nil {
		return nil
	}
	extra := 0
	for _, locale := range selected {
		if locale != canonical {
			extra++
		}
	}
	if int64(extra) > *cap {
		return services.Wrap(services.ErrDenied, "policy", "locales",
			fmt.Sprintf("selection of %d locales exceeds cap %d for profile %s", extra, *cap, p.Profile), nil)
	}
	return nil
}
