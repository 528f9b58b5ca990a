// Package policy resolves entitlement profiles into caps and budgets.
//
// The pipeline never interprets tiers directly; it asks for a cap or budget
// by key and treats a missing entry as unlimited.
package policy
