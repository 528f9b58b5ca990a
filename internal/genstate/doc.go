// Package genstate tracks translation generation state per
// (content, layer, locale, fingerprint) key.
//
// The state machine itself is a pure transition function over statuses so it
// can be tested without a database; the store enforces the same transitions
// with conditional updates keyed by the natural key, never read-modify-write
// under a held lock. Superseded records are kept for audit, never deleted.
package genstate
