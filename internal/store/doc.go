// Package store owns the shared SQLite handle for pipeline persistence.
//
// It applies connection pragmas, initializes the schema, and exposes
// busy-retry helpers used by the per-domain stores (generate states,
// overlays, base snapshots, KV counters, reference content).
package store
