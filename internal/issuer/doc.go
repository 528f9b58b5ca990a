// Package issuer turns "this content changed" into authorized translation
// jobs.
//
// Enqueue snapshots the content, supersedes state for stale fingerprints,
// rebases overlays, applies per-locale skip rules, meters the budget gate,
// and hands granted jobs to the queue. Failures at grant or enqueue time
// demote exactly the affected locales back into the state machine as
// retryable failures; locales already enqueued proceed independently.
package issuer
