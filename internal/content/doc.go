// Package content provides read access to the widget instances, workspace
// locale selections, and widget-type allowlists the pipeline consumes.
//
// The allowlist cache is explicit and injected: a TTL plus an Invalidate
// call, never ambient process-wide memoization, so tests control staleness.
package content
