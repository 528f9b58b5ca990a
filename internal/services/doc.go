// Package services defines shared utilities consumed across the pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp content IDs, locales, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper and the Classify function
//     that map failures onto retry outcomes (retry vs denied vs fatal).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
