// Package snapshot extracts translatable strings from content trees and
// fingerprints content for change detection.
//
// A snapshot is the flat path-to-string mapping produced by walking a widget
// allowlist over a content object. The fingerprint is computed over the whole
// content object, not the filtered snapshot, so structural edits that touch
// no translatable text still invalidate downstream overlays. The package
// also persists one snapshot row per (content, fingerprint) as the diff
// baseline for the next edit.
package snapshot
