// Package overlay persists per-locale translation output and user overrides.
//
// One overlay exists per (content, layer, locale); a new base fingerprint
// supersedes the previous overlay in place rather than creating a sibling.
// Rebase carries still-valid ops forward across base content changes so user
// edits survive unrelated edits while dangling paths are dropped.
package overlay
