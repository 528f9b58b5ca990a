// Package publish drives the render pointer/revision protocol.
//
// Every revision is immutable: publishing writes all per-locale artifacts
// and the complete revision index first, then flips the content's pointer.
// Readers resolve pointer → index → artifacts and treat a missing pointer
// as "not published". Unpublishing deletes only the pointer, keeping the
// revision history servable again on the next publish.
package publish
