// Package buffer provides the local text buffer that collaboration bindings
// attach to.
//
// The buffer package provides:
//
//   - Line/column addressing (Point, Range) with byte columns
//   - Provenance-tagged mutations (Origin) so observers can tell a user's
//     keystroke from a replayed remote change or a history step
//   - Change notifications carrying old and new ranges and text
//   - Marker layers whose markers follow text edits and report whether a
//     change was caused by an edit or by an explicit move
//   - A pluggable history provider, so undo/redo can be delegated to an
//     external owner and later restored to a seeded default
//   - A pluggable file adapter for path/modified/save behavior
//
// Basic usage:
//
//	buf := buffer.NewBufferFromString("hello\nworld")
//	buf.Insert(buffer.Point{Line: 1, Column: 0}, "cruel ", buffer.OriginLocal)
//	buf.Text() // "hello\ncruel world"
//
// Thread Safety:
//
// Buffer methods may be called from any goroutine. Notifications are
// delivered after the buffer's lock is released, on the mutating goroutine,
// so handlers may call back into the buffer.
package buffer
