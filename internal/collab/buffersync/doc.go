// Package buffersync keeps a local text buffer and a shared document
// textually identical.
//
// Local edits are forwarded to the document and remote change batches are
// applied to the buffer. While bound, the shared document owns undo, redo
// and checkpoints for the buffer; the buffer's own history is restored,
// seeded from the shared history, when the binding is disposed.
package buffersync
