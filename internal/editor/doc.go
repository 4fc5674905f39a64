// Package editor combines a text buffer with its cursors, viewport and
// overlay decorations, and tracks which editors a workspace has open.
//
// Cursors and selections live in the buffer marker layer named
// SelectionLayerName, so they follow text edits. Movements requested
// through the Editor API are reported with OnDidMoveLocally; shifts caused
// by text edits are not.
package editor
