// Package renderer draws the visible region of an editor into a Frame of
// styled cells.
//
// Text is laid out by grapheme cluster, so wide and combined characters
// take the cells they are drawn in. On top of the text the renderer paints,
// in order:
//
//   - remote selections, in their decoration layer's selection style
//   - remote cursors, in the layer's cursor style
//   - the local cursors, in reverse video
//
// A Frame is independent of any terminal; package backend puts it on a
// tcell screen.
package renderer
