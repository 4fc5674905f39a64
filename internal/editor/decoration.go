package editor

import (
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/tandem/internal/engine/buffer"
)

// Decoration is a marker rendered on top of the text.
type Decoration struct {
	Layer    string
	MarkerID int
	Range    buffer.Range
	Head     buffer.Point

	// Style highlights Range. Tail is false for empty ranges, which are
	// drawn as a bare cursor at Head with CursorStyle.
	Style       tcell.Style
	CursorStyle tcell.Style
	Tail        bool
}

// DecorationLayer is a named marker layer whose markers are drawn as
// decorations.
type DecorationLayer struct {
	editor  *Editor
	name    string
	markers *buffer.MarkerLayer

	mu             sync.Mutex
	selectionStyle tcell.Style
	cursorStyle    tcell.Style
}

// Name returns the layer name.
func (l *DecorationLayer) Name() string {
	return l.name
}

// Markers returns the marker layer backing the decorations.
func (l *DecorationLayer) Markers() *buffer.MarkerLayer {
	return l.markers
}

// SetStyles sets the styles used for selections and cursors.
func (l *DecorationLayer) SetStyles(selection, cursor tcell.Style) {
	l.mu.Lock()
	l.selectionStyle = selection
	l.cursorStyle = cursor
	l.mu.Unlock()
	l.editor.didChangeDecorations.Emit(struct{}{})
}

// Decorations returns a decoration per live marker, ordered by marker id.
func (l *DecorationLayer) Decorations() []Decoration {
	l.mu.Lock()
	sel, cur := l.selectionStyle, l.cursorStyle
	l.mu.Unlock()

	markers := l.markers.Markers()
	out := make([]Decoration, 0, len(markers))
	for _, m := range markers {
		r := m.Range()
		out = append(out, Decoration{
			Layer:       l.name,
			MarkerID:    m.ID(),
			Range:       r,
			Head:        m.Head(),
			Style:       sel,
			CursorStyle: cur,
			Tail:        !r.IsEmpty(),
		})
	}
	return out
}

// Destroy removes the layer and its markers. Idempotent.
func (l *DecorationLayer) Destroy() {
	l.editor.removeDecorationLayer(l)
	l.markers.Destroy()
}

// IsDestroyed reports whether the layer was destroyed.
func (l *DecorationLayer) IsDestroyed() bool {
	return l.markers.IsDestroyed()
}
