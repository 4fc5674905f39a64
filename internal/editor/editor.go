package editor

import (
	"sort"
	"sync"

	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/renderer/viewport"
)

// SelectionLayerName names the marker layer holding the local selections.
const SelectionLayerName = "selections"

// Config configures an Editor.
type Config struct {
	// Width and Height are the viewport size in cells.
	Width  int
	Height int
}

// DefaultConfig returns the default editor configuration.
func DefaultConfig() Config {
	return Config{Width: 80, Height: 24}
}

// Editor is a view onto one buffer.
type Editor struct {
	mu sync.Mutex

	uri        string
	buf        *buffer.Buffer
	selections *buffer.MarkerLayer
	view       *viewport.Viewport

	decorations []*DecorationLayer
	destroyed   bool
	subs        event.Group

	didMoveLocally       event.Emitter[struct{}]
	didChangeDecorations event.Emitter[struct{}]
	didDestroy           event.Emitter[struct{}]
}

// New creates an editor for buf identified by uri. It starts with a single
// cursor at the beginning of the buffer.
func New(uri string, buf *buffer.Buffer, cfg Config) *Editor {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg = DefaultConfig()
	}

	e := &Editor{
		uri:        uri,
		buf:        buf,
		selections: buf.AddMarkerLayer(SelectionLayerName),
		view:       viewport.NewViewport(cfg.Width, cfg.Height),
	}
	e.selections.MarkPoint(buffer.Point{})
	e.view.SetMaxLine(buf.LineCount())

	e.subs.Add(
		buf.OnDidChange(func(buffer.Change) {
			e.view.SetMaxLine(buf.LineCount())
		}),
		e.view.OnDidScroll(func(ev viewport.ScrollEvent) {
			if ev.Origin == viewport.ScrollUser {
				e.didMoveLocally.Emit(struct{}{})
			}
		}),
		buf.OnDidDestroy(e.Destroy),
	)
	return e
}

// URI returns the editor's document uri.
func (e *Editor) URI() string {
	return e.uri
}

// Buffer returns the edited buffer.
func (e *Editor) Buffer() *buffer.Buffer {
	return e.buf
}

// Viewport returns the editor's viewport.
func (e *Editor) Viewport() *viewport.Viewport {
	return e.view
}

// SelectionLayer returns the marker layer holding the local selections.
func (e *Editor) SelectionLayer() *buffer.MarkerLayer {
	return e.selections
}

// Selections returns the selected ranges ordered by marker id.
func (e *Editor) Selections() []buffer.Range {
	markers := e.selections.Markers()
	out := make([]buffer.Range, len(markers))
	for i, m := range markers {
		out[i] = m.Range()
	}
	return out
}

// LastCursor returns the newest selection marker.
func (e *Editor) LastCursor() *buffer.Marker {
	markers := e.selections.Markers()
	if len(markers) == 0 {
		return nil
	}
	return markers[len(markers)-1]
}

// CursorPosition returns the head of the newest selection.
func (e *Editor) CursorPosition() buffer.Point {
	if m := e.LastCursor(); m != nil {
		return m.Head()
	}
	return buffer.Point{}
}

// Batch runs fn so that all selection changes made by it are reported as
// one layer update.
func (e *Editor) Batch(fn func()) {
	e.buf.Transact(fn)
}

// SetCursorPosition collapses the selections to a single cursor at p.
func (e *Editor) SetCursorPosition(p buffer.Point) {
	e.SetSelectedRange(buffer.PointRange(p), false)
}

// SetSelectedRange replaces every selection with r.
func (e *Editor) SetSelectedRange(r buffer.Range, reversed bool) {
	e.Batch(func() {
		markers := e.selections.Markers()
		if len(markers) == 0 {
			e.selections.MarkRange(r, reversed)
			return
		}
		for _, m := range markers[:len(markers)-1] {
			m.Destroy()
		}
		markers[len(markers)-1].SetRange(r, reversed)
	})
	e.didMoveLocally.Emit(struct{}{})
}

// SetSelectedRanges replaces the selections with forward ranges.
func (e *Editor) SetSelectedRanges(ranges []buffer.Range) {
	sels := make([]buffer.Selection, len(ranges))
	for i, r := range ranges {
		sels[i] = buffer.Selection{Range: r}
	}
	e.SetSelections(sels)
}

// SetSelections replaces the selections, reusing existing markers where
// possible.
func (e *Editor) SetSelections(sels []buffer.Selection) {
	if len(sels) == 0 {
		return
	}
	e.Batch(func() {
		markers := e.selections.Markers()
		for i, s := range sels {
			if i < len(markers) {
				markers[i].SetRange(s.Range, s.Reversed)
			} else {
				e.selections.MarkRange(s.Range, s.Reversed)
			}
		}
		for _, m := range markers[min(len(sels), len(markers)):] {
			m.Destroy()
		}
	})
	e.didMoveLocally.Emit(struct{}{})
}

// AddSelection adds a selection.
func (e *Editor) AddSelection(r buffer.Range, reversed bool) *buffer.Marker {
	m := e.selections.MarkRange(r, reversed)
	e.didMoveLocally.Emit(struct{}{})
	return m
}

// MoveCursor moves the newest cursor to p, extending its selection when
// selecting is set.
func (e *Editor) MoveCursor(p buffer.Point, selecting bool) {
	m := e.LastCursor()
	if m == nil {
		e.SetCursorPosition(p)
		return
	}
	m.SetHead(p, selecting)
	e.didMoveLocally.Emit(struct{}{})
}

// InsertText replaces every selection with text as a local edit.
func (e *Editor) InsertText(text string) error {
	var err error
	e.Batch(func() {
		markers := e.selections.Markers()
		// Last in document order first so earlier ranges stay valid.
		sort.Slice(markers, func(i, j int) bool {
			return markers[j].Range().Start.Before(markers[i].Range().Start)
		})
		for _, m := range markers {
			if _, err = e.buf.SetTextInRange(m.Range(), text, buffer.OriginLocal); err != nil {
				return
			}
		}
	})
	return err
}

// Undo undoes through the buffer's history provider and restores the
// returned selections.
func (e *Editor) Undo() bool {
	sels, ok := e.buf.Undo()
	if ok && len(sels) > 0 {
		e.SetSelections(sels)
	}
	return ok
}

// Redo redoes through the buffer's history provider.
func (e *Editor) Redo() bool {
	sels, ok := e.buf.Redo()
	if ok && len(sels) > 0 {
		e.SetSelections(sels)
	}
	return ok
}

// ScrollBy scrolls the viewport as the local user.
func (e *Editor) ScrollBy(deltaLines int) {
	e.view.ScrollBy(deltaLines, viewport.ScrollUser)
}

// IsPointVisible reports whether p is inside the viewport.
func (e *Editor) IsPointVisible(p buffer.Point) bool {
	return e.view.IsPositionVisible(p.Line, e.buf.LineText(p.Line), p.Column)
}

// RevealPoint centers the viewport on p without counting as local movement.
func (e *Editor) RevealPoint(p buffer.Point) {
	col := viewport.DisplayColumn(e.buf.LineText(p.Line), p.Column)
	e.view.CenterOn(p.Line, col, viewport.ScrollProgrammatic)
}

// OnDidMoveLocally registers fn for cursor or viewport movements made
// through the editor API or by the user scrolling.
func (e *Editor) OnDidMoveLocally(fn func()) event.Subscription {
	return e.didMoveLocally.Subscribe(func(struct{}) { fn() })
}

// AddDecorationLayer creates a decoration layer.
func (e *Editor) AddDecorationLayer(name string) *DecorationLayer {
	l := &DecorationLayer{
		editor:  e,
		name:    name,
		markers: e.buf.AddMarkerLayer(name),
	}
	l.markers.OnDidUpdate(func(buffer.LayerUpdate) {
		e.didChangeDecorations.Emit(struct{}{})
	})

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		l.markers.Destroy()
		return l
	}
	e.decorations = append(e.decorations, l)
	e.mu.Unlock()
	return l
}

func (e *Editor) removeDecorationLayer(l *DecorationLayer) {
	e.mu.Lock()
	for i, other := range e.decorations {
		if other == l {
			e.decorations = append(e.decorations[:i:i], e.decorations[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	e.didChangeDecorations.Emit(struct{}{})
}

// DecorationLayers returns the live decoration layers in creation order.
func (e *Editor) DecorationLayers() []*DecorationLayer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*DecorationLayer, len(e.decorations))
	copy(out, e.decorations)
	return out
}

// Decorations returns the decorations of every layer.
func (e *Editor) Decorations() []Decoration {
	var out []Decoration
	for _, l := range e.DecorationLayers() {
		out = append(out, l.Decorations()...)
	}
	return out
}

// OnDidChangeDecorations registers fn for decoration changes.
func (e *Editor) OnDidChangeDecorations(fn func()) event.Subscription {
	return e.didChangeDecorations.Subscribe(func(struct{}) { fn() })
}

// Destroy tears the editor down. The buffer is left alone. Idempotent.
func (e *Editor) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	layers := e.decorations
	e.decorations = nil
	e.mu.Unlock()

	e.subs.Cancel()
	for _, l := range layers {
		l.markers.Destroy()
	}
	e.selections.Destroy()
	e.didDestroy.Emit(struct{}{})
	e.didMoveLocally.Clear()
	e.didChangeDecorations.Clear()
	e.didDestroy.Clear()
}

// IsDestroyed reports whether the editor was destroyed.
func (e *Editor) IsDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// OnDidDestroy registers fn to run when the editor is destroyed.
func (e *Editor) OnDidDestroy(fn func()) event.Subscription {
	return e.didDestroy.Subscribe(func(struct{}) { fn() })
}
