package buffer

import (
	"sort"

	"github.com/dshills/tandem/internal/event"
)

// Marker is a range that follows text edits.
type Marker struct {
	layer     *MarkerLayer
	id        int
	rng       Range
	reversed  bool
	destroyed bool
}

// MarkerChange describes a single marker range change.
type MarkerChange struct {
	Marker      *Marker
	OldRange    Range
	NewRange    Range
	TextChanged bool // true when the change was caused by a text edit
}

// LayerUpdate summarizes every marker mutation in a layer during one
// synchronous operation (a single edit, marker call, or Transact).
type LayerUpdate struct {
	Created   []int
	Moved     []int // explicitly repositioned
	Shifted   []int // moved only because text changed around them
	Destroyed []int
}

// IsEmpty reports whether the update carries no mutations.
func (u LayerUpdate) IsEmpty() bool {
	return len(u.Created) == 0 && len(u.Moved) == 0 && len(u.Shifted) == 0 && len(u.Destroyed) == 0
}

// OnlyShifted reports whether every mutation was a consequence of a text edit.
func (u LayerUpdate) OnlyShifted() bool {
	return len(u.Shifted) > 0 && len(u.Created) == 0 && len(u.Moved) == 0 && len(u.Destroyed) == 0
}

// MarkerLayer is an independent set of markers on one buffer.
type MarkerLayer struct {
	buf       *Buffer
	id        int
	name      string
	markers   map[int]*Marker
	nextID    int
	destroyed bool
	pending   LayerUpdate

	didCreate  event.Emitter[*Marker]
	didChange  event.Emitter[MarkerChange]
	didDestroy event.Emitter[*Marker]
	didUpdate  event.Emitter[LayerUpdate]
}

// AddMarkerLayer creates a new marker layer.
func (b *Buffer) AddMarkerLayer(name string) *MarkerLayer {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextLayerID++
	l := &MarkerLayer{
		buf:     b,
		id:      b.nextLayerID,
		name:    name,
		markers: make(map[int]*Marker),
		nextID:  1,
	}
	if b.destroyed {
		l.destroyed = true
		return l
	}
	b.layers = append(b.layers, l)
	return l
}

// ID returns the layer id, unique within its buffer.
func (l *MarkerLayer) ID() int {
	return l.id
}

// Name returns the layer name.
func (l *MarkerLayer) Name() string {
	return l.name
}

// MarkRange creates a marker covering r. A reversed marker has its head at
// the start of the range.
func (l *MarkerLayer) MarkRange(r Range, reversed bool) *Marker {
	b := l.buf
	b.mu.Lock()

	m := &Marker{
		layer:    l,
		id:       l.nextID,
		rng:      NewRange(b.clipLocked(r.Start), b.clipLocked(r.End)),
		reversed: reversed,
	}
	l.nextID++

	if l.destroyed {
		m.destroyed = true
		b.mu.Unlock()
		return m
	}

	l.markers[m.id] = m
	l.pending.Created = appendID(l.pending.Created, m.id)
	b.pending = append(b.pending, func() { l.didCreate.Emit(m) })
	b.unlockAndFlush()
	return m
}

// MarkPoint creates an empty marker at p.
func (l *MarkerLayer) MarkPoint(p Point) *Marker {
	return l.MarkRange(PointRange(p), false)
}

// Marker returns the marker with the given id.
func (l *MarkerLayer) Marker(id int) (*Marker, bool) {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()
	m, ok := l.markers[id]
	return m, ok
}

// Markers returns all live markers ordered by id.
func (l *MarkerLayer) Markers() []*Marker {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()

	result := make([]*Marker, 0, len(l.markers))
	for _, m := range l.markers {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].id < result[j].id })
	return result
}

// Len returns the number of live markers.
func (l *MarkerLayer) Len() int {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()
	return len(l.markers)
}

// Clear destroys every marker in the layer.
func (l *MarkerLayer) Clear() {
	b := l.buf
	b.mu.Lock()
	for _, m := range l.markers {
		l.destroyMarkerLocked(m)
	}
	b.unlockAndFlush()
}

// Destroy destroys the layer and its markers. Idempotent.
func (l *MarkerLayer) Destroy() {
	b := l.buf
	b.mu.Lock()
	if l.destroyed {
		b.mu.Unlock()
		return
	}
	for _, m := range l.markers {
		l.destroyMarkerLocked(m)
	}
	// Deliver the final update before detaching from the buffer.
	if u := l.takePendingLocked(); !u.IsEmpty() {
		b.pending = append(b.pending, func() { l.didUpdate.Emit(u) })
	}
	l.destroyed = true
	for i, other := range b.layers {
		if other == l {
			b.layers = append(b.layers[:i:i], b.layers[i+1:]...)
			break
		}
	}
	b.unlockAndFlush()
}

// IsDestroyed reports whether the layer was destroyed.
func (l *MarkerLayer) IsDestroyed() bool {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()
	return l.destroyed
}

// OnDidCreateMarker registers fn for marker creation.
func (l *MarkerLayer) OnDidCreateMarker(fn func(*Marker)) event.Subscription {
	return l.didCreate.Subscribe(fn)
}

// OnDidChangeMarker registers fn for each marker range change.
func (l *MarkerLayer) OnDidChangeMarker(fn func(MarkerChange)) event.Subscription {
	return l.didChange.Subscribe(fn)
}

// OnDidDestroyMarker registers fn for marker destruction.
func (l *MarkerLayer) OnDidDestroyMarker(fn func(*Marker)) event.Subscription {
	return l.didDestroy.Subscribe(fn)
}

// OnDidUpdate registers fn to receive one coalesced LayerUpdate per
// synchronous operation that touched the layer.
func (l *MarkerLayer) OnDidUpdate(fn func(LayerUpdate)) event.Subscription {
	return l.didUpdate.Subscribe(fn)
}

func (l *MarkerLayer) destroyMarkerLocked(m *Marker) {
	if m.destroyed {
		return
	}
	m.destroyed = true
	delete(l.markers, m.id)
	l.pending.Destroyed = appendID(l.pending.Destroyed, m.id)
	l.buf.pending = append(l.buf.pending, func() { l.didDestroy.Emit(m) })
}

// destroyLocked is used by buffer teardown; it emits nothing.
func (l *MarkerLayer) destroyLocked() {
	for _, m := range l.markers {
		m.destroyed = true
	}
	l.markers = map[int]*Marker{}
	l.pending = LayerUpdate{}
	l.destroyed = true
}

func (l *MarkerLayer) takePendingLocked() LayerUpdate {
	u := l.pending
	l.pending = LayerUpdate{}
	return u
}

// ID returns the marker id, unique within its layer.
func (m *Marker) ID() int {
	return m.id
}

// Layer returns the layer that owns the marker.
func (m *Marker) Layer() *MarkerLayer {
	return m.layer
}

// Range returns the marker range.
func (m *Marker) Range() Range {
	m.layer.buf.mu.RLock()
	defer m.layer.buf.mu.RUnlock()
	return m.rng
}

// IsReversed reports whether the head is at the start of the range.
func (m *Marker) IsReversed() bool {
	m.layer.buf.mu.RLock()
	defer m.layer.buf.mu.RUnlock()
	return m.reversed
}

// Head returns the cursor end of the marker.
func (m *Marker) Head() Point {
	m.layer.buf.mu.RLock()
	defer m.layer.buf.mu.RUnlock()
	if m.reversed {
		return m.rng.Start
	}
	return m.rng.End
}

// Tail returns the anchored end of the marker.
func (m *Marker) Tail() Point {
	m.layer.buf.mu.RLock()
	defer m.layer.buf.mu.RUnlock()
	if m.reversed {
		return m.rng.End
	}
	return m.rng.Start
}

// IsDestroyed reports whether the marker was destroyed.
func (m *Marker) IsDestroyed() bool {
	m.layer.buf.mu.RLock()
	defer m.layer.buf.mu.RUnlock()
	return m.destroyed
}

// SetRange explicitly repositions the marker. No-op on a destroyed marker
// or when nothing changes.
func (m *Marker) SetRange(r Range, reversed bool) {
	l := m.layer
	b := l.buf
	b.mu.Lock()
	if m.destroyed {
		b.mu.Unlock()
		return
	}

	next := NewRange(b.clipLocked(r.Start), b.clipLocked(r.End))
	if next == m.rng && reversed == m.reversed {
		b.mu.Unlock()
		return
	}

	change := MarkerChange{Marker: m, OldRange: m.rng, NewRange: next}
	m.rng = next
	m.reversed = reversed
	l.pending.Moved = appendID(l.pending.Moved, m.id)
	b.pending = append(b.pending, func() { l.didChange.Emit(change) })
	b.unlockAndFlush()
}

// SetHead moves the head to p, keeping the tail when keepTail is set and
// collapsing to a cursor otherwise.
func (m *Marker) SetHead(p Point, keepTail bool) {
	if !keepTail {
		m.SetRange(PointRange(p), false)
		return
	}
	tail := m.Tail()
	m.SetRange(NewRange(tail, p), p.Before(tail))
}

// Destroy removes the marker from its layer. Idempotent.
func (m *Marker) Destroy() {
	b := m.layer.buf
	b.mu.Lock()
	m.layer.destroyMarkerLocked(m)
	b.unlockAndFlush()
}

type markerOffsets struct {
	marker     *Marker
	start, end int
}

func (b *Buffer) markerOffsetsLocked() []markerOffsets {
	var result []markerOffsets
	for _, l := range b.layers {
		for _, m := range l.markers {
			result = append(result, markerOffsets{
				marker: m,
				start:  b.offsetLocked(m.rng.Start),
				end:    b.offsetLocked(m.rng.End),
			})
		}
	}
	return result
}

// shiftMarkersLocked moves markers after the text in [start, end) was
// replaced by newLen bytes. The index must already reflect the new text.
func (b *Buffer) shiftMarkersLocked(offsets []markerOffsets, start, end, newLen int) {
	for _, mo := range offsets {
		m := mo.marker
		next := Range{
			Start: b.pointLocked(transformOffset(mo.start, start, end, newLen)),
			End:   b.pointLocked(transformOffset(mo.end, start, end, newLen)),
		}
		if next == m.rng {
			continue
		}

		l := m.layer
		change := MarkerChange{Marker: m, OldRange: m.rng, NewRange: next, TextChanged: true}
		m.rng = next
		l.pending.Shifted = appendID(l.pending.Shifted, m.id)
		b.pending = append(b.pending, func() { l.didChange.Emit(change) })
	}
}

// transformOffset updates an offset after [start, end) was replaced by
// newLen bytes:
//   - edit entirely before offset: shift by the edit's delta
//   - edit starts at or after offset: unchanged
//   - edit spans offset: move to the end of the new text
func transformOffset(offset, start, end, newLen int) int {
	if end <= offset {
		return offset - (end - start) + newLen
	}
	if start >= offset {
		return offset
	}
	return start + newLen
}

func appendID(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
