package buffer

import "testing"

func TestMarkerFollowsEdits(t *testing.T) {
	b := NewBufferFromString("hello world")
	l := b.AddMarkerLayer("test")
	m := l.MarkRange(Range{Start: pt(0, 6), End: pt(0, 11)}, false)

	b.Insert(pt(0, 0), "oh, ", OriginLocal)
	if got := m.Range(); got != (Range{Start: pt(0, 10), End: pt(0, 15)}) {
		t.Errorf("after insert before: %v", got)
	}

	b.Insert(pt(0, 15), "!", OriginLocal)
	if got := m.Range(); got != (Range{Start: pt(0, 10), End: pt(0, 16)}) {
		t.Errorf("after insert at end: %v", got)
	}

	b.Insert(pt(0, 4), "\n", OriginRemote)
	if got := m.Range(); got != (Range{Start: pt(1, 6), End: pt(1, 12)}) {
		t.Errorf("after newline: %v", got)
	}
}

func TestTransformOffset(t *testing.T) {
	tests := []struct {
		name                             string
		offset, start, end, newLen, want int
	}{
		{"edit before", 10, 0, 2, 5, 13},
		{"edit after", 3, 5, 8, 0, 3},
		{"insert at offset pushes", 4, 4, 4, 2, 6},
		{"delete ending at offset", 4, 1, 4, 0, 1},
		{"edit spans offset", 5, 2, 8, 3, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transformOffset(tt.offset, tt.start, tt.end, tt.newLen); got != tt.want {
				t.Errorf("transformOffset = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayerUpdateDistinguishesShiftFromMove(t *testing.T) {
	b := NewBufferFromString("abc")
	l := b.AddMarkerLayer("cursors")
	m := l.MarkPoint(pt(0, 2))

	var updates []LayerUpdate
	l.OnDidUpdate(func(u LayerUpdate) { updates = append(updates, u) })

	b.Insert(pt(0, 0), "x", OriginLocal)
	m.SetRange(PointRange(pt(0, 0)), false)

	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if !updates[0].OnlyShifted() {
		t.Errorf("edit update should be shift-only: %+v", updates[0])
	}
	if updates[1].OnlyShifted() || len(updates[1].Moved) != 1 {
		t.Errorf("move update = %+v", updates[1])
	}
}

func TestTransactCoalescesLayerUpdates(t *testing.T) {
	b := NewBufferFromString("one two three")
	l := b.AddMarkerLayer("cursors")

	var updates []LayerUpdate
	l.OnDidUpdate(func(u LayerUpdate) { updates = append(updates, u) })

	var a, c *Marker
	b.Transact(func() {
		a = l.MarkPoint(pt(0, 0))
		c = l.MarkPoint(pt(0, 4))
		a.SetRange(Range{Start: pt(0, 0), End: pt(0, 3)}, false)
		c.Destroy()
	})

	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	u := updates[0]
	if len(u.Created) != 2 || len(u.Moved) != 1 || len(u.Destroyed) != 1 {
		t.Errorf("coalesced update = %+v", u)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d", l.Len())
	}
}

func TestMarkerEvents(t *testing.T) {
	b := NewBufferFromString("abc")
	l := b.AddMarkerLayer("x")

	var created, destroyed int
	var changes []MarkerChange
	l.OnDidCreateMarker(func(*Marker) { created++ })
	l.OnDidDestroyMarker(func(*Marker) { destroyed++ })
	l.OnDidChangeMarker(func(c MarkerChange) { changes = append(changes, c) })

	m := l.MarkRange(Range{Start: pt(0, 2), End: pt(0, 0)}, true)
	if m.Range() != (Range{Start: pt(0, 0), End: pt(0, 2)}) {
		t.Errorf("range not normalized: %v", m.Range())
	}
	if m.Head() != pt(0, 0) || m.Tail() != pt(0, 2) {
		t.Errorf("head/tail = %v/%v", m.Head(), m.Tail())
	}

	m.SetRange(m.Range(), true)
	m.SetHead(pt(0, 3), true)
	m.Destroy()
	m.Destroy()
	m.SetRange(PointRange(pt(0, 1)), false)

	if created != 1 || destroyed != 1 {
		t.Errorf("created=%d destroyed=%d", created, destroyed)
	}
	if len(changes) != 1 || changes[0].TextChanged {
		t.Errorf("changes = %+v", changes)
	}
	if _, ok := l.Marker(m.ID()); ok {
		t.Error("destroyed marker still in layer")
	}
}

func TestLayerDestroy(t *testing.T) {
	b := NewBufferFromString("abc")
	l := b.AddMarkerLayer("x")
	l.MarkPoint(pt(0, 1))
	l.MarkPoint(pt(0, 2))

	var final LayerUpdate
	l.OnDidUpdate(func(u LayerUpdate) { final = u })

	l.Destroy()
	l.Destroy()

	if len(final.Destroyed) != 2 {
		t.Errorf("final update = %+v", final)
	}
	if !l.IsDestroyed() {
		t.Error("IsDestroyed() = false")
	}
	if m := l.MarkPoint(pt(0, 0)); !m.IsDestroyed() {
		t.Error("marker on destroyed layer should be born destroyed")
	}

	b.Insert(pt(0, 0), "x", OriginLocal)
}
