package memdoc

import (
	"strings"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
)

// op is one accepted edit. Its inserted items are visible and its deleted
// items hidden only while the op is active.
type op struct {
	site   shared.SiteID
	seq    uint64
	active bool
}

// item is a single byte of the document. Items are never removed.
type item struct {
	ch         byte
	insertedBy *op
	deletedBy  []*op
}

func (it *item) visible() bool {
	if !it.insertedBy.active {
		return false
	}
	for _, d := range it.deletedBy {
		if d.active {
			return false
		}
	}
	return true
}

// sequence is the ordered item list of one document.
type sequence struct {
	items []*item
}

func newSequence(text string, base *op) *sequence {
	s := &sequence{items: make([]*item, len(text))}
	for i := 0; i < len(text); i++ {
		s.items[i] = &item{ch: text[i], insertedBy: base}
	}
	return s
}

func (s *sequence) text() string {
	var b strings.Builder
	for _, it := range s.items {
		if it.visible() {
			b.WriteByte(it.ch)
		}
	}
	return b.String()
}

func (s *sequence) visibility() []bool {
	vis := make([]bool, len(s.items))
	for i, it := range s.items {
		vis[i] = it.visible()
	}
	return vis
}

// visibleIndexes returns the item index of every visible byte.
func (s *sequence) visibleIndexes() []int {
	var idx []int
	for i, it := range s.items {
		if it.visible() {
			idx = append(idx, i)
		}
	}
	return idx
}

// apply replaces the visible bytes [start, end) with text on behalf of o.
func (s *sequence) apply(o *op, start, end int, text string) {
	vis := s.visibleIndexes()
	for _, i := range vis[start:end] {
		s.items[i].deletedBy = append(s.items[i].deletedBy, o)
	}

	at := len(s.items)
	if start < len(vis) {
		at = vis[start]
	}
	inserted := make([]*item, len(text))
	for i := 0; i < len(text); i++ {
		inserted[i] = &item{ch: text[i], insertedBy: o}
	}

	items := make([]*item, 0, len(s.items)+len(inserted))
	items = append(items, s.items[:at]...)
	items = append(items, inserted...)
	items = append(items, s.items[at:]...)
	s.items = items
}

// run is one contiguous difference between two visibility states. pre is
// its start in the old text and post its start in the new text.
type run struct {
	pre     buffer.Point
	post    buffer.Point
	oldText string
	newText string
}

// diff compares two visibility states of the same item list, left to right.
// Items hidden in both states do not split a run.
func (s *sequence) diff(from, to []bool) []run {
	var (
		runs           []run
		cur            *run
		oldBuf, newBuf strings.Builder
		p0, p1         buffer.Point
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.oldText = oldBuf.String()
		cur.newText = newBuf.String()
		runs = append(runs, *cur)
		cur = nil
		oldBuf.Reset()
		newBuf.Reset()
	}

	for i, it := range s.items {
		was, is := from[i], to[i]
		if was == is {
			if was {
				flush()
				p0 = advance(p0, it.ch)
				p1 = advance(p1, it.ch)
			}
			continue
		}
		if cur == nil {
			cur = &run{pre: p0, post: p1}
		}
		if was {
			oldBuf.WriteByte(it.ch)
			p0 = advance(p0, it.ch)
		} else {
			newBuf.WriteByte(it.ch)
			p1 = advance(p1, it.ch)
		}
	}
	flush()
	return runs
}

func advance(p buffer.Point, ch byte) buffer.Point {
	if ch == '\n' {
		return buffer.Point{Line: p.Line + 1}
	}
	p.Column++
	return p
}

// batchChanges expresses runs against the old text, for tail-first
// application by other sites.
func batchChanges(runs []run) []shared.Change {
	if len(runs) == 0 {
		return nil
	}
	out := make([]shared.Change, len(runs))
	for i, r := range runs {
		out[i] = shared.Change{
			OldStart: r.pre,
			OldEnd:   buffer.Extent(r.pre, r.oldText),
			OldText:  r.oldText,
			NewText:  r.newText,
		}
	}
	return out
}

// sequentialChanges expresses runs so that applying them first to last
// turns the old text into the new one.
func sequentialChanges(runs []run) []shared.Change {
	if len(runs) == 0 {
		return nil
	}
	out := make([]shared.Change, len(runs))
	for i, r := range runs {
		out[i] = shared.Change{
			OldStart: r.post,
			OldEnd:   buffer.Extent(r.post, r.oldText),
			OldText:  r.oldText,
			NewText:  r.newText,
		}
	}
	return out
}

// runMarkers places a cursor or selection over the new text of each run.
func runMarkers(runs []run) shared.MarkerSet {
	if len(runs) == 0 {
		return nil
	}
	m := make(shared.MarkerSet, len(runs))
	for i, r := range runs {
		m[i+1] = shared.MarkerRange{Start: r.post, End: buffer.Extent(r.post, r.newText)}
	}
	return m
}

// offsetOf converts p to a byte offset in text. ok is false when p is not
// inside text.
func offsetOf(text string, p buffer.Point) (int, bool) {
	line := uint32(0)
	start := 0
	for line < p.Line {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			return 0, false
		}
		start += i + 1
		line++
	}
	end := len(text)
	if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
		end = start + i
	}
	if start+int(p.Column) > end {
		return 0, false
	}
	return start + int(p.Column), true
}
