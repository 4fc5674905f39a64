package selectionsync

import (
	"errors"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/sanity-io/litter"

	"github.com/dshills/tandem/internal/collab/memdoc"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/renderer/style"
)

func pt(line, col uint32) buffer.Point {
	return buffer.Point{Line: line, Column: col}
}

func rng(sl, sc, el, ec uint32) buffer.Range {
	return buffer.Range{Start: pt(sl, sc), End: pt(el, ec)}
}

func mr(r buffer.Range) shared.MarkerRange {
	return shared.MarkerRange{Start: r.Start, End: r.End}
}

type remoteUpdate struct {
	site    shared.SiteID
	markers shared.MarkerSet
}

type fakeCursors struct {
	published []shared.MarkerSet
	current   map[shared.SiteID]shared.MarkerSet
	err       error
	remote    event.Emitter[remoteUpdate]
}

func (f *fakeCursors) PublishSelections(m shared.MarkerSet) error {
	f.published = append(f.published, m.Clone())
	return f.err
}

func (f *fakeCursors) OnRemoteSelections(fn func(shared.SiteID, shared.MarkerSet)) event.Subscription {
	return f.remote.Subscribe(func(u remoteUpdate) { fn(u.site, u.markers) })
}

func (f *fakeCursors) RemoteSelections() map[shared.SiteID]shared.MarkerSet {
	out := make(map[shared.SiteID]shared.MarkerSet, len(f.current))
	for site, m := range f.current {
		out[site] = m.Clone()
	}
	return out
}

func (f *fakeCursors) send(site shared.SiteID, m shared.MarkerSet) {
	f.remote.Emit(remoteUpdate{site: site, markers: m})
}

func newEditor(text string) *editor.Editor {
	return editor.New("a.txt", buffer.NewBufferFromString(text), editor.Config{Width: 20, Height: 5})
}

func bound(t *testing.T, text string, opts Options) (*editor.Editor, *SelectionSync, *fakeCursors) {
	t.Helper()
	ed := newEditor(text)
	s := New(ed, opts)
	f := &fakeCursors{}
	if err := s.Bind(f); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return ed, s, f
}

func TestBindPublishesCurrentSelections(t *testing.T) {
	ed := newEditor("hello world")
	ed.SetSelectedRange(rng(0, 0, 0, 5), false)

	s := New(ed, Options{})
	f := &fakeCursors{}
	if err := s.Bind(f); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(f.published) != 1 {
		t.Fatalf("published %d sets, want 1", len(f.published))
	}
	if got := f.published[0][1]; got != mr(rng(0, 0, 0, 5)) {
		t.Errorf("published = %s", litter.Sdump(f.published[0]))
	}
	if err := s.Bind(f); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Bind err = %v", err)
	}
}

func TestBindDecoratesExistingSelections(t *testing.T) {
	ed := newEditor("one\ntwo\nthree")
	s := New(ed, Options{})
	f := &fakeCursors{current: map[shared.SiteID]shared.MarkerSet{
		3: {1: mr(rng(2, 0, 2, 5))},
		2: {1: mr(buffer.PointRange(pt(1, 2))), 4: mr(rng(0, 0, 0, 3))},
	}}
	if err := s.Bind(f); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if got := s.Sites(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("Sites() = %v", got)
	}
	m, ok := s.Marker(2, 1)
	if !ok || m.Range() != buffer.PointRange(pt(1, 2)) {
		t.Fatal("site 2 cursor missing or misplaced")
	}
	if decs := ed.Decorations(); len(decs) != 3 {
		t.Errorf("decorations = %s", litter.Sdump(decs))
	}

	// Later updates reuse the markers created at bind time.
	f.send(2, shared.MarkerSet{1: mr(buffer.PointRange(pt(1, 3)))})
	if again, _ := s.Marker(2, 1); again != m || m.Range() != buffer.PointRange(pt(1, 3)) {
		t.Error("bind-time marker not reused")
	}
}

func TestDimmedSitesRestyleCursors(t *testing.T) {
	palette := style.MustDefaultPalette()
	_, s, f := bound(t, "abcdef", Options{Palette: palette})

	f.send(2, shared.MarkerSet{1: mr(buffer.PointRange(pt(0, 1)))})
	s.SetDimmedSites(2, 5)

	cursorBg := func(site shared.SiteID) tcell.Color {
		l, ok := s.Layer(site)
		if !ok {
			t.Fatalf("no layer for site %d", site)
		}
		_, bg, _ := l.Decorations()[0].CursorStyle.Decompose()
		return bg
	}
	want := func(site shared.SiteID, full bool) tcell.Color {
		_, bg, _ := palette.CursorStyle(int(site), full).Decompose()
		return bg
	}

	if got := cursorBg(2); got != want(2, false) {
		t.Errorf("dimmed cursor = %v, want %v", got, want(2, false))
	}

	// A site dimmed before its first markers is styled on arrival.
	f.send(5, shared.MarkerSet{1: mr(buffer.PointRange(pt(0, 3)))})
	if got := cursorBg(5); got != want(5, false) {
		t.Errorf("late site cursor = %v, want %v", got, want(5, false))
	}

	s.SetDimmedSites()
	if got := cursorBg(2); got != want(2, true) {
		t.Errorf("restored cursor = %v, want %v", got, want(2, true))
	}
	if len(s.DimmedSites()) != 0 {
		t.Errorf("DimmedSites() = %v", s.DimmedSites())
	}
}

func TestTextShiftsAreNotPublished(t *testing.T) {
	ed, _, f := bound(t, "abc", Options{})
	ed.SetCursorPosition(pt(0, 2))
	before := len(f.published)

	if _, err := ed.Buffer().Insert(pt(0, 0), "x", buffer.OriginRemote); err != nil {
		t.Fatal(err)
	}
	if _, err := ed.Buffer().Insert(pt(0, 0), "y", buffer.OriginLocal); err != nil {
		t.Fatal(err)
	}
	if len(f.published) != before {
		t.Fatalf("text shifts were published: %s", litter.Sdump(f.published[before:]))
	}

	ed.MoveCursor(pt(0, 0), false)
	if len(f.published) != before+1 {
		t.Fatalf("cursor move not published")
	}
	if got := f.published[before][1]; got != mr(buffer.PointRange(pt(0, 0))) {
		t.Errorf("published = %+v", got)
	}
}

func TestSelectionBatchPublishedOnce(t *testing.T) {
	ed, _, f := bound(t, "one two three", Options{})
	before := len(f.published)

	ed.SetSelectedRanges([]buffer.Range{rng(0, 0, 0, 3), rng(0, 4, 0, 7), rng(0, 8, 0, 13)})

	if len(f.published) != before+1 {
		t.Fatalf("published %d sets, want 1", len(f.published)-before)
	}
	set := f.published[before]
	if len(set) != 3 || set[3] != mr(rng(0, 8, 0, 13)) {
		t.Errorf("published = %s", litter.Sdump(set))
	}
}

func TestReversedSelectionsKeepDirection(t *testing.T) {
	ed, _, f := bound(t, "abcdef", Options{})
	ed.SetSelectedRange(rng(0, 1, 0, 4), true)

	got := f.published[len(f.published)-1][1]
	if !got.Reversed || got.Head() != pt(0, 1) {
		t.Errorf("published = %+v", got)
	}
}

func TestRemoteMarkersKeepIdentity(t *testing.T) {
	_, s, f := bound(t, "hello\nworld", Options{})

	f.send(2, shared.MarkerSet{1: mr(rng(0, 0, 0, 2)), 2: mr(rng(1, 0, 1, 5))})
	m1, ok := s.Marker(2, 1)
	if !ok {
		t.Fatal("marker 1 not created")
	}
	m2, ok := s.Marker(2, 2)
	if !ok {
		t.Fatal("marker 2 not created")
	}

	f.send(2, shared.MarkerSet{1: mr(rng(0, 3, 0, 5))})

	again, ok := s.Marker(2, 1)
	if !ok || again != m1 {
		t.Fatal("marker 1 was recreated instead of updated")
	}
	if m1.Range() != rng(0, 3, 0, 5) {
		t.Errorf("marker 1 range = %v", m1.Range())
	}
	if !m2.IsDestroyed() {
		t.Error("marker 2 should be destroyed")
	}
	if _, ok := s.Marker(2, 2); ok {
		t.Error("marker 2 still reachable")
	}
}

func TestEmptyRangeHasNoTail(t *testing.T) {
	ed, _, f := bound(t, "abcdef", Options{})

	f.send(2, shared.MarkerSet{1: mr(rng(0, 1, 0, 3))})
	decs := ed.Decorations()
	if len(decs) != 1 || !decs[0].Tail {
		t.Fatalf("decorations = %s", litter.Sdump(decs))
	}

	f.send(2, shared.MarkerSet{1: mr(buffer.PointRange(pt(0, 2)))})
	decs = ed.Decorations()
	if len(decs) != 1 || decs[0].Tail || decs[0].Head != pt(0, 2) {
		t.Errorf("decorations = %s", litter.Sdump(decs))
	}
}

func TestSitesGetSeparateColoredLayers(t *testing.T) {
	palette := style.MustDefaultPalette()
	ed, s, f := bound(t, "abcdef", Options{Palette: palette})

	f.send(2, shared.MarkerSet{1: mr(rng(0, 0, 0, 1))})
	f.send(3, shared.MarkerSet{1: mr(rng(0, 2, 0, 3))})

	l2, ok2 := s.Layer(2)
	l3, ok3 := s.Layer(3)
	if !ok2 || !ok3 || l2 == l3 {
		t.Fatal("each site needs its own layer")
	}
	if got := s.Sites(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Sites() = %v", got)
	}
	if len(ed.DecorationLayers()) != 2 {
		t.Errorf("editor has %d decoration layers", len(ed.DecorationLayers()))
	}

	_, bg2, _ := l2.Decorations()[0].Style.Decompose()
	_, bg3, _ := l3.Decorations()[0].Style.Decompose()
	_, want2, _ := palette.SelectionStyle(2).Decompose()
	if bg2 != want2 {
		t.Errorf("site 2 background = %v, want %v", bg2, want2)
	}
	if bg2 == bg3 {
		t.Error("sites 2 and 3 share a color")
	}

	// Marker ids are per site.
	m2, _ := s.Marker(2, 1)
	m3, _ := s.Marker(3, 1)
	if m2 == m3 || m2.Range() != rng(0, 0, 0, 1) || m3.Range() != rng(0, 2, 0, 3) {
		t.Error("site markers interfere")
	}
}

func TestEmptySetRemovesSite(t *testing.T) {
	ed, s, f := bound(t, "abc", Options{})
	f.send(2, shared.MarkerSet{1: mr(rng(0, 0, 0, 1))})
	f.send(2, shared.MarkerSet{})

	if len(s.Sites()) != 0 || len(ed.DecorationLayers()) != 0 {
		t.Errorf("sites = %v, layers = %d", s.Sites(), len(ed.DecorationLayers()))
	}
}

func TestHostCursorAutoScroll(t *testing.T) {
	text := strings.Repeat("line\n", 99) + "line"
	ed, s, f := bound(t, text, Options{FollowHostCursor: true})
	moved := 0
	ed.OnDidMoveLocally(func() { moved++ })

	// The highest id wins, not the furthest position.
	f.send(shared.HostSiteID, shared.MarkerSet{
		1: mr(buffer.PointRange(pt(80, 0))),
		2: mr(buffer.PointRange(pt(60, 3))),
	})
	if got := ed.Viewport().TopLine(); got != 58 {
		t.Errorf("TopLine() = %d, want 58", got)
	}
	if !ed.IsPointVisible(pt(60, 3)) {
		t.Error("host cursor not visible")
	}
	if moved != 0 {
		t.Error("auto-scroll counted as local movement")
	}

	f.send(2, shared.MarkerSet{1: mr(buffer.PointRange(pt(10, 0)))})
	if got := ed.Viewport().TopLine(); got != 58 {
		t.Errorf("guest update scrolled to %d", got)
	}

	s.SetFollowState(false)
	if s.IsFollowing() {
		t.Error("IsFollowing() = true")
	}
	f.send(shared.HostSiteID, shared.MarkerSet{1: mr(buffer.PointRange(pt(5, 0)))})
	if got := ed.Viewport().TopLine(); got != 58 {
		t.Errorf("scrolled to %d while not following", got)
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	ed, s, f := bound(t, "abc", Options{})
	f.err = shared.ErrDocumentGone

	ed.MoveCursor(pt(0, 3), false)
	if s.IsDisposed() {
		t.Error("publish failure should not dispose")
	}
	if len(f.published) != 2 {
		t.Errorf("published %d sets", len(f.published))
	}
}

func TestDispose(t *testing.T) {
	ed, s, f := bound(t, "abc", Options{})
	f.send(2, shared.MarkerSet{1: mr(rng(0, 0, 0, 1))})
	calls := 0
	s.OnDidDispose(func() { calls++ })

	s.Dispose()
	s.Dispose()

	if calls != 1 {
		t.Errorf("OnDidDispose called %d times", calls)
	}
	if last := f.published[len(f.published)-1]; len(last) != 0 {
		t.Errorf("selections not withdrawn: %s", litter.Sdump(last))
	}
	if len(ed.DecorationLayers()) != 0 {
		t.Error("decorations survive dispose")
	}
	if err := s.Bind(f); !errors.Is(err, ErrDisposed) {
		t.Errorf("Bind after dispose err = %v", err)
	}

	f.send(3, shared.MarkerSet{1: mr(rng(0, 0, 0, 1))})
	ed.MoveCursor(pt(0, 1), false)
	if len(s.Sites()) != 0 || len(ed.DecorationLayers()) != 0 {
		t.Error("disposed binding still applies remote selections")
	}
}

func TestEditorDestroyDisposes(t *testing.T) {
	ed, s, _ := bound(t, "abc", Options{})
	ed.Destroy()
	if !s.IsDisposed() {
		t.Error("binding should dispose with its editor")
	}
}

func TestSelectionsFlowBetweenSites(t *testing.T) {
	room := memdoc.NewRoom(nil, nil)
	hostPeer := room.Join("host")
	guestPeer := room.Join("guest")
	if _, err := room.CreateDocument("a.txt", "hello world"); err != nil {
		t.Fatal(err)
	}

	open := func(p *memdoc.Peer) (*editor.Editor, *SelectionSync, *memdoc.Replica) {
		rep, err := p.Open("a.txt")
		if err != nil {
			t.Fatal(err)
		}
		ed := newEditor("hello world")
		s := New(ed, Options{Portal: p})
		if err := s.Bind(rep); err != nil {
			t.Fatal(err)
		}
		return ed, s, rep
	}
	hostEd, hostSync, _ := open(hostPeer)
	_, guestSync, guestRep := open(guestPeer)

	hostEd.SetSelectedRange(rng(0, 6, 0, 11), false)

	m, ok := guestSync.Marker(shared.HostSiteID, 1)
	if !ok || m.Range() != rng(0, 6, 0, 11) {
		t.Fatalf("guest sees host marker %v, %v", m, ok)
	}
	if l, _ := guestSync.Layer(shared.HostSiteID); l.Name() != "site-1:@host" {
		t.Errorf("layer name = %q", l.Name())
	}
	if got := hostSync.Sites(); len(got) != 1 || got[0] != 2 {
		t.Errorf("host sees sites %v", got)
	}

	guestRep.Dispose()
	if got := hostSync.Sites(); len(got) != 0 {
		t.Errorf("departed guest still decorated: %v", got)
	}
}
