package memdoc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sanity-io/litter"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
)

func pt(line, col uint32) buffer.Point {
	return buffer.Point{Line: line, Column: col}
}

func insert(at buffer.Point, text string) shared.Change {
	return shared.Change{OldStart: at, OldEnd: at, NewText: text}
}

// applyBatch applies a batch the way a receiving site must: last change first.
func applyBatch(t *testing.T, text string, batch []shared.Change) string {
	t.Helper()
	for i := len(batch) - 1; i >= 0; i-- {
		c := batch[i]
		start, ok1 := offsetOf(text, c.OldStart)
		end, ok2 := offsetOf(text, c.OldEnd)
		if !ok1 || !ok2 {
			t.Fatalf("change out of range: %s on %q", c, text)
		}
		if text[start:end] != c.OldText {
			t.Fatalf("old text mismatch for %s on %q", c, text)
		}
		text = text[:start] + c.NewText + text[end:]
	}
	return text
}

type site struct {
	*Replica
	mirror  string
	batches int
}

// join attaches a site whose mirror text follows remote batches.
func join(t *testing.T, d *Doc, id shared.SiteID) *site {
	t.Helper()
	r, err := d.Join(id)
	if err != nil {
		t.Fatalf("Join(%d): %v", id, err)
	}
	s := &site{Replica: r, mirror: d.Text()}
	r.OnRemoteChanges(func(batch []shared.Change) {
		s.mirror = applyBatch(t, s.mirror, batch)
		s.batches++
	})
	return s
}

// edit mirrors c locally and forwards it.
func (s *site) edit(t *testing.T, c shared.Change) {
	t.Helper()
	s.mirror = applyBatch(t, s.mirror, []shared.Change{{
		OldStart: c.OldStart,
		OldEnd:   c.OldEnd,
		OldText:  textAt(t, s.mirror, c),
		NewText:  c.NewText,
	}})
	if err := s.ForwardChange(c); err != nil {
		t.Fatalf("ForwardChange(%s): %v", c, err)
	}
}

func (s *site) undo(t *testing.T) shared.HistoryResult {
	t.Helper()
	res, ok := s.Undo()
	if !ok {
		t.Fatal("Undo() reported nothing to undo")
	}
	s.mirror = applyBatch(t, s.mirror, res.Changes)
	return res
}

func textAt(t *testing.T, text string, c shared.Change) string {
	t.Helper()
	start, _ := offsetOf(text, c.OldStart)
	end, _ := offsetOf(text, c.OldEnd)
	return text[start:end]
}

func assertConverged(t *testing.T, d *Doc, sites ...*site) {
	t.Helper()
	want := d.Text()
	for _, s := range sites {
		if s.mirror != want {
			t.Errorf("site %d mirror = %q, document = %q", s.SiteID(), s.mirror, want)
		}
	}
}

func TestSelectiveUndo(t *testing.T) {
	d := NewDoc("doc", "")
	a := join(t, d, 1)
	b := join(t, d, 2)

	a.edit(t, insert(pt(0, 0), "h1 "))
	b.edit(t, insert(pt(0, 3), "g1 "))
	if got := d.Text(); got != "h1 g1 " {
		t.Fatalf("Text() = %q", got)
	}

	a.undo(t)
	if got := d.Text(); got != "g1 " {
		t.Errorf("after undo Text() = %q, want %q", got, "g1 ")
	}
	assertConverged(t, d, a, b)

	if _, ok := a.Undo(); ok {
		t.Error("site 1 has no more transactions to undo")
	}

	res, ok := a.Redo()
	if !ok {
		t.Fatal("Redo() reported nothing to redo")
	}
	a.mirror = applyBatch(t, a.mirror, res.Changes)
	if got := d.Text(); got != "h1 g1 " {
		t.Errorf("after redo Text() = %q", got)
	}
	assertConverged(t, d, a, b)
}

func TestUndoKeepsConcurrentEditsInsideTransaction(t *testing.T) {
	d := NewDoc("doc", "")
	a := join(t, d, 1)
	b := join(t, d, 2)

	a.edit(t, insert(pt(0, 0), "abcdef"))
	b.edit(t, insert(pt(0, 3), "XY"))
	if d.Text() != "abcXYdef" {
		t.Fatalf("Text() = %q", d.Text())
	}

	res := a.undo(t)
	if d.Text() != "XY" {
		t.Errorf("Text() = %q, want %q", d.Text(), "XY")
	}
	if len(res.Changes) != 2 {
		t.Errorf("undo batch has %d changes, want 2:\n%s", len(res.Changes), litter.Sdump(res.Changes))
	}
	assertConverged(t, d, a, b)
}

func TestUndoRestoresDeletedText(t *testing.T) {
	d := NewDoc("doc", "hello\nworld")
	a := join(t, d, 1)
	b := join(t, d, 2)

	a.edit(t, shared.Change{OldStart: pt(0, 0), OldEnd: pt(1, 0)})
	b.edit(t, insert(pt(0, 5), "!"))
	if d.Text() != "world!" {
		t.Fatalf("Text() = %q", d.Text())
	}

	a.undo(t)
	if d.Text() != "hello\nworld!" {
		t.Errorf("Text() = %q", d.Text())
	}
	assertConverged(t, d, a, b)
}

func TestForwardChangeValidation(t *testing.T) {
	d := NewDoc("doc", "abc")
	a := join(t, d, 1)

	bad := []shared.Change{
		insert(pt(0, 4), "x"),
		insert(pt(1, 0), "x"),
		{OldStart: pt(0, 2), OldEnd: pt(0, 1)},
	}
	for _, c := range bad {
		if err := a.ForwardChange(c); !errors.Is(err, shared.ErrInvalidChange) {
			t.Errorf("ForwardChange(%s) err = %v", c, err)
		}
	}
	if err := a.ForwardChange(insert(pt(0, 1), "")); err != nil {
		t.Errorf("empty change err = %v", err)
	}
	if _, ok := a.Undo(); ok {
		t.Error("no-op change should not create history")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	d := NewDoc("doc", "hello")
	a := join(t, d, 1)
	b := join(t, d, 2)

	cp := a.CreateCheckpoint(nil)
	res, ok := a.RevertToCheckpoint(cp)
	if !ok {
		t.Fatal("RevertToCheckpoint() = false for a fresh checkpoint")
	}
	if len(res.Changes) != 0 || d.Text() != "hello" {
		t.Errorf("immediate revert changed text: %q %v", d.Text(), res.Changes)
	}

	a.edit(t, insert(pt(0, 5), " world"))
	b.edit(t, insert(pt(0, 0), ">"))
	a.edit(t, shared.Change{OldStart: pt(0, 1), OldEnd: pt(0, 2), NewText: "J"})

	res, ok = a.RevertToCheckpoint(cp)
	if !ok {
		t.Fatal("RevertToCheckpoint() = false")
	}
	a.mirror = applyBatch(t, a.mirror, res.Changes)
	if d.Text() != ">hello" {
		t.Errorf("Text() = %q, want %q", d.Text(), ">hello")
	}
	assertConverged(t, d, a, b)

	if _, ok := a.Undo(); ok {
		t.Error("reverted transactions should leave history")
	}
	if _, ok := a.RevertToCheckpoint("missing"); ok {
		t.Error("unknown checkpoint should not revert")
	}
	if _, ok := b.RevertToCheckpoint(cp); ok {
		t.Error("checkpoint of another site should not revert")
	}
}

func TestGroupChangesSinceCheckpoint(t *testing.T) {
	d := NewDoc("doc", "hello\nworld")
	a := join(t, d, 1)
	b := join(t, d, 2)

	cp := a.CreateCheckpoint(nil)
	a.edit(t, shared.Change{OldStart: pt(0, 0), OldEnd: pt(0, 5), NewText: "goodbye"})
	a.edit(t, insert(pt(1, 0), "cruel\n"))

	changes, ok := a.GetChangesSinceCheckpoint(cp)
	if !ok || len(changes) != 2 {
		t.Fatalf("GetChangesSinceCheckpoint = %v, %v", changes, ok)
	}

	if _, ok := a.GroupChangesSinceCheckpoint(cp, shared.GroupOptions{DeleteCheckpoint: true}); !ok {
		t.Fatal("GroupChangesSinceCheckpoint() = false")
	}
	if _, ok := a.GetChangesSinceCheckpoint(cp); ok {
		t.Error("checkpoint should be deleted")
	}

	res := a.undo(t)
	if d.Text() != "hello\nworld" {
		t.Errorf("grouped undo Text() = %q", d.Text())
	}
	if len(res.Changes) != 2 {
		t.Errorf("undo batch:\n%s", litter.Sdump(res.Changes))
	}
	assertConverged(t, d, a, b)
}

func TestApplyGroupingInterval(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	d := NewDoc("doc", "", WithClock(fake))
	a := join(t, d, 1)

	a.edit(t, insert(pt(0, 0), "a"))
	fake.Advance(100 * time.Millisecond)
	a.edit(t, insert(pt(0, 1), "b"))
	a.ApplyGroupingInterval(300 * time.Millisecond)

	fake.Advance(time.Second)
	a.edit(t, insert(pt(0, 2), "c"))
	a.ApplyGroupingInterval(300 * time.Millisecond)

	a.undo(t)
	if d.Text() != "ab" {
		t.Errorf("after first undo Text() = %q", d.Text())
	}
	a.undo(t)
	if d.Text() != "" {
		t.Errorf("after second undo Text() = %q", d.Text())
	}
}

// undoSnapshot replays a history snapshot the way a local undo stack would.
func undoSnapshot(t *testing.T, text string, entries []shared.HistoryEntry) string {
	t.Helper()
	for i := len(entries) - 1; i >= 0; i-- {
		changes := entries[i].Changes
		for j := len(changes) - 1; j >= 0; j-- {
			c := changes[j]
			inverse := shared.Change{
				OldStart: c.OldStart,
				OldEnd:   c.NewEnd(),
				OldText:  c.NewText,
				NewText:  c.OldText,
			}
			text = applyBatch(t, text, []shared.Change{inverse})
		}
	}
	return text
}

func TestHistorySnapshot(t *testing.T) {
	d := NewDoc("doc", "")
	a := join(t, d, 1)
	b := join(t, d, 2)

	a.edit(t, insert(pt(0, 0), "ab"))
	b.edit(t, insert(pt(0, 2), "X\n"))
	a.edit(t, insert(pt(0, 0), "cd"))
	a.edit(t, shared.Change{OldStart: pt(1, 0), OldEnd: pt(1, 0), NewText: "tail"})
	a.undo(t)

	snap := a.History(0)
	if len(snap.Undo) != 2 || len(snap.Redo) != 1 {
		t.Fatalf("snapshot:\n%s", litter.Sdump(snap))
	}
	if got := undoSnapshot(t, d.Text(), snap.Undo); got != "X\n" {
		t.Errorf("replayed undo = %q, want %q", got, "X\n")
	}
	if d.Text() != "cdabX\n" {
		t.Errorf("History() changed the document: %q", d.Text())
	}

	limited := a.History(1)
	if len(limited.Undo) != 1 || limited.Undo[0].Changes[0].NewText != "cd" {
		t.Errorf("limited snapshot:\n%s", litter.Sdump(limited))
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	d := NewDoc("doc", "abc")
	a := join(t, d, 1)
	b := join(t, d, 2)

	disposed := 0
	b.OnDispose(func() { disposed++ })

	b.Dispose()
	b.Dispose()
	if disposed != 1 {
		t.Errorf("OnDispose ran %d times", disposed)
	}
	if err := b.ForwardChange(insert(pt(0, 0), "x")); !errors.Is(err, shared.ErrDocumentGone) {
		t.Errorf("ForwardChange after dispose err = %v", err)
	}

	a.edit(t, insert(pt(0, 0), "x"))
	if b.batches != 0 {
		t.Error("disposed replica received changes")
	}
}

func TestCloseDisposesReplicas(t *testing.T) {
	d := NewDoc("doc", "abc")
	a := join(t, d, 1)

	gone := false
	a.OnDispose(func() { gone = true })
	d.Close()
	d.Close()

	if !gone || !a.IsDisposed() {
		t.Error("Close should dispose replicas")
	}
	if _, err := d.Join(3); !errors.Is(err, shared.ErrDocumentGone) {
		t.Errorf("Join after close err = %v", err)
	}
	a.Dispose()
}

func TestSelections(t *testing.T) {
	d := NewDoc("doc", "abc")
	a := join(t, d, 1)
	b := join(t, d, 2)

	var got []shared.MarkerSet
	b.OnRemoteSelections(func(site shared.SiteID, m shared.MarkerSet) {
		if site != 1 {
			t.Errorf("selection from site %d", site)
		}
		got = append(got, m)
	})

	if err := a.PublishSelections(shared.MarkerSet{1: {Start: pt(0, 1), End: pt(0, 2)}}); err != nil {
		t.Fatal(err)
	}
	a.Dispose()

	if len(got) != 2 || len(got[0]) != 1 || len(got[1]) != 0 {
		t.Errorf("selection updates:\n%s", litter.Sdump(got))
	}
	if _, ok := b.Selections(1); ok {
		t.Error("departed site still has selections")
	}
}

func TestRemoteSelectionsForLateJoiner(t *testing.T) {
	d := NewDoc("doc", "abc")
	a := join(t, d, 1)
	b := join(t, d, 2)

	if err := a.PublishSelections(shared.MarkerSet{1: {Start: pt(0, 1), End: pt(0, 1)}}); err != nil {
		t.Fatal(err)
	}
	if err := b.PublishSelections(shared.MarkerSet{}); err != nil {
		t.Fatal(err)
	}

	c := join(t, d, 3)
	got := c.RemoteSelections()
	if len(got) != 1 || len(got[1]) != 1 || got[1][1].Start != pt(0, 1) {
		t.Errorf("RemoteSelections() = %s", litter.Sdump(got))
	}
	if own := a.RemoteSelections(); len(own) != 0 {
		t.Errorf("site sees its own selections: %s", litter.Sdump(own))
	}
}

func TestRequestSave(t *testing.T) {
	d := NewDoc("doc", "abc")
	guest := join(t, d, 2)

	if err := guest.RequestSave(context.Background()); !errors.Is(err, shared.ErrSaveUnavailable) {
		t.Errorf("RequestSave without handler err = %v", err)
	}

	saved := 0
	d.SetSaveHandler(func(context.Context) error {
		saved++
		return nil
	})
	if err := guest.RequestSave(context.Background()); err != nil || saved != 1 {
		t.Errorf("RequestSave err = %v, saved = %d", err, saved)
	}
}

func TestNotificationsKeepArrivalOrder(t *testing.T) {
	d := NewDoc("doc", "")
	a := join(t, d, 1)
	b := join(t, d, 2)
	c := join(t, d, 3)

	// Site 2 answers every change from site 1 with its own edit.
	b.OnRemoteChanges(func(batch []shared.Change) {
		if batch[0].NewText == "a" {
			b.edit(t, insert(pt(0, 1), "b"))
		}
	})

	a.edit(t, insert(pt(0, 0), "a"))
	if d.Text() != "ab" {
		t.Fatalf("Text() = %q", d.Text())
	}
	assertConverged(t, d, a, b, c)
}
