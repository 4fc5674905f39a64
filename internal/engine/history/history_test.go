package history

import (
	"testing"

	"github.com/dshills/tandem/internal/engine/buffer"
)

func newTestBuffer(text string) (*buffer.Buffer, *History) {
	buf := buffer.NewBufferFromString(text, buffer.WithHistory(Factory(100)))
	return buf, buf.HistoryProvider().(*History)
}

func pt(line, col uint32) buffer.Point {
	return buffer.Point{Line: line, Column: col}
}

func TestUndoRedo(t *testing.T) {
	buf, h := newTestBuffer("")

	buf.Insert(pt(0, 0), "hello", buffer.OriginLocal)
	buf.Insert(pt(0, 5), " world", buffer.OriginLocal)

	if h.UndoCount() != 2 {
		t.Fatalf("UndoCount() = %d, want 2", h.UndoCount())
	}

	if _, ok := buf.Undo(); !ok {
		t.Fatal("Undo() returned false")
	}
	if buf.Text() != "hello" {
		t.Errorf("after undo: %q", buf.Text())
	}

	buf.Undo()
	if buf.Text() != "" {
		t.Errorf("after second undo: %q", buf.Text())
	}
	if _, ok := buf.Undo(); ok {
		t.Error("Undo() on empty history should return false")
	}

	sels, ok := buf.Redo()
	if !ok || buf.Text() != "hello" {
		t.Errorf("after redo: %q ok=%v", buf.Text(), ok)
	}
	if len(sels) != 1 || sels[0].Range.End != pt(0, 5) {
		t.Errorf("redo selections = %v", sels)
	}
}

func TestRecordClearsRedo(t *testing.T) {
	buf, h := newTestBuffer("abc")

	buf.Insert(pt(0, 3), "d", buffer.OriginLocal)
	buf.Undo()
	if !h.CanRedo() {
		t.Fatal("expected redo to be available")
	}

	buf.Insert(pt(0, 0), "x", buffer.OriginLocal)
	if h.CanRedo() {
		t.Error("new local edit should clear redo")
	}
}

func TestNonLocalChangesNotRecorded(t *testing.T) {
	buf, h := newTestBuffer("abc")

	buf.Insert(pt(0, 0), "r", buffer.OriginRemote)
	buf.Insert(pt(0, 0), "h", buffer.OriginHistory)

	if h.CanUndo() {
		t.Error("remote and history changes must not be recorded")
	}
}

func TestTransactGroupsChanges(t *testing.T) {
	buf, h := newTestBuffer("one two")

	buf.Transact(func() {
		buf.Insert(pt(0, 7), "!", buffer.OriginLocal)
		buf.Insert(pt(0, 0), "<", buffer.OriginLocal)
		buf.Transact(func() {
			buf.Insert(pt(0, 9), ">", buffer.OriginLocal)
		})
	})

	if h.UndoCount() != 1 {
		t.Fatalf("UndoCount() = %d, want 1", h.UndoCount())
	}
	if h.IsGrouping() {
		t.Error("group left open")
	}

	buf.Undo()
	if buf.Text() != "one two" {
		t.Errorf("after grouped undo: %q", buf.Text())
	}
}

func TestSnapshotRestore(t *testing.T) {
	buf, h := newTestBuffer("")
	buf.Insert(pt(0, 0), "a", buffer.OriginLocal)
	buf.Insert(pt(0, 1), "b", buffer.OriginLocal)
	buf.Insert(pt(0, 2), "c", buffer.OriginLocal)
	buf.Undo()

	snap := h.Snapshot(1)
	if len(snap.Undo) != 1 || len(snap.Redo) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Undo[0].Changes[0].NewText != "b" {
		t.Errorf("snapshot should keep newest undo entry, got %+v", snap.Undo[0])
	}

	buf.RestoreDefaultHistory(snap)
	restored := buf.HistoryProvider().(*History)
	if restored == h {
		t.Fatal("RestoreDefaultHistory should build a new history")
	}

	buf.Undo()
	if buf.Text() != "a" {
		t.Errorf("undo from restored history: %q", buf.Text())
	}
	buf.Redo()
	buf.Redo()
	if buf.Text() != "abc" {
		t.Errorf("redo from restored history: %q", buf.Text())
	}
}

func TestMaxEntries(t *testing.T) {
	buf := buffer.NewBuffer()
	h := New(buf, 2)
	buf.SetHistoryProvider(h)

	for _, s := range []string{"a", "b", "c"} {
		buf.Insert(buf.EndPoint(), s, buffer.OriginLocal)
	}
	if h.UndoCount() != 2 {
		t.Errorf("UndoCount() = %d, want 2", h.UndoCount())
	}
}
