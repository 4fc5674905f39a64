package buffer

import "time"

// HistoryEntry is one undoable transaction: the changes it applied, in
// application order.
type HistoryEntry struct {
	Changes   []Change
	Timestamp time.Time
}

// HistorySnapshot is a serializable copy of a history's undo and redo stacks.
// Both stacks are ordered oldest first.
type HistorySnapshot struct {
	Undo []HistoryEntry
	Redo []HistoryEntry
}

// IsEmpty reports whether the snapshot holds no entries.
func (s HistorySnapshot) IsEmpty() bool {
	return len(s.Undo) == 0 && len(s.Redo) == 0
}

// Selection is a selection range and its direction. A reversed selection
// has its head at the start of the range.
type Selection struct {
	Range    Range
	Reversed bool
}

// Head returns the cursor end of the selection.
func (s Selection) Head() Point {
	if s.Reversed {
		return s.Range.Start
	}
	return s.Range.End
}

// HistoryProvider owns undo and redo for a buffer.
type HistoryProvider interface {
	// Record is called with every OriginLocal change after it is applied.
	Record(c Change)

	// Undo reverts the next step and returns the selections to restore.
	// ok is false when there is nothing to undo.
	Undo() (selections []Selection, ok bool)

	// Redo reapplies the next undone step.
	Redo() (selections []Selection, ok bool)

	// Snapshot returns at most maxEntries entries from each stack.
	Snapshot(maxEntries int) HistorySnapshot
}

// Grouper is implemented by history providers that can fold several
// recorded changes into one undo step.
type Grouper interface {
	BeginGroup()
	EndGroup()
}

// HistoryFactory builds a buffer's default history, seeded with an
// existing snapshot.
type HistoryFactory func(b *Buffer, seed HistorySnapshot) HistoryProvider

// nopHistory is used when no default history is configured.
type nopHistory struct{}

func (nopHistory) Record(Change) {}

func (nopHistory) Undo() ([]Selection, bool) { return nil, false }

func (nopHistory) Redo() ([]Selection, bool) { return nil, false }

func (nopHistory) Snapshot(int) HistorySnapshot { return HistorySnapshot{} }
