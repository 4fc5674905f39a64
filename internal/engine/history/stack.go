package history

import (
	"sync"
	"time"

	"github.com/dshills/tandem/internal/engine/buffer"
)

// DefaultMaxEntries is used when a non-positive limit is given.
const DefaultMaxEntries = 1000

// undoEntry is one undo step.
type undoEntry struct {
	changes   []buffer.Change
	timestamp time.Time
}

// History manages undo/redo state for a buffer.
type History struct {
	mu  sync.Mutex
	buf *buffer.Buffer

	undoStack []*undoEntry
	redoStack []*undoEntry

	// Grouping state
	groupDepth   int
	groupChanges []buffer.Change

	maxEntries int
}

// New creates a history for buf.
func New(buf *buffer.Buffer, maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &History{
		buf:        buf,
		maxEntries: maxEntries,
	}
}

// Factory returns a buffer.HistoryFactory producing seeded histories.
func Factory(maxEntries int) buffer.HistoryFactory {
	return func(b *buffer.Buffer, seed buffer.HistorySnapshot) buffer.HistoryProvider {
		h := New(b, maxEntries)
		h.Restore(seed)
		return h
	}
}

// Record adds a change to the undo stack, or to the open group.
// Recording clears the redo stack.
func (h *History) Record(c buffer.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groupDepth > 0 {
		h.groupChanges = append(h.groupChanges, c)
		return
	}
	h.pushLocked([]buffer.Change{c})
}

func (h *History) pushLocked(changes []buffer.Change) {
	h.undoStack = append(h.undoStack, &undoEntry{
		changes:   changes,
		timestamp: time.Now(),
	})
	h.redoStack = nil

	if len(h.undoStack) > h.maxEntries {
		excess := len(h.undoStack) - h.maxEntries
		h.undoStack = h.undoStack[excess:]
	}
}

// Undo reverts the most recent step.
// The lock is released while the buffer is edited.
func (h *History) Undo() ([]buffer.Selection, bool) {
	h.mu.Lock()
	if len(h.undoStack) == 0 {
		h.mu.Unlock()
		return nil, false
	}
	entry := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.mu.Unlock()

	var selections []buffer.Selection
	for i := len(entry.changes) - 1; i >= 0; i-- {
		inv := entry.changes[i].Invert()
		r, err := h.buf.SetTextInRange(inv.OldRange, inv.NewText, buffer.OriginHistory)
		if err != nil {
			h.mu.Lock()
			h.undoStack = append(h.undoStack, entry)
			h.mu.Unlock()
			return nil, false
		}
		selections = append(selections, buffer.Selection{Range: r})
	}

	h.mu.Lock()
	h.redoStack = append(h.redoStack, entry)
	h.mu.Unlock()
	return selections, true
}

// Redo reapplies the most recently undone step.
func (h *History) Redo() ([]buffer.Selection, bool) {
	h.mu.Lock()
	if len(h.redoStack) == 0 {
		h.mu.Unlock()
		return nil, false
	}
	entry := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.mu.Unlock()

	var selections []buffer.Selection
	for _, c := range entry.changes {
		r, err := h.buf.SetTextInRange(c.OldRange, c.NewText, buffer.OriginHistory)
		if err != nil {
			h.mu.Lock()
			h.redoStack = append(h.redoStack, entry)
			h.mu.Unlock()
			return nil, false
		}
		selections = append(selections, buffer.Selection{Range: r})
	}

	h.mu.Lock()
	h.undoStack = append(h.undoStack, entry)
	h.mu.Unlock()
	return selections, true
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack) > 0
}

// UndoCount returns the number of undo steps available.
func (h *History) UndoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack)
}

// RedoCount returns the number of redo steps available.
func (h *History) RedoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack)
}

// Snapshot copies at most maxEntries of the newest entries of each stack.
func (h *History) Snapshot(maxEntries int) buffer.HistorySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return buffer.HistorySnapshot{
		Undo: snapshotEntries(h.undoStack, maxEntries),
		Redo: snapshotEntries(h.redoStack, maxEntries),
	}
}

func snapshotEntries(stack []*undoEntry, maxEntries int) []buffer.HistoryEntry {
	if maxEntries > 0 && len(stack) > maxEntries {
		stack = stack[len(stack)-maxEntries:]
	}
	result := make([]buffer.HistoryEntry, len(stack))
	for i, e := range stack {
		changes := make([]buffer.Change, len(e.changes))
		copy(changes, e.changes)
		result[i] = buffer.HistoryEntry{Changes: changes, Timestamp: e.timestamp}
	}
	return result
}

// Restore replaces both stacks with the contents of seed.
func (h *History) Restore(seed buffer.HistorySnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undoStack = restoreEntries(seed.Undo, h.maxEntries)
	h.redoStack = restoreEntries(seed.Redo, h.maxEntries)
}

func restoreEntries(entries []buffer.HistoryEntry, maxEntries int) []*undoEntry {
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	var result []*undoEntry
	for _, e := range entries {
		if len(e.Changes) == 0 {
			continue
		}
		changes := make([]buffer.Change, len(e.Changes))
		copy(changes, e.Changes)
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		result = append(result, &undoEntry{changes: changes, timestamp: ts})
	}
	return result
}
