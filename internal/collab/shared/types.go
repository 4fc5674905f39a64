package shared

import (
	"fmt"
	"sort"
	"time"

	"github.com/dshills/tandem/internal/engine/buffer"
)

// SiteID identifies a participant in a session.
type SiteID int

// HostSiteID is the site that owns the shared documents.
const HostSiteID SiteID = 1

// String returns the string representation of the site.
func (s SiteID) String() string {
	return fmt.Sprintf("site-%d", int(s))
}

// DocumentID names a shared document. The empty id means no document.
type DocumentID string

// Change is a single text replacement in document coordinates. In a batch,
// changes are ordered by position and expressed against the text before the
// batch, so they must be applied from the last one to the first.
type Change struct {
	OldStart buffer.Point
	OldEnd   buffer.Point
	OldText  string
	NewText  string
}

// String returns a human-readable representation of the change.
func (c Change) String() string {
	return fmt.Sprintf("[%s-%s) %q -> %q", c.OldStart, c.OldEnd, c.OldText, c.NewText)
}

// NewEnd returns the end of the inserted text.
func (c Change) NewEnd() buffer.Point {
	return buffer.Extent(c.OldStart, c.NewText)
}

// Checkpoint is an opaque position in a document's edit history.
type Checkpoint string

// IsZero reports whether the checkpoint is unset.
func (c Checkpoint) IsZero() bool {
	return c == ""
}

// MarkerRange is a selection in document coordinates. Reversed markers have
// their head at Start.
type MarkerRange struct {
	Start    buffer.Point
	End      buffer.Point
	Reversed bool
}

// IsEmpty reports whether the range is a bare cursor.
func (r MarkerRange) IsEmpty() bool {
	return r.Start == r.End
}

// Head returns the cursor end of the range.
func (r MarkerRange) Head() buffer.Point {
	if r.Reversed {
		return r.Start
	}
	return r.End
}

// MarkerSet is a site's complete set of selection markers keyed by marker id.
type MarkerSet map[int]MarkerRange

// IDs returns the marker ids in ascending order.
func (s MarkerSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns a copy of the set.
func (s MarkerSet) Clone() MarkerSet {
	if s == nil {
		return nil
	}
	out := make(MarkerSet, len(s))
	for id, r := range s {
		out[id] = r
	}
	return out
}

// Last returns the marker with the highest id.
func (s MarkerSet) Last() (int, MarkerRange, bool) {
	ids := s.IDs()
	if len(ids) == 0 {
		return 0, MarkerRange{}, false
	}
	id := ids[len(ids)-1]
	return id, s[id], true
}

// HistoryResult is returned by undo, redo and checkpoint reverts: the
// changes the caller must apply locally and the selections to restore.
type HistoryResult struct {
	Changes []Change
	Markers MarkerSet
}

// HistoryEntry is one transaction of a site, with changes in the order they
// were applied.
type HistoryEntry struct {
	Site      SiteID
	Changes   []Change
	Timestamp time.Time
}

// HistorySnapshot holds a site's undo and redo stacks, oldest entry first.
type HistorySnapshot struct {
	Undo []HistoryEntry
	Redo []HistoryEntry
}

// GroupOptions controls GroupChangesSinceCheckpoint.
type GroupOptions struct {
	// Markers replaces the selections stored with the grouped transaction.
	Markers MarkerSet
	// DeleteCheckpoint forgets the checkpoint after grouping.
	DeleteCheckpoint bool
}

// Position is where a site is looking: a document and a cursor location.
type Position struct {
	Document DocumentID
	Point    buffer.Point
}

// IsZero reports whether the site is not viewing any shared document.
func (p Position) IsZero() bool {
	return p.Document == ""
}

// Identity describes a site for display.
type Identity struct {
	Site        SiteID
	DisplayName string
}
