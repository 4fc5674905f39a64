package memdoc

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/event"
)

// Replica is one site's handle on a Doc. It implements shared.Document,
// shared.CursorSet and shared.Saver.
type Replica struct {
	doc  *Doc
	site shared.SiteID

	// Guarded by doc.mu.
	undo     []*entry
	redo     []*entry
	disposed bool

	remoteChanges    event.Emitter[[]shared.Change]
	remoteSelections event.Emitter[selectionUpdate]
	didDispose       event.Emitter[struct{}]
}

type selectionUpdate struct {
	site    shared.SiteID
	markers shared.MarkerSet
}

var (
	_ shared.Document  = (*Replica)(nil)
	_ shared.CursorSet = (*Replica)(nil)
	_ shared.Saver     = (*Replica)(nil)
)

// SiteID returns the replica's site.
func (r *Replica) SiteID() shared.SiteID {
	return r.site
}

// DocumentID returns the document id.
func (r *Replica) DocumentID() shared.DocumentID {
	return r.doc.id
}

// Text returns the shared text.
func (r *Replica) Text() string {
	return r.doc.Text()
}

// IsDisposed reports whether the replica was disposed.
func (r *Replica) IsDisposed() bool {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()
	return r.disposed
}

// ForwardChange applies a local edit and relays it to the other sites.
func (r *Replica) ForwardChange(c shared.Change) error {
	d := r.doc
	d.mu.Lock()
	if r.disposed {
		d.mu.Unlock()
		return shared.ErrDocumentGone
	}

	text := d.seq.text()
	start, okStart := offsetOf(text, c.OldStart)
	end, okEnd := offsetOf(text, c.OldEnd)
	if !okStart || !okEnd || end < start {
		d.mu.Unlock()
		return shared.NewOperationError("forward change", c.String(), shared.ErrInvalidChange)
	}
	if start == end && c.NewText == "" {
		d.mu.Unlock()
		return nil
	}

	d.nextSeq++
	o := &op{site: r.site, seq: d.nextSeq, active: true}
	d.seq.apply(o, start, end, c.NewText)

	r.undo = append(r.undo, &entry{ops: []*op{o}, seq: o.seq, timestamp: d.clock.Now()})
	r.redo = nil

	d.broadcastLocked(r.site, []shared.Change{{
		OldStart: c.OldStart,
		OldEnd:   c.OldEnd,
		OldText:  text[start:end],
		NewText:  c.NewText,
	}})
	d.mu.Unlock()
	d.queue.drain()
	return nil
}

// OnRemoteChanges registers fn for batches made by other sites.
func (r *Replica) OnRemoteChanges(fn func([]shared.Change)) event.Subscription {
	return r.remoteChanges.Subscribe(fn)
}

// Undo toggles off the site's newest transaction. Edits of other sites made
// since are kept.
func (r *Replica) Undo() (shared.HistoryResult, bool) {
	d := r.doc
	d.mu.Lock()
	if r.disposed || len(r.undo) == 0 {
		d.mu.Unlock()
		return shared.HistoryResult{}, false
	}

	e := r.undo[len(r.undo)-1]
	r.undo = r.undo[:len(r.undo)-1]
	runs := r.toggleLocked([]*entry{e}, false)
	r.redo = append(r.redo, e)

	res := shared.HistoryResult{Changes: batchChanges(runs), Markers: runMarkers(runs)}
	d.broadcastLocked(r.site, res.Changes)
	d.mu.Unlock()
	d.queue.drain()
	return res, true
}

// Redo toggles the site's most recently undone transaction back on.
func (r *Replica) Redo() (shared.HistoryResult, bool) {
	d := r.doc
	d.mu.Lock()
	if r.disposed || len(r.redo) == 0 {
		d.mu.Unlock()
		return shared.HistoryResult{}, false
	}

	e := r.redo[len(r.redo)-1]
	r.redo = r.redo[:len(r.redo)-1]
	runs := r.toggleLocked([]*entry{e}, true)
	r.undo = append(r.undo, e)

	markers := e.markers.Clone()
	if markers == nil {
		markers = runMarkers(runs)
	}
	res := shared.HistoryResult{Changes: batchChanges(runs), Markers: markers}
	d.broadcastLocked(r.site, res.Changes)
	d.mu.Unlock()
	d.queue.drain()
	return res, true
}

// toggleLocked switches entries on or off and returns the resulting text
// differences.
func (r *Replica) toggleLocked(entries []*entry, active bool) []run {
	s := r.doc.seq
	from := s.visibility()
	setActive(entries, active)
	return s.diff(from, s.visibility())
}

// CreateCheckpoint records the current end of the site's history.
func (r *Replica) CreateCheckpoint(markers shared.MarkerSet) shared.Checkpoint {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.disposed {
		return ""
	}

	token := shared.Checkpoint(uuid.NewString())
	d.checkpoints[token] = &checkpoint{site: r.site, seq: d.nextSeq, markers: markers.Clone()}
	return token
}

func (r *Replica) checkpointLocked(token shared.Checkpoint) (*checkpoint, bool) {
	if r.disposed {
		return nil, false
	}
	cp, ok := r.doc.checkpoints[token]
	if !ok || cp.site != r.site {
		return nil, false
	}
	return cp, true
}

// sinceLocked returns the index of the first undo entry made after seq.
func (r *Replica) sinceLocked(seq uint64) int {
	return sort.Search(len(r.undo), func(i int) bool { return r.undo[i].seq > seq })
}

// changesSinceLocked returns the changes that turn the text without
// entries into the current text.
func (r *Replica) changesSinceLocked(entries []*entry) []shared.Change {
	if len(entries) == 0 {
		return nil
	}
	s := r.doc.seq
	to := s.visibility()
	setActive(entries, false)
	from := s.visibility()
	setActive(entries, true)
	return sequentialChanges(s.diff(from, to))
}

// GetChangesSinceCheckpoint returns the site's changes since token.
func (r *Replica) GetChangesSinceCheckpoint(token shared.Checkpoint) ([]shared.Change, bool) {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	cp, ok := r.checkpointLocked(token)
	if !ok {
		return nil, false
	}
	return r.changesSinceLocked(r.undo[r.sinceLocked(cp.seq):]), true
}

// GroupChangesSinceCheckpoint merges the site's transactions since token
// into one undo step.
func (r *Replica) GroupChangesSinceCheckpoint(token shared.Checkpoint, opts shared.GroupOptions) ([]shared.Change, bool) {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	cp, ok := r.checkpointLocked(token)
	if !ok {
		return nil, false
	}
	if opts.DeleteCheckpoint {
		delete(d.checkpoints, token)
	}

	i := r.sinceLocked(cp.seq)
	entries := r.undo[i:]
	changes := r.changesSinceLocked(entries)
	if len(entries) == 0 {
		return changes, true
	}

	merged := entries[0]
	for _, e := range entries[1:] {
		merged.ops = append(merged.ops, e.ops...)
		merged.timestamp = e.timestamp
	}
	if opts.Markers != nil {
		merged.markers = opts.Markers.Clone()
	}
	r.undo = append(r.undo[:i], merged)
	return changes, true
}

// RevertToCheckpoint undoes the site's transactions since token and drops
// them from history.
func (r *Replica) RevertToCheckpoint(token shared.Checkpoint) (shared.HistoryResult, bool) {
	d := r.doc
	d.mu.Lock()

	cp, ok := r.checkpointLocked(token)
	if !ok {
		d.mu.Unlock()
		return shared.HistoryResult{}, false
	}

	i := r.sinceLocked(cp.seq)
	runs := r.toggleLocked(r.undo[i:], false)
	r.undo = r.undo[:i]

	markers := cp.markers.Clone()
	if markers == nil {
		markers = runMarkers(runs)
	}
	res := shared.HistoryResult{Changes: batchChanges(runs), Markers: markers}
	d.broadcastLocked(r.site, res.Changes)
	d.mu.Unlock()
	d.queue.drain()
	return res, true
}

// ApplyGroupingInterval merges the two newest transactions when they were
// made within interval of each other.
func (r *Replica) ApplyGroupingInterval(interval time.Duration) {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(r.undo)
	if r.disposed || interval <= 0 || n < 2 {
		return
	}
	prev, last := r.undo[n-2], r.undo[n-1]
	if last.timestamp.Sub(prev.timestamp) > interval {
		return
	}
	prev.ops = append(prev.ops, last.ops...)
	prev.timestamp = last.timestamp
	r.undo = r.undo[:n-1]
}

// History returns the site's newest undo and redo entries. Each entry's
// changes are expressed against the text it will be undone or redone on,
// assuming the entries above it on the same stack are processed first.
// History stays readable after the replica is disposed.
func (r *Replica) History(maxEntries int) shared.HistorySnapshot {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	var snap shared.HistorySnapshot
	s := d.seq

	var toggled []*entry
	for i := len(r.undo) - 1; i >= 0 && !limitReached(len(snap.Undo), maxEntries); i-- {
		e := r.undo[i]
		to := s.visibility()
		setActive([]*entry{e}, false)
		toggled = append(toggled, e)
		snap.Undo = append(snap.Undo, shared.HistoryEntry{
			Site:      r.site,
			Changes:   sequentialChanges(s.diff(s.visibility(), to)),
			Timestamp: e.timestamp,
		})
	}
	setActive(toggled, true)

	toggled = toggled[:0]
	for i := len(r.redo) - 1; i >= 0 && !limitReached(len(snap.Redo), maxEntries); i-- {
		e := r.redo[i]
		from := s.visibility()
		setActive([]*entry{e}, true)
		toggled = append(toggled, e)
		snap.Redo = append(snap.Redo, shared.HistoryEntry{
			Site:      r.site,
			Changes:   sequentialChanges(s.diff(from, s.visibility())),
			Timestamp: e.timestamp,
		})
	}
	setActive(toggled, false)

	reverse(snap.Undo)
	reverse(snap.Redo)
	return snap
}

func limitReached(n, maxEntries int) bool {
	return maxEntries > 0 && n >= maxEntries
}

func reverse(entries []shared.HistoryEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// Dispose detaches the site. Idempotent.
func (r *Replica) Dispose() {
	d := r.doc
	d.mu.Lock()
	d.disposeLocked(r)
	d.mu.Unlock()
	d.queue.drain()
}

// OnDispose registers fn to run when the replica is disposed.
func (r *Replica) OnDispose(fn func()) event.Subscription {
	return r.didDispose.Subscribe(func(struct{}) { fn() })
}

// PublishSelections replaces the site's selection markers.
func (r *Replica) PublishSelections(markers shared.MarkerSet) error {
	d := r.doc
	d.mu.Lock()
	if r.disposed {
		d.mu.Unlock()
		return shared.ErrDocumentGone
	}
	snapshot := markers.Clone()
	if snapshot == nil {
		snapshot = shared.MarkerSet{}
	}
	d.selections[r.site] = snapshot
	d.publishSelectionsLocked(r.site, snapshot)
	d.mu.Unlock()
	d.queue.drain()
	return nil
}

// OnRemoteSelections registers fn for marker sets published by other sites.
func (r *Replica) OnRemoteSelections(fn func(shared.SiteID, shared.MarkerSet)) event.Subscription {
	return r.remoteSelections.Subscribe(func(u selectionUpdate) { fn(u.site, u.markers) })
}

// RemoteSelections returns the non-empty marker sets of the other sites.
func (r *Replica) RemoteSelections() map[shared.SiteID]shared.MarkerSet {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[shared.SiteID]shared.MarkerSet, len(d.selections))
	if r.disposed {
		return out
	}
	for site, m := range d.selections {
		if site == r.site || len(m) == 0 {
			continue
		}
		out[site] = m.Clone()
	}
	return out
}

// Selections returns the last marker set published by site.
func (r *Replica) Selections(site shared.SiteID) (shared.MarkerSet, bool) {
	d := r.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.selections[site]
	return m.Clone(), ok
}

// RequestSave asks the document owner to save.
func (r *Replica) RequestSave(ctx context.Context) error {
	d := r.doc
	d.mu.Lock()
	disposed := r.disposed
	handler := d.saveHandler
	d.mu.Unlock()

	if disposed {
		return shared.ErrDocumentGone
	}
	if handler == nil {
		return shared.NewOperationError("save", string(d.id), shared.ErrSaveUnavailable)
	}
	return handler(ctx)
}
