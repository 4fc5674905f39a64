package buffer

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dshills/tandem/internal/event"
)

// Errors returned by buffer operations.
var (
	ErrRangeInvalid = errors.New("invalid range")
	ErrDestroyed    = errors.New("buffer destroyed")
)

// Buffer is a line-addressable text buffer with marker layers and a
// pluggable history.
type Buffer struct {
	mu sync.RWMutex

	text       string
	lineStarts []int
	revision   uint64

	layers      []*MarkerLayer
	nextLayerID int
	batchDepth  int
	pending     []func()

	history           HistoryProvider
	newDefaultHistory HistoryFactory
	file              FileAdapter
	destroyed         bool

	didChange  event.Emitter[Change]
	didDestroy event.Emitter[struct{}]
}

// NewBuffer creates a new empty buffer.
func NewBuffer(opts ...Option) *Buffer {
	return NewBufferFromString("", opts...)
}

// NewBufferFromString creates a buffer with initial content.
func NewBufferFromString(s string, opts ...Option) *Buffer {
	b := &Buffer{text: s}
	b.reindexLocked()

	for _, opt := range opts {
		opt(b)
	}

	if b.file == nil {
		b.file = NewLocalFile("", s)
	}
	b.history = b.buildDefaultHistory(HistorySnapshot{})
	return b
}

// Option is a functional option for configuring a Buffer.
type Option func(*Buffer)

// WithHistory sets the factory used to build the buffer's default history.
func WithHistory(factory HistoryFactory) Option {
	return func(b *Buffer) {
		b.newDefaultHistory = factory
	}
}

// WithFile sets the buffer's file adapter.
func WithFile(f FileAdapter) Option {
	return func(b *Buffer) {
		b.file = f
	}
}

func (b *Buffer) buildDefaultHistory(seed HistorySnapshot) HistoryProvider {
	if b.newDefaultHistory == nil {
		return nopHistory{}
	}
	return b.newDefaultHistory(b, seed)
}

// Read Operations

// Text returns the full buffer content.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Len returns the total byte length of the buffer.
func (b *Buffer) Len() ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ByteOffset(len(b.text))
}

// IsEmpty returns true if the buffer is empty.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// LineCount returns the number of lines. An empty buffer has one line.
func (b *Buffer) LineCount() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint32(len(b.lineStarts))
}

// LineText returns the text of a line without its newline.
func (b *Buffer) LineText(line uint32) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(line) >= len(b.lineStarts) {
		return ""
	}
	start := b.lineStarts[line]
	return b.text[start : start+b.lineLenLocked(line)]
}

// TextInRange returns the text covered by r, clipped to the buffer.
func (b *Buffer) TextInRange(r Range) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start := b.offsetLocked(b.clipLocked(r.Start))
	end := b.offsetLocked(b.clipLocked(r.End))
	if end < start {
		start, end = end, start
	}
	return b.text[start:end]
}

// Revision returns a counter incremented on every text change.
func (b *Buffer) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// EndPoint returns the position after the last character.
func (b *Buffer) EndPoint() Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	last := uint32(len(b.lineStarts) - 1)
	return Point{Line: last, Column: uint32(b.lineLenLocked(last))}
}

// Coordinate Conversion

// OffsetToPoint converts a byte offset to line/column, clamping to the buffer.
func (b *Buffer) OffsetToPoint(offset ByteOffset) Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pointLocked(int(offset))
}

// PointToOffset converts line/column to a byte offset, clamping to the buffer.
func (b *Buffer) PointToOffset(p Point) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ByteOffset(b.offsetLocked(b.clipLocked(p)))
}

// ClipPoint returns the nearest valid position to p.
func (b *Buffer) ClipPoint(p Point) Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clipLocked(p)
}

// ClipRange clips both ends of r and normalizes their order.
func (b *Buffer) ClipRange(r Range) Range {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return NewRange(b.clipLocked(r.Start), b.clipLocked(r.End))
}

// Write Operations

// SetTextInRange replaces the text in r and returns the range of the new
// text. The origin is carried on the resulting Change; only OriginLocal
// changes are recorded by the history provider.
func (b *Buffer) SetTextInRange(r Range, text string, origin Origin) (Range, error) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return Range{}, ErrDestroyed
	}
	if !r.IsValid() || !b.isValidPointLocked(r.Start) || !b.isValidPointLocked(r.End) {
		b.mu.Unlock()
		return Range{}, ErrRangeInvalid
	}

	start := b.offsetLocked(r.Start)
	end := b.offsetLocked(r.End)
	oldText := b.text[start:end]

	// Marker offsets must be taken before the index changes.
	shifts := b.markerOffsetsLocked()

	b.text = b.text[:start] + text + b.text[end:]
	b.reindexLocked()
	b.revision++

	change := Change{
		OldRange: r,
		NewRange: Range{Start: r.Start, End: Extent(r.Start, text)},
		OldText:  oldText,
		NewText:  text,
		Origin:   origin,
	}

	if origin == OriginLocal {
		history := b.history
		b.pending = append(b.pending, func() { history.Record(change) })
	}
	b.pending = append(b.pending, func() { b.didChange.Emit(change) })
	b.shiftMarkersLocked(shifts, start, end, len(text))

	b.unlockAndFlush()
	return change.NewRange, nil
}

// Insert inserts text at p.
func (b *Buffer) Insert(p Point, text string, origin Origin) (Range, error) {
	return b.SetTextInRange(PointRange(p), text, origin)
}

// Delete removes the text in r.
func (b *Buffer) Delete(r Range, origin Origin) error {
	_, err := b.SetTextInRange(r, "", origin)
	return err
}

// SetText replaces the whole buffer content.
func (b *Buffer) SetText(text string, origin Origin) error {
	_, err := b.SetTextInRange(Range{End: b.EndPoint()}, text, origin)
	return err
}

// Transact runs fn as one unit: marker layer updates are coalesced into a
// single notification per layer, and a default history that supports
// grouping folds the recorded changes into one undo step.
func (b *Buffer) Transact(fn func()) {
	b.mu.Lock()
	b.batchDepth++
	history := b.history
	b.mu.Unlock()

	if g, ok := history.(Grouper); ok {
		g.BeginGroup()
		defer g.EndGroup()
	}
	defer func() {
		b.mu.Lock()
		b.batchDepth--
		b.unlockAndFlush()
	}()

	fn()
}

// OnDidChange registers fn to be called after every text change.
func (b *Buffer) OnDidChange(fn func(Change)) event.Subscription {
	return b.didChange.Subscribe(fn)
}

// History

// Undo asks the current history provider to undo its next step.
func (b *Buffer) Undo() ([]Selection, bool) {
	return b.HistoryProvider().Undo()
}

// Redo asks the current history provider to redo its next step.
func (b *Buffer) Redo() ([]Selection, bool) {
	return b.HistoryProvider().Redo()
}

// HistoryProvider returns the provider currently owning undo/redo.
func (b *Buffer) HistoryProvider() HistoryProvider {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history
}

// SetHistoryProvider replaces the history provider and returns the previous one.
func (b *Buffer) SetHistoryProvider(p HistoryProvider) HistoryProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.history
	b.history = p
	return prev
}

// RestoreDefaultHistory reinstalls a default history seeded with seed.
func (b *Buffer) RestoreDefaultHistory(seed HistorySnapshot) {
	h := b.buildDefaultHistory(seed)
	b.mu.Lock()
	b.history = h
	b.mu.Unlock()
}

// HistorySnapshot returns the current provider's snapshot.
func (b *Buffer) HistorySnapshot(maxEntries int) HistorySnapshot {
	return b.HistoryProvider().Snapshot(maxEntries)
}

// File

// FileAdapter returns the buffer's file adapter.
func (b *Buffer) FileAdapter() FileAdapter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.file
}

// SetFileAdapter replaces the file adapter and returns the previous one.
func (b *Buffer) SetFileAdapter(f FileAdapter) FileAdapter {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.file
	b.file = f
	return prev
}

// Path returns the buffer's path as reported by its file adapter.
func (b *Buffer) Path() string {
	return b.FileAdapter().Path()
}

// IsModified reports whether the buffer has unsaved changes.
func (b *Buffer) IsModified() bool {
	return b.FileAdapter().IsModified(b)
}

// Save saves the buffer through its file adapter.
func (b *Buffer) Save(ctx context.Context) error {
	return b.FileAdapter().Save(ctx, b)
}

// Lifecycle

// Destroy marks the buffer destroyed, destroys its marker layers and
// notifies OnDidDestroy handlers. Idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	for _, l := range b.layers {
		l.destroyLocked()
	}
	b.layers = nil
	b.pending = append(b.pending, func() { b.didDestroy.Emit(struct{}{}) })
	b.unlockAndFlush()
}

// IsDestroyed reports whether Destroy has been called.
func (b *Buffer) IsDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}

// OnDidDestroy registers fn to be called when the buffer is destroyed.
func (b *Buffer) OnDidDestroy(fn func()) event.Subscription {
	return b.didDestroy.Subscribe(func(struct{}) { fn() })
}

// unlockAndFlush releases the lock and runs queued notifications. Layer
// updates are only delivered outside of a Transact.
func (b *Buffer) unlockAndFlush() {
	events := b.pending
	b.pending = nil

	var updates []func()
	if b.batchDepth == 0 {
		for _, l := range b.layers {
			if u := l.takePendingLocked(); !u.IsEmpty() {
				layer := l
				updates = append(updates, func() { layer.didUpdate.Emit(u) })
			}
		}
	}
	b.mu.Unlock()

	for _, fn := range events {
		fn()
	}
	for _, fn := range updates {
		fn()
	}
}

// Index helpers. All require b.mu.

func (b *Buffer) reindexLocked() {
	starts := make([]int, 1, len(b.lineStarts)+1)
	for i := 0; i < len(b.text); i++ {
		if b.text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	b.lineStarts = starts
}

func (b *Buffer) lineLenLocked(line uint32) int {
	start := b.lineStarts[line]
	if int(line)+1 < len(b.lineStarts) {
		return b.lineStarts[line+1] - 1 - start
	}
	return len(b.text) - start
}

func (b *Buffer) isValidPointLocked(p Point) bool {
	if int(p.Line) >= len(b.lineStarts) {
		return false
	}
	return int(p.Column) <= b.lineLenLocked(p.Line)
}

func (b *Buffer) clipLocked(p Point) Point {
	last := uint32(len(b.lineStarts) - 1)
	if p.Line > last {
		return Point{Line: last, Column: uint32(b.lineLenLocked(last))}
	}
	if n := uint32(b.lineLenLocked(p.Line)); p.Column > n {
		p.Column = n
	}
	return p
}

// offsetLocked expects a valid point.
func (b *Buffer) offsetLocked(p Point) int {
	return b.lineStarts[p.Line] + int(p.Column)
}

func (b *Buffer) pointLocked(offset int) Point {
	if offset < 0 {
		offset = 0
	}
	if offset > len(b.text) {
		offset = len(b.text)
	}
	line := sort.Search(len(b.lineStarts), func(i int) bool {
		return b.lineStarts[i] > offset
	}) - 1
	return Point{Line: uint32(line), Column: uint32(offset - b.lineStarts[line])}
}
