package buffersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/logging"
)

// Errors returned by BufferSync.
var (
	// ErrDisposed is returned when a disposed binding is used.
	ErrDisposed = errors.New("buffer binding disposed")

	// ErrAlreadyBound is returned when Bind is called twice.
	ErrAlreadyBound = errors.New("buffer binding already bound")

	// ErrNotBound is returned by operations that need a document.
	ErrNotBound = errors.New("buffer binding not bound")
)

// DefaultMaxHistoryEntries bounds the history copied back into the buffer
// on dispose.
const DefaultMaxHistoryEntries = 1000

// Options configures a BufferSync.
type Options struct {
	Logger *logging.Logger

	// MaxHistoryEntries bounds the history restored on dispose.
	MaxHistoryEntries int

	// GroupingInterval merges consecutive local transactions made within
	// the interval into one undo step. Zero disables grouping.
	GroupingInterval time.Duration

	// RemoteURI, when set, installs a RemoteFile adapter with this path on
	// Bind. Guests use it for documents owned by the host.
	RemoteURI string
}

// BufferSync binds one buffer to at most one shared document. It is the
// buffer's history provider while bound.
type BufferSync struct {
	mu sync.Mutex

	buf    *buffer.Buffer
	doc    shared.Document
	logger *logging.Logger
	opts   Options

	// Local changes made before Bind, against baseText.
	baseText string
	queued   []shared.Change

	applying        int
	groupDepth      int
	groupCheckpoint shared.Checkpoint

	prevFile buffer.FileAdapter
	disposed bool

	subs    event.Group
	docSubs event.Group

	didDispose event.Emitter[struct{}]
}

var (
	_ buffer.HistoryProvider = (*BufferSync)(nil)
	_ buffer.Grouper         = (*BufferSync)(nil)
)

// New creates an unbound binding for buf. Local edits are queued until Bind.
func New(buf *buffer.Buffer, opts Options) *BufferSync {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.MaxHistoryEntries <= 0 {
		opts.MaxHistoryEntries = DefaultMaxHistoryEntries
	}

	s := &BufferSync{
		buf:      buf,
		logger:   opts.Logger.WithComponent("buffersync"),
		opts:     opts,
		baseText: buf.Text(),
	}
	s.subs.Add(
		buf.OnDidChange(s.relayLocalChange),
		buf.OnDidDestroy(s.Dispose),
	)
	return s
}

// Buffer returns the bound buffer.
func (s *BufferSync) Buffer() *buffer.Buffer {
	return s.buf
}

// BaseText returns the buffer text at the time the binding was created.
// Changes queued before Bind are relative to it, so a host shares a new
// document with this text.
func (s *BufferSync) BaseText() string {
	return s.baseText
}

// Document returns the bound document or nil.
func (s *BufferSync) Document() shared.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// IsBound reports whether the binding is attached to a live document.
func (s *BufferSync) IsBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil && !s.disposed
}

// IsDisposed reports whether Dispose has been called.
func (s *BufferSync) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Bind attaches doc, forwards queued local changes in order and takes over
// the buffer's history.
func (s *BufferSync) Bind(doc shared.Document) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.doc != nil {
		s.mu.Unlock()
		return ErrAlreadyBound
	}
	s.doc = doc
	queued := s.queued
	s.queued = nil
	s.logger = s.logger.WithFields(map[string]any{
		"document": string(doc.DocumentID()),
		"site":     int(doc.SiteID()),
	})
	s.mu.Unlock()

	for _, c := range queued {
		if err := doc.ForwardChange(c); err != nil {
			s.handleForwardError(err, nil)
			if shared.IsGone(err) {
				return fmt.Errorf("flush queued changes: %w", err)
			}
		}
	}

	s.buf.SetHistoryProvider(s)
	if s.opts.RemoteURI != "" {
		var saver shared.Saver
		if sv, ok := doc.(shared.Saver); ok {
			saver = sv
		}
		prev := s.buf.SetFileAdapter(NewRemoteFile(s.opts.RemoteURI, saver))
		s.mu.Lock()
		s.prevFile = prev
		s.mu.Unlock()
	}

	s.docSubs.Add(
		doc.OnRemoteChanges(func(batch []shared.Change) {
			if err := s.ApplyRemoteChanges(batch); err != nil && !errors.Is(err, ErrDisposed) {
				s.logger.Error("apply remote changes: %v", err)
			}
		}),
		doc.OnDispose(func() {
			s.logger.Info("shared document gone, continuing locally")
			s.Dispose()
		}),
	)
	s.logger.Debug("bound with %d queued changes", len(queued))
	return nil
}

// relayLocalChange forwards local edits. Remote and history changes are
// already part of the shared document.
func (s *BufferSync) relayLocalChange(c buffer.Change) {
	if c.Origin != buffer.OriginLocal {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	change := toShared(c)
	if s.doc == nil {
		s.queued = append(s.queued, change)
		s.mu.Unlock()
		return
	}
	doc := s.doc
	grouping := s.groupDepth > 0
	s.mu.Unlock()

	if err := doc.ForwardChange(change); err != nil {
		s.handleForwardError(err, &c)
		return
	}
	if !grouping && s.opts.GroupingInterval > 0 {
		doc.ApplyGroupingInterval(s.opts.GroupingInterval)
	}
}

// handleForwardError never fails the edit: a missing counterpart turns the
// binding local-only, anything else is logged.
func (s *BufferSync) handleForwardError(err error, c *buffer.Change) {
	if !shared.IsGone(err) {
		s.logger.Warn("forward change: %v", err)
		return
	}
	s.logger.Warn("shared document unavailable, editing locally")
	s.Dispose()
	if c != nil {
		s.buf.HistoryProvider().Record(*c)
	}
}

// ApplyRemoteChanges applies a batch from another site. Changes are applied
// from the last to the first and are not recorded or relayed.
func (s *BufferSync) ApplyRemoteChanges(batch []shared.Change) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.mu.Unlock()
	return s.applyBatch(batch, buffer.OriginRemote)
}

func (s *BufferSync) applyBatch(batch []shared.Change, origin buffer.Origin) error {
	s.mu.Lock()
	s.applying++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.applying--
		s.mu.Unlock()
	}()

	var errs []error
	s.buf.Transact(func() {
		for i := len(batch) - 1; i >= 0; i-- {
			c := batch[i]
			r := buffer.Range{Start: c.OldStart, End: c.OldEnd}
			if _, err := s.buf.SetTextInRange(r, c.NewText, origin); err != nil {
				errs = append(errs, fmt.Errorf("change %s: %w", c, err))
			}
		}
	})
	return errors.Join(errs...)
}

// Record is a no-op; the shared document records local changes.
func (s *BufferSync) Record(buffer.Change) {}

// Undo undoes the local site's newest transaction in the shared history.
func (s *BufferSync) Undo() ([]buffer.Selection, bool) {
	doc := s.boundDocument()
	if doc == nil {
		return nil, false
	}
	res, ok := doc.Undo()
	if !ok {
		return nil, false
	}
	return s.applyHistoryResult(res), true
}

// Redo redoes the local site's most recently undone transaction.
func (s *BufferSync) Redo() ([]buffer.Selection, bool) {
	doc := s.boundDocument()
	if doc == nil {
		return nil, false
	}
	res, ok := doc.Redo()
	if !ok {
		return nil, false
	}
	return s.applyHistoryResult(res), true
}

func (s *BufferSync) applyHistoryResult(res shared.HistoryResult) []buffer.Selection {
	if err := s.applyBatch(res.Changes, buffer.OriginHistory); err != nil {
		s.logger.Error("apply history changes: %v", err)
	}
	return selectionsFromMarkers(s.buf, res.Markers)
}

// BeginGroup opens a transaction grouped into one shared undo step.
func (s *BufferSync) BeginGroup() {
	s.mu.Lock()
	if s.applying > 0 || s.disposed || s.doc == nil {
		s.mu.Unlock()
		return
	}
	s.groupDepth++
	if s.groupDepth > 1 {
		s.mu.Unlock()
		return
	}
	doc := s.doc
	s.mu.Unlock()

	cp := doc.CreateCheckpoint(nil)
	s.mu.Lock()
	s.groupCheckpoint = cp
	s.mu.Unlock()
}

// EndGroup closes the transaction opened by the matching BeginGroup.
func (s *BufferSync) EndGroup() {
	s.mu.Lock()
	if s.groupDepth == 0 {
		s.mu.Unlock()
		return
	}
	s.groupDepth--
	if s.groupDepth > 0 || s.doc == nil {
		s.mu.Unlock()
		return
	}
	doc, cp := s.doc, s.groupCheckpoint
	s.groupCheckpoint = ""
	s.mu.Unlock()

	changes, _ := doc.GroupChangesSinceCheckpoint(cp, shared.GroupOptions{DeleteCheckpoint: true})
	if len(changes) > 0 && s.opts.GroupingInterval > 0 {
		doc.ApplyGroupingInterval(s.opts.GroupingInterval)
	}
}

// CreateCheckpoint marks the current position in the local site's shared
// history. selections are restored when the checkpoint is reverted.
func (s *BufferSync) CreateCheckpoint(selections []buffer.Selection) (shared.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return "", ErrDisposed
	}
	if s.doc == nil {
		return "", ErrNotBound
	}
	return s.doc.CreateCheckpoint(markersFromSelections(selections)), nil
}

// GetChangesSinceCheckpoint returns the local site's changes since cp.
func (s *BufferSync) GetChangesSinceCheckpoint(cp shared.Checkpoint) ([]buffer.Change, bool) {
	doc := s.boundDocument()
	if doc == nil {
		return nil, false
	}
	changes, ok := doc.GetChangesSinceCheckpoint(cp)
	if !ok {
		return nil, false
	}
	return toLocalChanges(changes, buffer.OriginLocal), true
}

// GroupChangesSinceCheckpoint folds the local site's changes since cp into
// one undo step.
func (s *BufferSync) GroupChangesSinceCheckpoint(cp shared.Checkpoint, selections []buffer.Selection, deleteCheckpoint bool) ([]buffer.Change, bool) {
	doc := s.boundDocument()
	if doc == nil {
		return nil, false
	}
	changes, ok := doc.GroupChangesSinceCheckpoint(cp, shared.GroupOptions{
		Markers:          markersFromSelections(selections),
		DeleteCheckpoint: deleteCheckpoint,
	})
	if !ok {
		return nil, false
	}
	return toLocalChanges(changes, buffer.OriginLocal), true
}

// RevertToCheckpoint reverts the local site's changes since cp and returns
// the selections to restore. ok is false for an unknown checkpoint.
func (s *BufferSync) RevertToCheckpoint(cp shared.Checkpoint) ([]buffer.Selection, bool) {
	doc := s.boundDocument()
	if doc == nil {
		return nil, false
	}
	res, ok := doc.RevertToCheckpoint(cp)
	if !ok {
		return nil, false
	}
	return s.applyHistoryResult(res), true
}

// ApplyGroupingInterval passes through to the shared document.
func (s *BufferSync) ApplyGroupingInterval(interval time.Duration) {
	if doc := s.boundDocument(); doc != nil {
		doc.ApplyGroupingInterval(interval)
	}
}

// Snapshot returns the local site's shared history in buffer form.
func (s *BufferSync) Snapshot(maxEntries int) buffer.HistorySnapshot {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return buffer.HistorySnapshot{}
	}
	return toLocalSnapshot(doc.History(maxEntries))
}

// Save saves through the buffer's file adapter. Guests' adapters ask the
// host to save.
func (s *BufferSync) Save(ctx context.Context) error {
	if s.IsDisposed() {
		return ErrDisposed
	}
	return s.buf.Save(ctx)
}

func (s *BufferSync) boundDocument() shared.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	return s.doc
}

// Dispose detaches the binding and restores the buffer's default history,
// seeded from the shared history. Safe to call repeatedly and after the
// document is gone.
func (s *BufferSync) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	doc := s.doc
	prevFile := s.prevFile
	s.queued = nil
	s.mu.Unlock()

	s.subs.Cancel()
	s.docSubs.Cancel()

	if doc != nil {
		seed := toLocalSnapshot(doc.History(s.opts.MaxHistoryEntries))
		if s.buf.HistoryProvider() == buffer.HistoryProvider(s) {
			s.buf.RestoreDefaultHistory(seed)
		}
		if prevFile != nil {
			s.buf.SetFileAdapter(prevFile)
		}
		doc.Dispose()
	}

	s.didDispose.Emit(struct{}{})
	s.didDispose.Clear()
	s.logger.Debug("disposed")
}

// OnDidDispose registers fn to run when the binding is disposed.
func (s *BufferSync) OnDidDispose(fn func()) event.Subscription {
	return s.didDispose.Subscribe(func(struct{}) { fn() })
}
