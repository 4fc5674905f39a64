package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/buffersync"
	"github.com/dshills/tandem/internal/collab/position"
	"github.com/dshills/tandem/internal/collab/selectionsync"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/collab/tether"
	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/renderer/style"
)

// Errors returned by Session.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")

	// ErrAlreadyShared is returned when an editor is shared twice.
	ErrAlreadyShared = errors.New("editor already shared")

	// ErrNotShared is returned for documents the session has no binding for.
	ErrNotShared = errors.New("document not shared")
)

// Options configures a Session.
type Options struct {
	// Config supplies and live-updates settings. Nil uses the defaults.
	Config *config.Manager
	Clock  clock.Clock
	Logger *logging.Logger
}

// Binding is a shared editor and the bindings keeping it in sync.
type Binding struct {
	Document   shared.DocumentID
	Editor     *editor.Editor
	Buffer     *buffersync.BufferSync
	Selections *selectionsync.SelectionSync

	// Owned is set when the local site shared the document.
	Owned bool

	subs event.Group
}

// Session is one site's participation in a portal.
type Session struct {
	mu sync.Mutex

	conn      shared.Connection
	workspace *editor.Workspace
	config    *config.Manager
	clock     clock.Clock
	root      *logging.Logger
	logger    *logging.Logger
	palette   *style.Palette

	tether    *tether.Controller
	positions *position.Broadcaster

	bindings map[shared.DocumentID]*Binding
	byEditor map[*editor.Editor]*Binding
	closed   bool

	subs       event.Group
	configSubs []*config.Subscription
}

var _ tether.Navigator = (*Session)(nil)

// New creates a session for conn showing documents in ws.
func New(conn shared.Connection, ws *editor.Workspace, opts Options) (*Session, error) {
	if opts.Config == nil {
		opts.Config = config.NewManager("")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	cfg := opts.Config.Current()
	palette, err := cfg.Palette()
	if err != nil {
		return nil, fmt.Errorf("session palette: %w", err)
	}

	s := &Session{
		conn:      conn,
		workspace: ws,
		config:    opts.Config,
		clock:     opts.Clock,
		root:      opts.Logger,
		logger:    opts.Logger.WithComponent("session").WithField("site", int(conn.SiteID())),
		palette:   palette,
		positions: position.New(conn.SiteID()),
		bindings:  make(map[shared.DocumentID]*Binding),
		byEditor:  make(map[*editor.Editor]*Binding),
	}
	s.tether = tether.New(s, conn, tether.Options{
		Clock:            opts.Clock,
		Logger:           opts.Logger,
		DisconnectWindow: cfg.Tether.DisconnectWindow.Std(),
	})

	s.subs.Add(
		conn.OnDidChangePositions(s.handlePositions),
		ws.OnDidChangeActiveEditor(s.handleActiveEditor),
		s.tether.OnDidChangeState(func(tether.StateChange) {
			s.refreshPositions(s.conn.Positions())
		}),
		s.positions.OnDidChange(s.applyCursorColors),
	)
	s.configSubs = append(s.configSubs,
		opts.Config.SubscribePath("tether.disconnect_window", func(c config.Change) {
			if d, ok := c.New.(time.Duration); ok {
				s.tether.SetDisconnectWindow(d)
			}
		}),
		opts.Config.SubscribePath("selection.follow_host_cursor", func(c config.Change) {
			if follow, ok := c.New.(bool); ok {
				for _, b := range s.Bindings() {
					b.Selections.SetFollowState(follow)
				}
			}
		}),
		opts.Config.SubscribePath("selection", func(c config.Change) {
			if c.Path == "selection.palette" || c.Path == "selection.background" {
				s.reloadPalette()
			}
		}),
	)
	return s, nil
}

// SiteID returns the local site.
func (s *Session) SiteID() shared.SiteID {
	return s.conn.SiteID()
}

// Connection returns the portal connection.
func (s *Session) Connection() shared.Connection {
	return s.conn
}

// Workspace returns the editor workspace.
func (s *Session) Workspace() *editor.Workspace {
	return s.workspace
}

// Tether returns the tether controller.
func (s *Session) Tether() *tether.Controller {
	return s.tether
}

// Positions returns the position broadcaster.
func (s *Session) Positions() *position.Broadcaster {
	return s.positions
}

// Share publishes ed's buffer as a document owned by the local site and
// binds the editor to it. The document id is the editor uri.
func (s *Session) Share(ed *editor.Editor) (*Binding, error) {
	doc := shared.DocumentID(ed.URI())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := s.byEditor[ed]; ok {
		s.mu.Unlock()
		return nil, ErrAlreadyShared
	}
	s.mu.Unlock()

	bs := buffersync.New(ed.Buffer(), s.bufferOptions(""))
	if err := s.conn.ShareDocument(doc, bs.BaseText(), bs.Save); err != nil {
		bs.Dispose()
		return nil, fmt.Errorf("share %s: %w", doc, err)
	}
	rep, err := s.conn.OpenDocument(doc)
	if err != nil {
		bs.Dispose()
		s.withdraw(doc)
		return nil, fmt.Errorf("share %s: %w", doc, err)
	}

	b, err := s.bind(doc, ed, bs, rep, true)
	if err != nil {
		s.withdraw(doc)
		return nil, err
	}
	s.workspace.Add(ed)
	s.logger.Info("sharing %s", doc)

	if s.workspace.ActiveEditor() == ed {
		s.handleActiveEditor(ed)
	}
	return b, nil
}

// Open activates the editor bound to doc, joining the document and
// creating a guest editor when needed.
func (s *Session) Open(doc shared.DocumentID) (*editor.Editor, error) {
	if b, ok := s.Binding(doc); ok {
		s.workspace.Activate(b.Editor)
		return b.Editor, nil
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	rep, err := s.conn.OpenDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc, err)
	}

	cfg := s.config.Current()
	uri := buffersync.RemoteURI(s.conn.PortalID(), doc)
	if stale, ok := s.workspace.Editor(uri); ok {
		// Left over from an earlier visit to the document.
		stale.Destroy()
	}
	buf := buffer.NewBufferFromString(rep.Text())
	ed := editor.New(uri, buf, editor.Config{Width: cfg.Editor.Width, Height: cfg.Editor.Height})
	bs := buffersync.New(buf, s.bufferOptions(uri))

	if _, err := s.bind(doc, ed, bs, rep, false); err != nil {
		buf.Destroy()
		return nil, err
	}
	s.logger.Info("opened %s as %s", doc, uri)

	s.workspace.Add(ed)
	s.workspace.Activate(ed)
	return ed, nil
}

// Close stops sharing doc. The host closes the document for every site and
// keeps its editor; a guest destroys its editor.
func (s *Session) Close(doc shared.DocumentID) error {
	b, ok := s.Binding(doc)
	if !ok {
		return ErrNotShared
	}
	if b.Owned {
		if err := s.conn.CloseDocument(doc); err != nil {
			return err
		}
		s.unbind(b)
		return nil
	}
	b.Editor.Destroy()
	return nil
}

// Follow tethers the local site to site.
func (s *Session) Follow(site shared.SiteID) {
	s.tether.Follow(site)
}

// Unfollow breaks the tether.
func (s *Session) Unfollow() {
	s.tether.Unfollow()
}

// Binding returns the binding of doc.
func (s *Session) Binding(doc shared.DocumentID) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[doc]
	return b, ok
}

// BindingFor returns the binding of an editor.
func (s *Session) BindingFor(ed *editor.Editor) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byEditor[ed]
	return b, ok
}

// Bindings returns every binding ordered by document id.
func (s *Session) Bindings() []*Binding {
	s.mu.Lock()
	out := make([]*Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Document < out[j].Document })
	return out
}

// OpenDocument implements tether.Navigator.
func (s *Session) OpenDocument(doc shared.DocumentID) (*editor.Editor, error) {
	return s.Open(doc)
}

// ActiveEditor implements tether.Navigator.
func (s *Session) ActiveEditor() (*editor.Editor, shared.DocumentID) {
	ed := s.workspace.ActiveEditor()
	if ed == nil {
		return nil, ""
	}
	if b, ok := s.BindingFor(ed); ok {
		return ed, b.Document
	}
	return ed, ""
}

// IsClosed reports whether Shutdown was called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown disposes every binding and leaves the portal. Editors stay
// open with their local history. Idempotent.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.subs.Cancel()
	for _, sub := range s.configSubs {
		sub.Unsubscribe()
	}
	s.tether.Unfollow()
	for _, b := range s.Bindings() {
		s.unbind(b)
	}
	s.conn.Leave()
	s.logger.Info("left portal %s", s.conn.PortalID())
}

func (s *Session) bufferOptions(remoteURI string) buffersync.Options {
	cfg := s.config.Current()
	return buffersync.Options{
		Logger:            s.root,
		MaxHistoryEntries: cfg.History.MaxEntries,
		GroupingInterval:  cfg.History.GroupingInterval.Std(),
		RemoteURI:         remoteURI,
	}
}

// bind attaches both bindings to rep. On failure everything created for
// the document is disposed.
func (s *Session) bind(doc shared.DocumentID, ed *editor.Editor, bs *buffersync.BufferSync, rep shared.Replica, owned bool) (*Binding, error) {
	if err := bs.Bind(rep); err != nil {
		bs.Dispose()
		rep.Dispose()
		return nil, fmt.Errorf("bind %s: %w", doc, err)
	}

	s.mu.Lock()
	palette := s.palette
	s.mu.Unlock()

	ss := selectionsync.New(ed, selectionsync.Options{
		Logger:           s.root,
		Palette:          palette,
		Portal:           s.conn,
		FollowHostCursor: s.config.Current().Selection.FollowHostCursor,
	})
	if err := ss.Bind(rep); err != nil {
		ss.Dispose()
		bs.Dispose()
		return nil, fmt.Errorf("bind selections of %s: %w", doc, err)
	}

	b := &Binding{
		Document:   doc,
		Editor:     ed,
		Buffer:     bs,
		Selections: ss,
		Owned:      owned,
	}
	s.mu.Lock()
	s.bindings[doc] = b
	s.byEditor[ed] = b
	s.mu.Unlock()

	b.Selections.SetDimmedSites(dimmedSites(doc, s.positions.Summary())...)
	b.subs.Add(
		bs.OnDidDispose(func() { s.unbind(b) }),
		ed.OnDidDestroy(func() { s.unbind(b) }),
		ed.OnDidMoveLocally(func() { s.handleLocalMovement(b) }),
		ed.SelectionLayer().OnDidUpdate(func(buffer.LayerUpdate) { s.publishPosition(b) }),
	)
	return b, nil
}

func (s *Session) unbind(b *Binding) {
	s.mu.Lock()
	if s.bindings[b.Document] != b {
		s.mu.Unlock()
		return
	}
	delete(s.bindings, b.Document)
	delete(s.byEditor, b.Editor)
	s.mu.Unlock()

	b.subs.Cancel()
	b.Selections.Dispose()
	b.Buffer.Dispose()
	s.logger.Info("stopped sharing %s", b.Document)

	if s.workspace.ActiveEditor() == b.Editor && !b.Editor.IsDestroyed() {
		s.handleActiveEditor(b.Editor)
	}
}

func (s *Session) handleLocalMovement(b *Binding) {
	if s.workspace.ActiveEditor() != b.Editor {
		return
	}
	s.tether.NoteLocalMovement()
	s.publishPosition(b)
}

func (s *Session) publishPosition(b *Binding) {
	if s.workspace.ActiveEditor() != b.Editor {
		return
	}
	s.conn.UpdatePosition(shared.Position{Document: b.Document, Point: b.Editor.CursorPosition()})
}

func (s *Session) handleActiveEditor(ed *editor.Editor) {
	_, doc := s.ActiveEditor()
	s.tether.HandleActiveDocumentChange(doc)
	s.positions.SetActiveDocument(doc)

	if b, ok := s.BindingFor(ed); ok && ed != nil {
		s.publishPosition(b)
		return
	}
	s.conn.UpdatePosition(shared.Position{})
}

func (s *Session) handlePositions(positions map[shared.SiteID]shared.Position) {
	s.tether.HandlePositions(positions)
	s.refreshPositions(positions)
}

func (s *Session) refreshPositions(positions map[shared.SiteID]shared.Position) {
	s.positions.Update(position.Entries(positions, s.tether.LeaderSiteID(), s.tether.State()))
}

// withdraw stops sharing a document whose owner binding could not be set up.
func (s *Session) withdraw(doc shared.DocumentID) {
	if err := s.conn.CloseDocument(doc); err != nil {
		s.logger.Warn("withdraw %s: %v", doc, err)
	}
}

// applyCursorColors dims the cursor of the leader the local view is
// retracted to. Only the active document can hold such a cursor.
func (s *Session) applyCursorColors(sum position.Summary) {
	for _, b := range s.Bindings() {
		b.Selections.SetDimmedSites(dimmedSites(b.Document, sum)...)
	}
}

func dimmedSites(doc shared.DocumentID, sum position.Summary) []shared.SiteID {
	if doc == "" || doc != sum.Document {
		return nil
	}
	var out []shared.SiteID
	for _, m := range sum.Inside {
		if !m.FullColor {
			out = append(out, m.Site)
		}
	}
	return out
}

func (s *Session) reloadPalette() {
	palette, err := s.config.Current().Palette()
	if err != nil {
		s.logger.Warn("keeping previous palette: %v", err)
		return
	}
	s.mu.Lock()
	s.palette = palette
	s.mu.Unlock()
	s.logger.Debug("palette reloaded; applies to newly bound editors")
}
