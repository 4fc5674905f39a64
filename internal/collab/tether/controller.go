package tether

import (
	"sync"
	"time"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/logging"
)

// DefaultDisconnectWindow is how long the follower must be idle before a
// leader leaving its view pulls it along instead of breaking the tether.
const DefaultDisconnectWindow = 100 * time.Millisecond

// Navigator shows shared documents to the follower.
type Navigator interface {
	// OpenDocument activates an editor for doc, opening it if needed.
	OpenDocument(doc shared.DocumentID) (*editor.Editor, error)

	// ActiveEditor returns the active editor and the shared document it
	// shows. doc is empty when the editor is not shared or ed is nil.
	ActiveEditor() (ed *editor.Editor, doc shared.DocumentID)
}

// PositionSource reports where every site is looking. shared.Portal
// implements it.
type PositionSource interface {
	Positions() map[shared.SiteID]shared.Position
}

// Options configures a Controller.
type Options struct {
	Clock            clock.Clock
	Logger           *logging.Logger
	DisconnectWindow time.Duration
}

// Controller runs the tether of one follower.
type Controller struct {
	mu sync.Mutex

	nav       Navigator
	positions PositionSource
	clock     clock.Clock
	logger    *logging.Logger
	window    time.Duration

	state     State
	leader    shared.SiteID
	leaderPos shared.Position

	lastLocalMove time.Time
	// disconnectCandidate is set by local movement while tethered. The
	// tether breaks on the next leader update outside the view, unless the
	// follower has been idle for the window by then.
	disconnectCandidate bool

	didChangeState event.Emitter[StateChange]
}

// New creates a disconnected controller.
func New(nav Navigator, positions PositionSource, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.DisconnectWindow <= 0 {
		opts.DisconnectWindow = DefaultDisconnectWindow
	}
	return &Controller{
		nav:       nav,
		positions: positions,
		clock:     opts.Clock,
		logger:    opts.Logger.WithComponent("tether"),
		window:    opts.DisconnectWindow,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LeaderSiteID returns the followed site, or 0 when disconnected.
func (c *Controller) LeaderSiteID() shared.SiteID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

// LeaderPosition returns the leader's last known position.
func (c *Controller) LeaderPosition() (shared.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaderPos, c.leader != 0
}

// DisconnectWindow returns the current window.
func (c *Controller) DisconnectWindow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// SetDisconnectWindow changes the window. Non-positive values restore the
// default.
func (c *Controller) SetDisconnectWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultDisconnectWindow
	}
	c.mu.Lock()
	c.window = d
	c.mu.Unlock()
}

// Follow tethers the follower to site and jumps to the site's last known
// position. A site that is not looking at a shared document cannot be
// followed; the controller stays disconnected.
func (c *Controller) Follow(site shared.SiteID) {
	pos := c.positions.Positions()[site]
	if pos.IsZero() {
		c.logger.Info("%s has no visible document, not following", site)
		c.disconnect()
		return
	}

	c.mu.Lock()
	old := c.state
	c.leader = site
	c.leaderPos = pos
	c.state = Retracted
	c.disconnectCandidate = false
	c.mu.Unlock()

	c.logger.Debug("following %s", site)
	c.emit(old, Retracted, site)
	c.jump(pos)
}

// Unfollow breaks the tether.
func (c *Controller) Unfollow() {
	c.disconnect()
}

// HandlePositions feeds a position update of every site. Only the leader's
// entry is used and only when it moved; a missing entry means the leader
// left.
func (c *Controller) HandlePositions(positions map[shared.SiteID]shared.Position) {
	c.mu.Lock()
	leader, last := c.leader, c.leaderPos
	c.mu.Unlock()

	if leader == 0 {
		return
	}
	if pos := positions[leader]; pos != last {
		c.UpdateLeaderPosition(pos)
	}
}

// UpdateLeaderPosition re-evaluates the tether for a new leader position.
func (c *Controller) UpdateLeaderPosition(pos shared.Position) {
	c.mu.Lock()
	if c.leader == 0 {
		c.mu.Unlock()
		return
	}
	c.leaderPos = pos
	state := c.state
	c.mu.Unlock()

	if pos.IsZero() {
		c.logger.Debug("leader left the shared documents")
		c.disconnect()
		return
	}
	if state == Retracted {
		c.jump(pos)
		return
	}

	visible := c.isVisible(pos)

	c.mu.Lock()
	idle := c.clock.Now().Sub(c.lastLocalMove) >= c.window
	candidate := c.disconnectCandidate
	c.mu.Unlock()

	switch {
	case visible:
		// Close enough; nothing to force.
	case idle:
		c.retract(pos)
	case candidate:
		c.disconnect()
	}
}

// NoteLocalMovement records a cursor or viewport move made by the follower.
func (c *Controller) NoteLocalMovement() {
	c.mu.Lock()
	c.lastLocalMove = c.clock.Now()
	old := c.state
	switch old {
	case Retracted:
		c.state = Extended
		c.disconnectCandidate = true
	case Extended:
		c.disconnectCandidate = true
	}
	leader := c.leader
	c.mu.Unlock()

	if old == Retracted {
		c.emit(old, Extended, leader)
	}
}

// HandleActiveDocumentChange breaks the tether when the follower switches
// to a document other than the leader's.
func (c *Controller) HandleActiveDocumentChange(doc shared.DocumentID) {
	c.mu.Lock()
	leaving := c.leader != 0 && doc != c.leaderPos.Document
	c.mu.Unlock()

	if leaving {
		c.logger.Debug("switched to %q, leaving the leader's document", doc)
		c.disconnect()
	}
}

// OnDidChangeState registers fn for state changes.
func (c *Controller) OnDidChangeState(fn func(StateChange)) event.Subscription {
	return c.didChangeState.Subscribe(fn)
}

func (c *Controller) retract(pos shared.Position) {
	c.mu.Lock()
	old := c.state
	c.state = Retracted
	c.disconnectCandidate = false
	leader := c.leader
	c.mu.Unlock()

	c.emit(old, Retracted, leader)
	c.jump(pos)
}

func (c *Controller) disconnect() {
	c.mu.Lock()
	old, leader := c.state, c.leader
	c.state = Disconnected
	c.leader = 0
	c.leaderPos = shared.Position{}
	c.disconnectCandidate = false
	c.mu.Unlock()

	if old != Disconnected || leader != 0 {
		c.emit(old, Disconnected, 0)
	}
}

// jump shows the leader's document and centers the view on pos.
func (c *Controller) jump(pos shared.Position) {
	ed, doc := c.nav.ActiveEditor()
	if ed == nil || doc != pos.Document {
		var err error
		if ed, err = c.nav.OpenDocument(pos.Document); err != nil {
			c.logger.Warn("open %q: %v", pos.Document, err)
			c.disconnect()
			return
		}
	}
	ed.RevealPoint(ed.Buffer().ClipPoint(pos.Point))
}

func (c *Controller) isVisible(pos shared.Position) bool {
	ed, doc := c.nav.ActiveEditor()
	if ed == nil || doc != pos.Document {
		return false
	}
	return ed.IsPointVisible(ed.Buffer().ClipPoint(pos.Point))
}

func (c *Controller) emit(old, next State, leader shared.SiteID) {
	c.didChangeState.Emit(StateChange{Old: old, New: next, Leader: leader})
}
