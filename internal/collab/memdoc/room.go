package memdoc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/logging"
)

// ErrNotOwner is returned when a site closes a document it did not share.
var ErrNotOwner = errors.New("document shared by another site")

// Room is an in-process session: a set of sites and the documents they
// share. The first site to join is the host.
type Room struct {
	mu sync.Mutex

	id     string
	clock  clock.Clock
	logger *logging.Logger

	nextSite   shared.SiteID
	peers      map[shared.SiteID]*Peer
	active     mapset.Set[shared.SiteID]
	positions  map[shared.SiteID]shared.Position
	identities map[shared.SiteID]shared.Identity
	docs       map[shared.DocumentID]*Doc

	queue deliveryQueue
}

// NewRoom creates an empty room. A nil clock or logger selects the system
// clock or a discarding logger.
func NewRoom(c clock.Clock, logger *logging.Logger) *Room {
	if c == nil {
		c = clock.System
	}
	if logger == nil {
		logger = logging.Nop()
	}
	id := uuid.NewString()
	return &Room{
		id:         id,
		clock:      c,
		logger:     logger.WithField("portal", id),
		nextSite:   shared.HostSiteID,
		peers:      make(map[shared.SiteID]*Peer),
		active:     mapset.NewSet[shared.SiteID](),
		positions:  make(map[shared.SiteID]shared.Position),
		identities: make(map[shared.SiteID]shared.Identity),
		docs:       make(map[shared.DocumentID]*Doc),
	}
}

// ID returns the room's portal id.
func (r *Room) ID() string {
	return r.id
}

// Join adds a site to the room.
func (r *Room) Join(displayName string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	site := r.nextSite
	r.nextSite++
	p := &Peer{room: r, site: site}
	r.peers[site] = p
	r.active.Add(site)
	r.identities[site] = shared.Identity{Site: site, DisplayName: displayName}
	r.logger.Info("%s joined as site %d", displayName, int(site))
	return p
}

// CreateDocument adds a shared document.
func (r *Room) CreateDocument(id shared.DocumentID, text string) (*Doc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; ok {
		return nil, fmt.Errorf("document %q already shared", id)
	}
	d := NewDoc(id, text, WithClock(r.clock), WithLogger(r.logger))
	r.docs[id] = d
	return d, nil
}

// Document returns a shared document.
func (r *Room) Document(id shared.DocumentID) (*Doc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	return d, ok
}

// CloseDocument stops sharing a document and disposes its replicas.
func (r *Room) CloseDocument(id shared.DocumentID) {
	r.mu.Lock()
	d, ok := r.docs[id]
	delete(r.docs, id)
	r.mu.Unlock()

	if ok {
		d.Close()
	}
}

func (r *Room) positionsLocked() map[shared.SiteID]shared.Position {
	out := make(map[shared.SiteID]shared.Position, len(r.positions))
	for s, p := range r.positions {
		out[s] = p
	}
	return out
}

func (r *Room) notifyPositionsLocked() {
	positions := r.positionsLocked()
	for _, site := range sortedSites(r.active) {
		p := r.peers[site]
		r.queue.push(func() { p.didChangePositions.Emit(positions) })
	}
}

func sortedSites(set mapset.Set[shared.SiteID]) []shared.SiteID {
	sites := set.ToSlice()
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// Peer is one site's view of a Room. It implements shared.Portal.
type Peer struct {
	room *Room
	site shared.SiteID

	didChangePositions event.Emitter[map[shared.SiteID]shared.Position]
}

var _ shared.Connection = (*Peer)(nil)

// SiteID returns the peer's site.
func (p *Peer) SiteID() shared.SiteID {
	return p.site
}

// PortalID returns the id of the room.
func (p *Peer) PortalID() string {
	return p.room.id
}

// HostSiteID returns the host site.
func (p *Peer) HostSiteID() shared.SiteID {
	return shared.HostSiteID
}

// SiteIdentity describes a site that joined the room.
func (p *Peer) SiteIdentity(site shared.SiteID) (shared.Identity, bool) {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()
	id, ok := p.room.identities[site]
	return id, ok
}

// ActiveSiteIDs returns the connected sites in ascending order.
func (p *Peer) ActiveSiteIDs() []shared.SiteID {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()
	return sortedSites(p.room.active)
}

// UpdatePosition publishes where this site is looking.
func (p *Peer) UpdatePosition(pos shared.Position) {
	r := p.room
	r.mu.Lock()
	if !r.active.Contains(p.site) {
		r.mu.Unlock()
		return
	}
	if old, ok := r.positions[p.site]; ok && old == pos {
		r.mu.Unlock()
		return
	}
	r.positions[p.site] = pos
	r.notifyPositionsLocked()
	r.mu.Unlock()
	r.queue.drain()
}

// Positions returns the last known position of every active site.
func (p *Peer) Positions() map[shared.SiteID]shared.Position {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()
	return p.room.positionsLocked()
}

// OnDidChangePositions registers fn for position updates.
func (p *Peer) OnDidChangePositions(fn func(map[shared.SiteID]shared.Position)) event.Subscription {
	return p.didChangePositions.Subscribe(fn)
}

// Open joins the peer to a shared document.
func (p *Peer) Open(id shared.DocumentID) (*Replica, error) {
	d, ok := p.room.Document(id)
	if !ok {
		return nil, shared.NewOperationError("open", string(id), shared.ErrDocumentGone)
	}
	return d.Join(p.site)
}

// ShareDocument creates a document owned by the peer. Save requests from
// other sites are passed to save.
func (p *Peer) ShareDocument(id shared.DocumentID, text string, save func(context.Context) error) error {
	d, err := p.room.CreateDocument(id, text)
	if err != nil {
		return err
	}
	d.setOwner(p.site)
	if save != nil {
		d.SetSaveHandler(save)
	}
	return nil
}

// OpenDocument is Open returning the shared interface.
func (p *Peer) OpenDocument(id shared.DocumentID) (shared.Replica, error) {
	rep, err := p.Open(id)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// CloseDocument closes a document the peer shared.
func (p *Peer) CloseDocument(id shared.DocumentID) error {
	d, ok := p.room.Document(id)
	if !ok {
		return shared.NewOperationError("close", string(id), shared.ErrDocumentGone)
	}
	if d.Owner() != p.site {
		return shared.NewOperationError("close", string(id), ErrNotOwner)
	}
	p.room.CloseDocument(id)
	return nil
}

// Leave disconnects the peer. Its replicas are disposed and its position
// is dropped. When the host leaves every document is closed.
func (p *Peer) Leave() {
	r := p.room
	r.mu.Lock()
	if !r.active.Contains(p.site) {
		r.mu.Unlock()
		return
	}
	r.active.Remove(p.site)
	delete(r.positions, p.site)
	docs := make([]*Doc, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	if p.site == shared.HostSiteID {
		r.docs = make(map[shared.DocumentID]*Doc)
	}
	r.notifyPositionsLocked()
	r.mu.Unlock()
	r.queue.drain()
	p.didChangePositions.Clear()

	for _, d := range docs {
		if p.site == shared.HostSiteID {
			d.Close()
			continue
		}
		d.mu.Lock()
		if rep, ok := d.replicas[p.site]; ok {
			d.disposeLocked(rep)
		}
		d.mu.Unlock()
		d.queue.drain()
	}
	r.logger.Info("site %d left", int(p.site))
}
