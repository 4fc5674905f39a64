package memdoc

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dshills/tandem/internal/clock"
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/logging"
)

// ErrAlreadyJoined is returned when a site joins a document twice.
var ErrAlreadyJoined = errors.New("site already joined")

// Doc is the shared state of one document. Sites take part through the
// Replica returned by Join.
type Doc struct {
	mu sync.Mutex

	id     shared.DocumentID
	owner  shared.SiteID
	clock  clock.Clock
	logger *logging.Logger

	seq         *sequence
	nextSeq     uint64
	replicas    map[shared.SiteID]*Replica
	selections  map[shared.SiteID]shared.MarkerSet
	checkpoints map[shared.Checkpoint]*checkpoint
	saveHandler func(context.Context) error
	closed      bool

	queue deliveryQueue
}

// entry is one undo step of a site.
type entry struct {
	ops       []*op
	seq       uint64
	timestamp time.Time
	markers   shared.MarkerSet
}

type checkpoint struct {
	site    shared.SiteID
	seq     uint64
	markers shared.MarkerSet
}

// Option configures a Doc.
type Option func(*Doc)

// WithClock sets the clock used to timestamp transactions.
func WithClock(c clock.Clock) Option {
	return func(d *Doc) {
		d.clock = c
	}
}

// WithLogger sets the document's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Doc) {
		d.logger = l
	}
}

// NewDoc creates a document holding text.
func NewDoc(id shared.DocumentID, text string, opts ...Option) *Doc {
	d := &Doc{
		id:          id,
		owner:       shared.HostSiteID,
		clock:       clock.System,
		logger:      logging.Nop(),
		replicas:    make(map[shared.SiteID]*Replica),
		selections:  make(map[shared.SiteID]shared.MarkerSet),
		checkpoints: make(map[shared.Checkpoint]*checkpoint),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithField("document", string(id))
	d.seq = newSequence(text, &op{active: true})
	return d
}

// ID returns the document id.
func (d *Doc) ID() shared.DocumentID {
	return d.id
}

// Owner returns the site that shared the document.
func (d *Doc) Owner() shared.SiteID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner
}

func (d *Doc) setOwner(site shared.SiteID) {
	d.mu.Lock()
	d.owner = site
	d.mu.Unlock()
}

// Text returns the current text.
func (d *Doc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq.text()
}

// Sites returns the joined sites in ascending order.
func (d *Doc) Sites() []shared.SiteID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sitesLocked()
}

func (d *Doc) sitesLocked() []shared.SiteID {
	sites := make([]shared.SiteID, 0, len(d.replicas))
	for s := range d.replicas {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// SetSaveHandler sets the function run when any site requests a save.
func (d *Doc) SetSaveHandler(fn func(context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveHandler = fn
}

// Join attaches site to the document.
func (d *Doc) Join(site shared.SiteID) (*Replica, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, shared.NewOperationError("join", string(d.id), shared.ErrDocumentGone)
	}
	if _, ok := d.replicas[site]; ok {
		return nil, shared.NewOperationError("join", site.String(), ErrAlreadyJoined)
	}

	r := &Replica{doc: d, site: site}
	d.replicas[site] = r
	d.logger.Debug("site %d joined", int(site))
	return r, nil
}

// Close removes the document. Every replica is disposed.
func (d *Doc) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, site := range d.sitesLocked() {
		d.disposeLocked(d.replicas[site])
	}
	d.mu.Unlock()
	d.queue.drain()
}

// IsClosed reports whether the document was closed.
func (d *Doc) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Doc) broadcastLocked(from shared.SiteID, batch []shared.Change) {
	if len(batch) == 0 {
		return
	}
	for _, site := range d.sitesLocked() {
		if site == from {
			continue
		}
		r := d.replicas[site]
		d.queue.push(func() { r.remoteChanges.Emit(batch) })
	}
}

func (d *Doc) publishSelectionsLocked(from shared.SiteID, markers shared.MarkerSet) {
	for _, site := range d.sitesLocked() {
		if site == from {
			continue
		}
		r := d.replicas[site]
		u := selectionUpdate{site: from, markers: markers}
		d.queue.push(func() { r.remoteSelections.Emit(u) })
	}
}

func (d *Doc) disposeLocked(r *Replica) {
	if r.disposed {
		return
	}
	r.disposed = true
	delete(d.replicas, r.site)

	if _, ok := d.selections[r.site]; ok {
		delete(d.selections, r.site)
		d.publishSelectionsLocked(r.site, shared.MarkerSet{})
	}
	for token, cp := range d.checkpoints {
		if cp.site == r.site {
			delete(d.checkpoints, token)
		}
	}

	d.queue.push(func() {
		r.didDispose.Emit(struct{}{})
		r.remoteChanges.Clear()
		r.remoteSelections.Clear()
		r.didDispose.Clear()
	})
	d.logger.Debug("site %d left", int(r.site))
}

func setActive(entries []*entry, active bool) {
	for _, e := range entries {
		for _, o := range e.ops {
			o.active = active
		}
	}
}
