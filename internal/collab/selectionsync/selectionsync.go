package selectionsync

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/renderer/style"
)

// Errors returned by SelectionSync.
var (
	// ErrDisposed is returned when a disposed binding is used.
	ErrDisposed = errors.New("selection binding disposed")

	// ErrAlreadyBound is returned when Bind is called twice.
	ErrAlreadyBound = errors.New("selection binding already bound")
)

// Options configures a SelectionSync.
type Options struct {
	Logger *logging.Logger

	// Palette colors remote sites. Nil uses the default palette.
	Palette *style.Palette

	// Portal labels remote sites and names the host. Optional.
	Portal shared.Portal

	// FollowHostCursor scrolls to the host's newest cursor whenever the
	// host's selections change.
	FollowHostCursor bool
}

// SelectionSync binds one editor's selections to a shared cursor set.
type SelectionSync struct {
	mu sync.Mutex

	editor  *editor.Editor
	cursors shared.CursorSet
	portal  shared.Portal
	palette *style.Palette
	logger  *logging.Logger

	hostSite  shared.SiteID
	following bool
	sites     map[shared.SiteID]*siteLayer
	dimmed    mapset.Set[shared.SiteID]
	disposed  bool

	subs       event.Group
	didDispose event.Emitter[struct{}]
}

// siteLayer holds the decorations of one remote site. markers maps the
// site's marker ids to local markers.
type siteLayer struct {
	layer   *editor.DecorationLayer
	markers map[int]*buffer.Marker
}

// New creates an unbound binding for ed.
func New(ed *editor.Editor, opts Options) *SelectionSync {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Palette == nil {
		opts.Palette = style.MustDefaultPalette()
	}

	s := &SelectionSync{
		editor:    ed,
		portal:    opts.Portal,
		palette:   opts.Palette,
		logger:    opts.Logger.WithComponent("selectionsync").WithField("uri", ed.URI()),
		hostSite:  shared.HostSiteID,
		following: opts.FollowHostCursor,
		sites:     make(map[shared.SiteID]*siteLayer),
		dimmed:    mapset.NewThreadUnsafeSet[shared.SiteID](),
	}
	if opts.Portal != nil {
		s.hostSite = opts.Portal.HostSiteID()
	}
	s.subs.Add(ed.OnDidDestroy(s.Dispose))
	return s
}

// Editor returns the bound editor.
func (s *SelectionSync) Editor() *editor.Editor {
	return s.editor
}

// Bind publishes the current selections to cursors, decorates the
// selections other sites already have and keeps both in sync.
func (s *SelectionSync) Bind(cursors shared.CursorSet) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.cursors != nil {
		s.mu.Unlock()
		return ErrAlreadyBound
	}
	s.cursors = cursors
	s.mu.Unlock()

	s.relayLocalSelections()
	s.subs.Add(
		s.editor.SelectionLayer().OnDidUpdate(func(u buffer.LayerUpdate) {
			if u.OnlyShifted() {
				return
			}
			s.relayLocalSelections()
		}),
		cursors.OnRemoteSelections(s.ApplyRemoteSelections),
	)

	current := cursors.RemoteSelections()
	sites := make([]shared.SiteID, 0, len(current))
	for site := range current {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	for _, site := range sites {
		s.ApplyRemoteSelections(site, current[site])
	}
	return nil
}

// relayLocalSelections publishes every local selection marker.
func (s *SelectionSync) relayLocalSelections() {
	s.mu.Lock()
	cursors := s.cursors
	disposed := s.disposed
	s.mu.Unlock()
	if cursors == nil || disposed {
		return
	}

	markers := s.editor.SelectionLayer().Markers()
	set := make(shared.MarkerSet, len(markers))
	for _, m := range markers {
		r := m.Range()
		set[m.ID()] = shared.MarkerRange{Start: r.Start, End: r.End, Reversed: m.IsReversed()}
	}
	if err := cursors.PublishSelections(set); err != nil {
		if shared.IsGone(err) {
			s.logger.Debug("cursor set gone, selections not published")
			return
		}
		s.logger.Warn("publish selections: %v", err)
	}
}

// ApplyRemoteSelections replaces the decorations of site with markers.
// Markers keep their identity across updates; ids missing from markers
// are destroyed.
func (s *SelectionSync) ApplyRemoteSelections(site shared.SiteID, markers shared.MarkerSet) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	sl := s.sites[site]
	follow := s.following && site == s.hostSite
	s.mu.Unlock()

	if len(markers) == 0 {
		if sl != nil {
			s.removeSite(site, sl)
		}
		return
	}
	if sl == nil {
		sl = s.addSite(site)
		if sl == nil {
			return
		}
	}

	s.editor.Batch(func() { sl.reconcile(markers) })

	if follow {
		if _, last, ok := markers.Last(); ok {
			s.editor.RevealPoint(s.editor.Buffer().ClipPoint(last.Head()))
		}
	}
}

func (sl *siteLayer) reconcile(markers shared.MarkerSet) {
	incoming := mapset.NewThreadUnsafeSet[int](markers.IDs()...)
	existing := mapset.NewThreadUnsafeSet[int]()
	for id := range sl.markers {
		existing.Add(id)
	}

	for _, id := range existing.Difference(incoming).ToSlice() {
		sl.markers[id].Destroy()
		delete(sl.markers, id)
	}
	for _, id := range markers.IDs() {
		r := markers[id]
		rng := buffer.Range{Start: r.Start, End: r.End}
		if m, ok := sl.markers[id]; ok && !m.IsDestroyed() {
			m.SetRange(rng, r.Reversed)
			continue
		}
		sl.markers[id] = sl.layer.Markers().MarkRange(rng, r.Reversed)
	}
}

func (s *SelectionSync) addSite(site shared.SiteID) *siteLayer {
	s.mu.Lock()
	full := !s.dimmed.Contains(site)
	s.mu.Unlock()

	layer := s.editor.AddDecorationLayer(s.layerName(site))
	layer.SetStyles(s.palette.SelectionStyle(int(site)), s.palette.CursorStyle(int(site), full))
	sl := &siteLayer{layer: layer, markers: make(map[int]*buffer.Marker)}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		layer.Destroy()
		return nil
	}
	if existing := s.sites[site]; existing != nil {
		s.mu.Unlock()
		layer.Destroy()
		return existing
	}
	s.sites[site] = sl
	s.mu.Unlock()
	return sl
}

func (s *SelectionSync) removeSite(site shared.SiteID, sl *siteLayer) {
	s.mu.Lock()
	if s.sites[site] == sl {
		delete(s.sites, site)
	}
	s.mu.Unlock()
	sl.layer.Destroy()
}

// layerName labels a site's layer with its display name when known.
func (s *SelectionSync) layerName(site shared.SiteID) string {
	if s.portal != nil {
		if id, ok := s.portal.SiteIdentity(site); ok && id.DisplayName != "" {
			return fmt.Sprintf("%s:@%s", site, id.DisplayName)
		}
	}
	return site.String()
}

// Marker returns the local marker mirroring a remote site's marker id.
func (s *SelectionSync) Marker(site shared.SiteID, id int) (*buffer.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.sites[site]
	if !ok {
		return nil, false
	}
	m, ok := sl.markers[id]
	if !ok || m.IsDestroyed() {
		return nil, false
	}
	return m, true
}

// Layer returns the decoration layer of a remote site.
func (s *SelectionSync) Layer(site shared.SiteID) (*editor.DecorationLayer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.sites[site]
	if !ok {
		return nil, false
	}
	return sl.layer, true
}

// Sites returns the remote sites that currently have decorations.
func (s *SelectionSync) Sites() []shared.SiteID {
	s.mu.Lock()
	set := mapset.NewThreadUnsafeSet[shared.SiteID]()
	for site := range s.sites {
		set.Add(site)
	}
	s.mu.Unlock()

	out := set.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetDimmedSites replaces the sites whose cursors are drawn dimmed. Sites
// without decorations yet are styled when their first markers arrive.
func (s *SelectionSync) SetDimmedSites(sites ...shared.SiteID) {
	next := mapset.NewThreadUnsafeSet[shared.SiteID](sites...)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	changed := s.dimmed.SymmetricDifference(next)
	s.dimmed = next
	restyle := make(map[shared.SiteID]*editor.DecorationLayer)
	for _, site := range changed.ToSlice() {
		if sl, ok := s.sites[site]; ok {
			restyle[site] = sl.layer
		}
	}
	s.mu.Unlock()

	for site, layer := range restyle {
		layer.SetStyles(s.palette.SelectionStyle(int(site)), s.palette.CursorStyle(int(site), !next.Contains(site)))
	}
}

// DimmedSites returns the sites whose cursors are drawn dimmed, ordered by id.
func (s *SelectionSync) DimmedSites() []shared.SiteID {
	s.mu.Lock()
	out := s.dimmed.ToSlice()
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetFollowState turns host cursor following on or off.
func (s *SelectionSync) SetFollowState(follow bool) {
	s.mu.Lock()
	s.following = follow
	s.mu.Unlock()
}

// IsFollowing reports whether the host's cursor is followed.
func (s *SelectionSync) IsFollowing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.following
}

// IsDisposed reports whether Dispose has been called.
func (s *SelectionSync) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose removes the remote decorations and withdraws the local
// selections from the cursor set. Idempotent.
func (s *SelectionSync) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	cursors := s.cursors
	sites := s.sites
	s.sites = nil
	s.mu.Unlock()

	s.subs.Cancel()
	for _, sl := range sites {
		sl.layer.Destroy()
	}
	if cursors != nil {
		if err := cursors.PublishSelections(shared.MarkerSet{}); err != nil && !shared.IsGone(err) {
			s.logger.Warn("withdraw selections: %v", err)
		}
	}
	s.didDispose.Emit(struct{}{})
	s.didDispose.Clear()
}

// OnDidDispose registers fn to run after Dispose.
func (s *SelectionSync) OnDidDispose(fn func()) event.Subscription {
	return s.didDispose.Subscribe(func(struct{}) { fn() })
}
