// Package position turns the positions of every site into what the local
// viewer should draw: cursors of sites in the active document, and a list
// of sites that are elsewhere.
package position

import (
	"slices"
	"sort"
	"sync"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/collab/tether"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/event"
)

// Entry is a site's position and its tether to the local viewer.
type Entry struct {
	Position shared.Position
	Tether   tether.State
}

// SiteMarker is a site cursor inside the active document.
type SiteMarker struct {
	Site  shared.SiteID
	Point buffer.Point
	// FullColor is false for the leader the viewer is retracted to, whose
	// cursor the viewer's own view already follows.
	FullColor bool
}

// Summary partitions the other sites by whether they are in the active
// document. Both lists are ordered by site id.
type Summary struct {
	Document  shared.DocumentID
	Inside    []SiteMarker
	Elsewhere []shared.SiteID
}

func (s Summary) equal(o Summary) bool {
	return s.Document == o.Document &&
		slices.Equal(s.Inside, o.Inside) &&
		slices.Equal(s.Elsewhere, o.Elsewhere)
}

// Entries pairs positions with the local tether: leader carries state and
// every other site is disconnected.
func Entries(positions map[shared.SiteID]shared.Position, leader shared.SiteID, state tether.State) map[shared.SiteID]Entry {
	out := make(map[shared.SiteID]Entry, len(positions))
	for site, pos := range positions {
		e := Entry{Position: pos, Tether: tether.Disconnected}
		if site == leader {
			e.Tether = state
		}
		out[site] = e
	}
	return out
}

// Broadcaster holds the last input and the summary derived from it.
type Broadcaster struct {
	mu sync.Mutex

	local   shared.SiteID
	active  shared.DocumentID
	entries map[shared.SiteID]Entry
	summary Summary

	didChange event.Emitter[Summary]
}

// New creates a broadcaster for the local site.
func New(local shared.SiteID) *Broadcaster {
	return &Broadcaster{local: local}
}

// Update replaces every site's entry.
func (b *Broadcaster) Update(entries map[shared.SiteID]Entry) {
	b.mu.Lock()
	b.entries = make(map[shared.SiteID]Entry, len(entries))
	for site, e := range entries {
		b.entries[site] = e
	}
	b.recomputeLocked()
}

// SetLocalSite changes which site is the viewer.
func (b *Broadcaster) SetLocalSite(site shared.SiteID) {
	b.mu.Lock()
	b.local = site
	b.recomputeLocked()
}

// SetActiveDocument changes the viewer's document. Empty means none.
func (b *Broadcaster) SetActiveDocument(doc shared.DocumentID) {
	b.mu.Lock()
	b.active = doc
	b.recomputeLocked()
}

// Summary returns the current summary.
func (b *Broadcaster) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// OnDidChange registers fn for summary changes.
func (b *Broadcaster) OnDidChange(fn func(Summary)) event.Subscription {
	return b.didChange.Subscribe(fn)
}

// recomputeLocked rebuilds the summary and unlocks, emitting when it changed.
func (b *Broadcaster) recomputeLocked() {
	next := classify(b.local, b.active, b.entries)
	changed := !next.equal(b.summary)
	b.summary = next
	b.mu.Unlock()

	if changed {
		b.didChange.Emit(next)
	}
}

func classify(local shared.SiteID, active shared.DocumentID, entries map[shared.SiteID]Entry) Summary {
	sites := make([]shared.SiteID, 0, len(entries))
	for site := range entries {
		if site != local {
			sites = append(sites, site)
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	s := Summary{Document: active}
	for _, site := range sites {
		e := entries[site]
		if active == "" || e.Position.Document != active {
			s.Elsewhere = append(s.Elsewhere, site)
			continue
		}
		s.Inside = append(s.Inside, SiteMarker{
			Site:      site,
			Point:     e.Position.Point,
			FullColor: e.Tether != tether.Retracted,
		})
	}
	return s
}
