package shared

import (
	"context"
	"time"

	"github.com/dshills/tandem/internal/event"
)

// Document is one site's replica of a shared text document.
//
// Calls made by a site are applied to the shared state immediately. Changes
// made by other sites arrive through OnRemoteChanges, in the order the
// service accepted them.
type Document interface {
	// SiteID returns the local site.
	SiteID() SiteID

	// DocumentID returns the document's id.
	DocumentID() DocumentID

	// Text returns the current shared text.
	Text() string

	// ForwardChange submits a local edit expressed against the current text.
	ForwardChange(c Change) error

	// OnRemoteChanges registers fn for change batches made by other sites.
	OnRemoteChanges(fn func([]Change)) event.Subscription

	// Undo reverts the local site's most recent transaction. ok is false
	// when there is nothing to undo.
	Undo() (result HistoryResult, ok bool)

	// Redo reapplies the local site's most recently undone transaction.
	Redo() (result HistoryResult, ok bool)

	// CreateCheckpoint marks the current position in the local site's
	// history. markers are restored when the checkpoint is reverted.
	CreateCheckpoint(markers MarkerSet) Checkpoint

	// GetChangesSinceCheckpoint returns the local site's changes made since
	// cp, in application order. ok is false for an unknown checkpoint.
	GetChangesSinceCheckpoint(cp Checkpoint) (changes []Change, ok bool)

	// GroupChangesSinceCheckpoint folds the local site's transactions since
	// cp into one undo step.
	GroupChangesSinceCheckpoint(cp Checkpoint, opts GroupOptions) (changes []Change, ok bool)

	// RevertToCheckpoint undoes the local site's transactions since cp and
	// drops them from history. ok is false for an unknown checkpoint.
	RevertToCheckpoint(cp Checkpoint) (result HistoryResult, ok bool)

	// ApplyGroupingInterval merges the two newest local transactions when
	// they were made within interval of each other.
	ApplyGroupingInterval(interval time.Duration)

	// History returns at most maxEntries of the local site's newest undo
	// and redo entries.
	History(maxEntries int) HistorySnapshot

	// Dispose detaches the local site. Idempotent.
	Dispose()

	// OnDispose registers fn to run when the replica is disposed, either
	// locally or because the document went away.
	OnDispose(fn func()) event.Subscription
}

// CursorSet exchanges selection markers for one document.
type CursorSet interface {
	// PublishSelections replaces the local site's marker set.
	PublishSelections(markers MarkerSet) error

	// OnRemoteSelections registers fn for other sites' marker sets. Each
	// call carries a site's complete set.
	OnRemoteSelections(fn func(site SiteID, markers MarkerSet)) event.Subscription

	// RemoteSelections returns the marker set each other site last
	// published. Sites that withdrew their selections are omitted.
	RemoteSelections() map[SiteID]MarkerSet
}

// Portal is the local site's view of a session.
type Portal interface {
	// SiteID returns the local site.
	SiteID() SiteID

	// HostSiteID returns the site owning the shared documents.
	HostSiteID() SiteID

	// SiteIdentity describes a site. ok is false for unknown sites.
	SiteIdentity(site SiteID) (Identity, bool)

	// ActiveSiteIDs returns the connected sites in ascending order.
	ActiveSiteIDs() []SiteID

	// UpdatePosition publishes where the local site is looking.
	UpdatePosition(p Position)

	// Positions returns the last known position of every active site.
	Positions() map[SiteID]Position

	// OnDidChangePositions registers fn for position updates of any site.
	OnDidChangePositions(fn func(map[SiteID]Position)) event.Subscription
}

// Saver is implemented by documents whose owner can save on request.
type Saver interface {
	RequestSave(ctx context.Context) error
}

// Replica is a site's handle on one shared document, including the
// selections of every site viewing it.
type Replica interface {
	Document
	CursorSet
}

// Connection is the local site's link to a portal.
type Connection interface {
	Portal

	// PortalID identifies the portal.
	PortalID() string

	// ShareDocument publishes a document owned by the local site. save
	// handles save requests from other sites and may be nil.
	ShareDocument(id DocumentID, text string, save func(context.Context) error) error

	// OpenDocument joins the local site to a shared document.
	OpenDocument(id DocumentID) (Replica, error)

	// CloseDocument stops sharing a document owned by the local site.
	CloseDocument(id DocumentID) error

	// Leave disconnects the local site. Idempotent.
	Leave()
}
