package memdoc

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/tandem/internal/collab/shared"
)

func TestRoomSites(t *testing.T) {
	room := NewRoom(nil, nil)
	host := room.Join("host")
	guest := room.Join("guest")

	if host.SiteID() != shared.HostSiteID || guest.SiteID() != 2 {
		t.Fatalf("sites = %d, %d", host.SiteID(), guest.SiteID())
	}
	if id, ok := guest.SiteIdentity(1); !ok || id.DisplayName != "host" {
		t.Errorf("SiteIdentity(1) = %+v, %v", id, ok)
	}
	if got := host.ActiveSiteIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("ActiveSiteIDs() = %v", got)
	}
	if host.PortalID() != room.ID() {
		t.Error("peer portal id should match room id")
	}
}

func TestRoomPositions(t *testing.T) {
	room := NewRoom(nil, nil)
	host := room.Join("host")
	guest := room.Join("guest")

	var last map[shared.SiteID]shared.Position
	calls := 0
	guest.OnDidChangePositions(func(p map[shared.SiteID]shared.Position) {
		last = p
		calls++
	})

	pos := shared.Position{Document: "a.txt", Point: pt(3, 1)}
	host.UpdatePosition(pos)
	host.UpdatePosition(pos)

	if calls != 1 || last[1] != pos {
		t.Errorf("calls = %d, positions = %v", calls, last)
	}

	host.Leave()
	if _, ok := guest.Positions()[1]; ok {
		t.Error("departed host still has a position")
	}
	if got := guest.ActiveSiteIDs(); len(got) != 1 || got[0] != 2 {
		t.Errorf("ActiveSiteIDs() = %v", got)
	}
}

func TestHostLeaveClosesDocuments(t *testing.T) {
	room := NewRoom(nil, nil)
	host := room.Join("host")
	guest := room.Join("guest")

	doc, err := room.CreateDocument("a.txt", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := room.CreateDocument("a.txt", ""); err == nil {
		t.Error("sharing a document twice should fail")
	}

	rep, err := guest.Open("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := guest.Open("missing.txt"); err == nil {
		t.Error("opening an unknown document should fail")
	}

	host.Leave()
	host.Leave()
	if !doc.IsClosed() || !rep.IsDisposed() {
		t.Error("host leaving should close documents")
	}
	if _, ok := room.Document("a.txt"); ok {
		t.Error("closed document still listed")
	}
}

func TestGuestLeaveDisposesOwnReplica(t *testing.T) {
	room := NewRoom(nil, nil)
	host := room.Join("host")
	guest := room.Join("guest")

	doc, _ := room.CreateDocument("a.txt", "abc")
	hostRep, _ := host.Open("a.txt")
	guestRep, _ := guest.Open("a.txt")

	guest.Leave()
	if !guestRep.IsDisposed() || hostRep.IsDisposed() || doc.IsClosed() {
		t.Error("guest leaving should only dispose its replica")
	}
	if got := doc.Sites(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Sites() = %v", got)
	}
}

func TestShareAndCloseDocument(t *testing.T) {
	room := NewRoom(nil, nil)
	host := room.Join("host")
	guest := room.Join("guest")

	saves := 0
	save := func(context.Context) error {
		saves++
		return nil
	}
	if err := host.ShareDocument("a.txt", "abc", save); err != nil {
		t.Fatalf("ShareDocument: %v", err)
	}
	if err := host.ShareDocument("a.txt", "abc", nil); err == nil {
		t.Error("sharing a document twice should fail")
	}

	rep, err := guest.OpenDocument("a.txt")
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	if rep.Text() != "abc" {
		t.Errorf("Text() = %q", rep.Text())
	}
	if err := rep.(*Replica).RequestSave(context.Background()); err != nil || saves != 1 {
		t.Errorf("RequestSave err = %v, saves = %d", err, saves)
	}

	if err := guest.CloseDocument("a.txt"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("guest CloseDocument err = %v", err)
	}
	if err := host.CloseDocument("a.txt"); err != nil {
		t.Fatalf("CloseDocument: %v", err)
	}
	if !rep.(*Replica).IsDisposed() {
		t.Error("replica survived closing its document")
	}
	if _, err := guest.OpenDocument("a.txt"); !shared.IsGone(err) {
		t.Errorf("OpenDocument after close err = %v", err)
	}
}
