// Package session ties the collaboration bindings of one site together.
//
// A Session owns the site's connection to a portal, its editor workspace
// and its configuration. It binds every shared editor with a BufferSync and
// a SelectionSync, disposes both when the document goes away, and feeds
// portal position updates to the tether controller and the position
// broadcaster.
//
// A host shares its editors:
//
//	s, _ := session.New(peer, workspace, session.Options{Config: cfg})
//	b, err := s.Share(ed)
//
// A guest opens them by document id, or follows another site:
//
//	ed, err := s.Open("main.go")
//	s.Follow(hostSite)
//
// Session methods are meant to be called from the editor's event thread.
package session
