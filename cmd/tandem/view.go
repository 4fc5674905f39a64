package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/tandem/internal/collab/session"
	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
	"github.com/dshills/tandem/internal/renderer"
	"github.com/dshills/tandem/internal/renderer/backend"
)

// printView writes the guest's screen and status line to stdout.
func printView(guest *session.Session) error {
	ed, _ := guest.ActiveEditor()
	if ed == nil {
		return fmt.Errorf("guest has no active editor")
	}
	f := renderer.Render(ed, renderer.Options{Base: tcell.StyleDefault})
	fmt.Println(f.String())
	fmt.Println(renderer.StatusLine(guest.Positions().Summary(), renderer.SiteNames(guest.Connection())))
	return nil
}

// runTUI shows the guest's view in the terminal. The arrow keys move the
// host's cursor, PgUp and PgDn scroll the guest, f and u follow and
// unfollow the host, q quits.
func runTUI(host, guest *session.Session, hostEd *editor.Editor) error {
	term, err := backend.NewTerminal()
	if err != nil {
		return err
	}
	if err := term.Init(); err != nil {
		return err
	}
	defer term.Shutdown()

	names := renderer.SiteNames(guest.Connection())
	statusStyle := tcell.StyleDefault.Reverse(true)
	for {
		ed, _ := guest.ActiveEditor()
		if ed == nil {
			return fmt.Errorf("guest has no active editor")
		}
		w, h := term.Size()
		ed.Viewport().Resize(w, h-1)

		f := renderer.Render(ed, renderer.Options{Base: tcell.StyleDefault})
		status := fmt.Sprintf("%s  [%s]", renderer.StatusLine(guest.Positions().Summary(), names), guest.Tether().State())
		term.Draw(f, status, statusStyle)
		term.Show()

		ev := term.WaitKey()
		if ev == nil {
			return nil
		}
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return nil
		case tcell.KeyUp:
			moveHost(hostEd, -1)
		case tcell.KeyDown:
			moveHost(hostEd, 1)
		case tcell.KeyPgUp:
			ed.ScrollBy(-(h - 1))
		case tcell.KeyPgDn:
			ed.ScrollBy(h - 1)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return nil
			case 'f':
				guest.Follow(host.SiteID())
			case 'u':
				guest.Unfollow()
			}
		}
	}
}

func moveHost(ed *editor.Editor, delta int) {
	p := ed.CursorPosition()
	line := int(p.Line) + delta
	if line < 0 {
		line = 0
	}
	ed.SetCursorPosition(ed.Buffer().ClipPoint(buffer.Point{Line: uint32(line), Column: p.Column}))
}
