package renderer

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/tandem/internal/editor"
	"github.com/dshills/tandem/internal/engine/buffer"
)

// Options configures Render.
type Options struct {
	// Base styles undecorated text and empty cells.
	Base tcell.Style

	// HideLocalCursors skips drawing the editor's own cursors.
	HideLocalCursors bool
}

// Render draws the visible region of ed.
func Render(ed *editor.Editor, opts Options) *Frame {
	view := ed.Viewport()
	buf := ed.Buffer()
	f := NewFrame(view.Width(), view.Height(), opts.Base)

	top, bottom := view.VisibleLineRange()
	left := view.LeftColumn()
	lineCount := buf.LineCount()

	p := painter{
		base:        opts.Base,
		decorations: ed.Decorations(),
	}
	if !opts.HideLocalCursors {
		for _, m := range ed.SelectionLayer().Markers() {
			p.localHeads = append(p.localHeads, m.Head())
		}
	}

	for line := top; line <= bottom && line < lineCount; line++ {
		y := int(line - top)
		text := buf.LineText(line)

		col := 0
		g := uniseg.NewGraphemes(text)
		for g.Next() {
			start, _ := g.Positions()
			cluster, width := g.Str(), g.Width()
			if width < 1 {
				// Control characters such as tabs.
				cluster, width = " ", 1
			}
			pt := buffer.Point{Line: line, Column: uint32(start)}
			f.put(col-left, y, Cell{Text: cluster, Width: width, Style: p.styleAt(pt)})
			col += width
		}

		// A cursor at the end of the line is drawn on the blank after it.
		eol := buffer.Point{Line: line, Column: uint32(len(text))}
		if style, ok := p.cursorAt(eol); ok {
			f.restyle(col-left, y, style)
		}
	}
	return f
}

type painter struct {
	base        tcell.Style
	decorations []editor.Decoration
	localHeads  []buffer.Point
}

func (p *painter) styleAt(pt buffer.Point) tcell.Style {
	style := p.base
	for _, d := range p.decorations {
		if d.Tail && d.Range.Contains(pt) {
			style = d.Style
		}
	}
	if cursor, ok := p.cursorAt(pt); ok {
		style = cursor
	}
	return style
}

func (p *painter) cursorAt(pt buffer.Point) (tcell.Style, bool) {
	for _, head := range p.localHeads {
		if head == pt {
			return p.base.Reverse(true), true
		}
	}
	style, ok := p.base, false
	for _, d := range p.decorations {
		if d.Head == pt {
			style, ok = d.CursorStyle, true
		}
	}
	return style, ok
}
