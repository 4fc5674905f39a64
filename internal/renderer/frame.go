package renderer

import (
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Cell is one screen cell. A grapheme wider than one cell is stored in its
// first cell; the cells it covers after that are continuations.
type Cell struct {
	// Text is the grapheme cluster drawn in the cell. Empty for
	// continuation cells.
	Text  string
	Width int
	Style tcell.Style
}

// IsContinuation reports whether the cell is covered by a wide grapheme to
// its left.
func (c Cell) IsContinuation() bool {
	return c.Width == 0
}

func blankCell(style tcell.Style) Cell {
	return Cell{Text: " ", Width: 1, Style: style}
}

// Frame is a fixed-size grid of cells.
type Frame struct {
	width  int
	height int
	cells  []Cell
}

// NewFrame creates a frame of blank cells in style.
func NewFrame(width, height int, style tcell.Style) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	f := &Frame{width: width, height: height, cells: make([]Cell, width*height)}
	for i := range f.cells {
		f.cells[i] = blankCell(style)
	}
	return f
}

// Width returns the frame width in cells.
func (f *Frame) Width() int {
	return f.width
}

// Height returns the frame height in cells.
func (f *Frame) Height() int {
	return f.height
}

// Cell returns the cell at x, y. Out of range coordinates yield the zero
// Cell.
func (f *Frame) Cell(x, y int) Cell {
	if !f.inside(x, y) {
		return Cell{}
	}
	return f.cells[y*f.width+x]
}

// Row returns the text of row y without trailing blanks.
func (f *Frame) Row(y int) string {
	if y < 0 || y >= f.height {
		return ""
	}
	var b strings.Builder
	for _, c := range f.cells[y*f.width : (y+1)*f.width] {
		b.WriteString(c.Text)
	}
	return strings.TrimRight(b.String(), " ")
}

// String returns every row, newline separated.
func (f *Frame) String() string {
	rows := make([]string, f.height)
	for y := range rows {
		rows[y] = f.Row(y)
	}
	return strings.Join(rows, "\n")
}

func (f *Frame) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.width && y < f.height
}

// put stores c at x, y followed by its continuation cells. Cells that
// would be cut off by the frame edge are not drawn.
func (f *Frame) put(x, y int, c Cell) {
	if x < 0 || !f.inside(x+c.Width-1, y) || !f.inside(x, y) {
		return
	}
	f.cells[y*f.width+x] = c
	for i := 1; i < c.Width; i++ {
		f.cells[y*f.width+x+i] = Cell{Style: c.Style}
	}
}

// restyle changes the style of the cell at x, y.
func (f *Frame) restyle(x, y int, style tcell.Style) {
	if f.inside(x, y) {
		f.cells[y*f.width+x].Style = style
	}
}
