// Package viewport tracks the visible region of an editor and answers
// whether a buffer position is currently on screen.
package viewport

import (
	"sync"

	"github.com/rivo/uniseg"

	"github.com/dshills/tandem/internal/event"
)

// ScrollOrigin tells observers who moved the viewport.
type ScrollOrigin uint8

const (
	// ScrollUser is a scroll requested by the local user.
	ScrollUser ScrollOrigin = iota
	// ScrollProgrammatic is a scroll performed on the user's behalf,
	// e.g. following a collaborator.
	ScrollProgrammatic
)

// String returns the string representation of the origin.
func (o ScrollOrigin) String() string {
	switch o {
	case ScrollUser:
		return "user"
	case ScrollProgrammatic:
		return "programmatic"
	default:
		return "unknown"
	}
}

// ScrollEvent describes a viewport movement.
type ScrollEvent struct {
	OldTopLine    uint32
	NewTopLine    uint32
	OldLeftColumn int
	NewLeftColumn int
	Origin        ScrollOrigin
}

// Viewport represents the visible portion of the buffer.
type Viewport struct {
	mu sync.RWMutex

	// Position in buffer (first visible line, first visible display column)
	topLine    uint32
	leftColumn int

	// Size in screen cells
	width  int
	height int

	// Buffer size limit (line count); 0 means unbounded
	maxLine uint32

	didScroll event.Emitter[ScrollEvent]
}

// NewViewport creates a viewport with the given size.
// Width and height are clamped to a minimum of 1 to prevent underflow.
func NewViewport(width, height int) *Viewport {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Viewport{
		width:  width,
		height: height,
	}
}

// Width returns the viewport width.
func (v *Viewport) Width() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.width
}

// Height returns the viewport height.
func (v *Viewport) Height() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.height
}

// TopLine returns the first visible line.
func (v *Viewport) TopLine() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.topLine
}

// LeftColumn returns the first visible display column.
func (v *Viewport) LeftColumn() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.leftColumn
}

// BottomLine returns the last visible line.
func (v *Viewport) BottomLine() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.bottomLine()
}

func (v *Viewport) bottomLine() uint32 {
	bottom := v.topLine + uint32(v.height) - 1
	if v.maxLine > 0 && bottom > v.maxLine-1 {
		bottom = v.maxLine - 1
	}
	if bottom < v.topLine {
		return v.topLine
	}
	return bottom
}

// VisibleLineRange returns the range of visible buffer lines, inclusive.
func (v *Viewport) VisibleLineRange() (start, end uint32) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.topLine, v.bottomLine()
}

// Resize updates the viewport size.
func (v *Viewport) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	v.width = width
	v.height = height
}

// SetMaxLine sets the number of lines in the buffer.
func (v *Viewport) SetMaxLine(maxLine uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxLine = maxLine
	if v.maxLine > 0 && v.topLine >= v.maxLine {
		v.topLine = v.maxLine - 1
	}
}

// IsLineVisible returns true if the line is within the viewport.
func (v *Viewport) IsLineVisible(line uint32) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return line >= v.topLine && line <= v.bottomLine()
}

// IsPositionVisible reports whether byte column col of a line whose text is
// lineText is on screen. Columns are compared in display cells, so wide
// and combined characters are measured the way they are drawn.
func (v *Viewport) IsPositionVisible(line uint32, lineText string, col uint32) bool {
	cell := DisplayColumn(lineText, col)
	v.mu.RLock()
	defer v.mu.RUnlock()
	return line >= v.topLine && line <= v.bottomLine() &&
		cell >= v.leftColumn && cell < v.leftColumn+v.width
}

// DisplayColumn returns the display width of the first col bytes of lineText.
func DisplayColumn(lineText string, col uint32) int {
	if int(col) > len(lineText) {
		return uniseg.StringWidth(lineText) + int(col) - len(lineText)
	}
	return uniseg.StringWidth(lineText[:col])
}

// ScrollTo shows line at the top of the viewport.
func (v *Viewport) ScrollTo(line uint32, origin ScrollOrigin) {
	v.mu.Lock()
	ev := v.moveLocked(v.clampTopLocked(line), v.leftColumn, origin)
	v.mu.Unlock()
	v.emit(ev)
}

// ScrollBy scrolls by a delta number of lines.
func (v *Viewport) ScrollBy(deltaLines int, origin ScrollOrigin) {
	v.mu.Lock()
	newTop := int64(v.topLine) + int64(deltaLines)
	if newTop < 0 {
		newTop = 0
	}
	ev := v.moveLocked(v.clampTopLocked(uint32(newTop)), v.leftColumn, origin)
	v.mu.Unlock()
	v.emit(ev)
}

// CenterOn centers the viewport on a line and scrolls horizontally so the
// given display column is visible.
func (v *Viewport) CenterOn(line uint32, displayCol int, origin ScrollOrigin) {
	v.mu.Lock()
	halfHeight := uint32(v.height / 2)
	var top uint32
	if line >= halfHeight {
		top = line - halfHeight
	}
	if v.maxLine > 0 && v.maxLine > uint32(v.height) && top > v.maxLine-uint32(v.height) {
		top = v.maxLine - uint32(v.height)
	}

	left := v.leftColumn
	if displayCol < left || displayCol >= left+v.width {
		left = displayCol - v.width/2
		if left < 0 {
			left = 0
		}
	}

	ev := v.moveLocked(top, left, origin)
	v.mu.Unlock()
	v.emit(ev)
}

// OnDidScroll registers fn to be called after the viewport moves.
func (v *Viewport) OnDidScroll(fn func(ScrollEvent)) event.Subscription {
	return v.didScroll.Subscribe(fn)
}

func (v *Viewport) clampTopLocked(line uint32) uint32 {
	if v.maxLine > 0 && line >= v.maxLine {
		return v.maxLine - 1
	}
	return line
}

func (v *Viewport) moveLocked(top uint32, left int, origin ScrollOrigin) *ScrollEvent {
	if top == v.topLine && left == v.leftColumn {
		return nil
	}
	ev := &ScrollEvent{
		OldTopLine:    v.topLine,
		NewTopLine:    top,
		OldLeftColumn: v.leftColumn,
		NewLeftColumn: left,
		Origin:        origin,
	}
	v.topLine = top
	v.leftColumn = left
	return ev
}

func (v *Viewport) emit(ev *ScrollEvent) {
	if ev != nil {
		v.didScroll.Emit(*ev)
	}
}
