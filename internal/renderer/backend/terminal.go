// Package backend puts rendered frames on a terminal.
package backend

import (
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/tandem/internal/renderer"
)

// Terminal draws frames through a tcell screen.
type Terminal struct {
	mu     sync.Mutex
	screen tcell.Screen
}

// NewTerminal creates a terminal backend on the controlling terminal.
func NewTerminal() (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return &Terminal{screen: screen}, nil
}

// NewTerminalWithScreen wraps an existing screen, e.g. a simulation screen.
func NewTerminalWithScreen(screen tcell.Screen) *Terminal {
	return &Terminal{screen: screen}
}

// Init takes over the terminal.
func (t *Terminal) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.screen.Init(); err != nil {
		return err
	}
	t.screen.EnablePaste()
	return nil
}

// Shutdown restores the terminal.
func (t *Terminal) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Fini()
}

// Size returns the screen size in cells.
func (t *Terminal) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.screen.Size()
}

// Draw copies f to the top left of the screen and writes status on the row
// below it. Nothing is shown until Show is called.
func (t *Terminal) Draw(f *renderer.Frame, status string, statusStyle tcell.Style) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Clear()
	for y := 0; y < f.Height(); y++ {
		for x := 0; x < f.Width(); x++ {
			c := f.Cell(x, y)
			if c.IsContinuation() {
				continue
			}
			runes := []rune(c.Text)
			if len(runes) == 0 {
				runes = []rune{' '}
			}
			t.screen.SetContent(x, y, runes[0], runes[1:], c.Style)
		}
	}

	width, _ := t.screen.Size()
	x := 0
	for _, r := range status {
		if x >= width {
			break
		}
		t.screen.SetContent(x, f.Height(), r, nil, statusStyle)
		x++
	}
	for ; x < width; x++ {
		t.screen.SetContent(x, f.Height(), ' ', nil, statusStyle)
	}
}

// Show flushes pending drawing to the screen.
func (t *Terminal) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Show()
}

// WaitKey blocks until a key is pressed. It returns nil once the screen
// has been shut down. Resize events resync the screen.
func (t *Terminal) WaitKey() *tcell.EventKey {
	for {
		switch ev := t.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			return ev
		case *tcell.EventResize:
			t.mu.Lock()
			t.screen.Sync()
			t.mu.Unlock()
		}
	}
}
