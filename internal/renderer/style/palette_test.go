package style

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPaletteCyclesBySite(t *testing.T) {
	p := MustDefaultPalette()
	n := p.Len()

	if p.Hex(1) != p.Hex(1+n) {
		t.Errorf("site 1 and site %d should share a color", 1+n)
	}
	if p.Hex(1) == p.Hex(2) {
		t.Error("adjacent sites should differ")
	}
	if p.Hex(0) != p.Hex(n) {
		t.Errorf("site 0 should wrap to the last entry")
	}
	if p.Hex(1) != DefaultColors[0] {
		t.Errorf("Hex(1) = %s, want %s", p.Hex(1), DefaultColors[0])
	}
}

func TestNewPaletteRejectsBadHex(t *testing.T) {
	if _, err := NewPalette([]string{"#zzzzzz"}, ""); err == nil {
		t.Error("expected error for invalid color")
	}
	if _, err := NewPalette(nil, "nope"); err == nil {
		t.Error("expected error for invalid background")
	}
}

func TestStylesAreDeterministic(t *testing.T) {
	p, err := NewPalette([]string{"#ff0000", "#0000ff"}, "#000000")
	if err != nil {
		t.Fatal(err)
	}

	if p.SelectionStyle(1) != p.SelectionStyle(3) {
		t.Error("selection style should be keyed by site color")
	}
	if p.CursorStyle(2, true) == p.CursorStyle(2, false) {
		t.Error("dimmed cursor should differ from full color cursor")
	}

	_, bg, _ := p.CursorStyle(1, true).Decompose()
	if bg != tcell.NewRGBColor(255, 0, 0) {
		t.Errorf("full cursor background = %v", bg)
	}
}
