// Package style assigns each collaborating site a stable color and turns it
// into terminal styles for remote cursors and selections.
package style

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultColors is the palette cycled through by site id.
var DefaultColors = []string{
	"#e06c75", // red
	"#61afef", // blue
	"#98c379", // green
	"#c678dd", // purple
	"#e5c07b", // yellow
	"#56b6c2", // cyan
	"#d19a66", // orange
	"#be5046", // rust
}

// DefaultBackground is the editor background selections are blended onto.
const DefaultBackground = "#1e1e1e"

// Blend amounts toward the site color.
const (
	selectionBlend = 0.35
	dimmedBlend    = 0.45
)

// Palette maps site ids to colors deterministically.
type Palette struct {
	colors     []colorful.Color
	background colorful.Color
}

// NewPalette parses hex colors. An empty list selects DefaultColors and an
// empty background selects DefaultBackground.
func NewPalette(hexColors []string, background string) (*Palette, error) {
	if len(hexColors) == 0 {
		hexColors = DefaultColors
	}
	if background == "" {
		background = DefaultBackground
	}

	p := &Palette{colors: make([]colorful.Color, 0, len(hexColors))}
	for _, h := range hexColors {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("palette color %q: %w", h, err)
		}
		p.colors = append(p.colors, c)
	}

	bg, err := colorful.Hex(background)
	if err != nil {
		return nil, fmt.Errorf("palette background %q: %w", background, err)
	}
	p.background = bg
	return p, nil
}

// MustDefaultPalette returns the default palette.
func MustDefaultPalette() *Palette {
	p, err := NewPalette(nil, "")
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of palette entries.
func (p *Palette) Len() int {
	return len(p.colors)
}

// ColorFor returns the color for a site. Site 1 takes the first entry and
// ids cycle through the palette.
func (p *Palette) ColorFor(site int) colorful.Color {
	n := len(p.colors)
	idx := (site - 1) % n
	if idx < 0 {
		idx += n
	}
	return p.colors[idx]
}

// Hex returns the site color as a hex string.
func (p *Palette) Hex(site int) string {
	return p.ColorFor(site).Hex()
}

// SelectionStyle is the highlight drawn under a remote site's selection.
func (p *Palette) SelectionStyle(site int) tcell.Style {
	bg := p.background.BlendLab(p.ColorFor(site), selectionBlend).Clamped()
	return tcell.StyleDefault.Background(toTcell(bg))
}

// CursorStyle is the block drawn at a remote site's cursor. A dimmed cursor
// is used for sites whose indicator should not draw full attention.
func (p *Palette) CursorStyle(site int, fullColor bool) tcell.Style {
	c := p.ColorFor(site)
	if !fullColor {
		c = p.background.BlendLab(c, dimmedBlend).Clamped()
	}
	return tcell.StyleDefault.Background(toTcell(c)).Foreground(toTcell(p.background))
}

func toTcell(c colorful.Color) tcell.Color {
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}
