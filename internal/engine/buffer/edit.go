package buffer

import "fmt"

// Origin tags every buffer mutation with its provenance.
type Origin uint8

const (
	// OriginLocal is an edit made by the local user. Only these are
	// recorded in history and relayed to collaborators.
	OriginLocal Origin = iota
	// OriginRemote is a change replayed from another site.
	OriginRemote
	// OriginHistory is a change produced by undo, redo or a checkpoint
	// revert. It is already part of whichever history produced it.
	OriginHistory
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Change describes one applied text replacement.
type Change struct {
	OldRange Range  // Range replaced, in pre-change coordinates
	NewRange Range  // Range of the inserted text, in post-change coordinates
	OldText  string // Text that was removed
	NewText  string // Text that was inserted
	Origin   Origin
}

// String returns a human-readable representation of the change.
func (c Change) String() string {
	switch {
	case c.OldRange.IsEmpty():
		return fmt.Sprintf("Insert(%s, %q)", c.OldRange.Start, c.NewText)
	case c.NewText == "":
		return fmt.Sprintf("Delete%s", c.OldRange)
	default:
		return fmt.Sprintf("Replace%s with %q", c.OldRange, c.NewText)
	}
}

// Invert returns the change that undoes c.
func (c Change) Invert() Change {
	return Change{
		OldRange: c.NewRange,
		NewRange: c.OldRange,
		OldText:  c.NewText,
		NewText:  c.OldText,
		Origin:   c.Origin,
	}
}

// IsNoOp returns true if the change removes and inserts nothing.
func (c Change) IsNoOp() bool {
	return c.OldRange.IsEmpty() && c.NewText == ""
}

// Extent returns the point reached by starting at start and writing text.
func Extent(start Point, text string) Point {
	p := start
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			p.Line++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}
