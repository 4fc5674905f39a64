// Package tether decides whether a follower's viewport is pulled to a
// leader's cursor.
//
// A follower starts out Retracted: every leader move re-centers its view.
// Moving locally loosens the tether to Extended. The tether snaps back to
// Retracted when the leader leaves the follower's view after the follower
// has been idle for the disconnect window, and breaks (Disconnected) when
// the leader leaves the view while the follower is still moving.
package tether

import "github.com/dshills/tandem/internal/collab/shared"

// State is the follower's relationship to its leader.
type State uint8

const (
	// Disconnected means the follower moves freely and has no leader.
	Disconnected State = iota
	// Extended means the follower has moved away but still sees the
	// leader's cursor.
	Extended
	// Retracted means the follower's view tracks the leader.
	Retracted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Extended:
		return "extended"
	case Retracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// StateChange is emitted when the state or the leader changes. Leader is
// zero after a disconnect.
type StateChange struct {
	Old    State
	New    State
	Leader shared.SiteID
}
