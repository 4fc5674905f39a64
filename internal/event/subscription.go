package event

import (
	"sync"
	"sync/atomic"
)

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStateCancelled means the subscription has been permanently cancelled.
	SubscriptionStateCancelled
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Subscription represents an active event subscription.
type Subscription interface {
	// State returns the current subscription state.
	State() SubscriptionState

	// IsActive returns true if the subscription can receive events.
	IsActive() bool

	// Cancel permanently cancels the subscription. Safe to call repeatedly.
	Cancel()
}

// subscription is the internal implementation of Subscription.
type subscription struct {
	state    atomic.Int32
	onCancel func()
}

func newSubscription(onCancel func()) *subscription {
	s := &subscription{onCancel: onCancel}
	s.state.Store(int32(SubscriptionStateActive))
	return s
}

func (s *subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *subscription) IsActive() bool {
	return s.State() == SubscriptionStateActive
}

func (s *subscription) Cancel() {
	if s.state.Swap(int32(SubscriptionStateCancelled)) == int32(SubscriptionStateCancelled) {
		return
	}
	if s.onCancel != nil {
		s.onCancel()
	}
}

// Group collects subscriptions so they can be cancelled together.
// The zero value is ready to use.
type Group struct {
	mu   sync.Mutex
	subs []Subscription
	done bool
}

// Add adds subscriptions to the group. Adding to a cancelled group cancels
// the subscriptions immediately.
func (g *Group) Add(subs ...Subscription) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		for _, s := range subs {
			s.Cancel()
		}
		return
	}
	g.subs = append(g.subs, subs...)
	g.mu.Unlock()
}

// Len returns the number of subscriptions held.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Cancel cancels every subscription in the group. Idempotent.
func (g *Group) Cancel() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.done = true
	g.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}
