package config

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Change describes a setting whose value changed on reload.
type Change struct {
	// Path is the dotted setting path.
	Path string
	Old  any
	New  any
}

// Observer is called for each change.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type observerEntry struct {
	id       uint64
	path     string
	observer Observer
}

// Notifier delivers configuration changes synchronously, in subscription
// order.
type Notifier struct {
	mu        sync.RWMutex
	observers []observerEntry
	nextID    uint64
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.SubscribePath("", observer)
}

// SubscribePath registers an observer for one setting or a section.
// Subscribing to "tether" receives changes to "tether.disconnect_window".
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers = append(n.observers, observerEntry{id: id, path: path, observer: observer})
	return &Subscription{id: id, notifier: n}
}

// Notify sends change to every matching observer.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	var matched []Observer
	for _, e := range n.observers {
		if e.path == "" || e.path == change.Path || isParentPath(e.path, change.Path) {
			matched = append(matched, e.observer)
		}
	}
	n.mu.RUnlock()

	for _, obs := range matched {
		obs(change)
	}
}

// Len returns the number of subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.observers {
		if e.id == id {
			n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
			return
		}
	}
}

// isParentPath reports whether parent is a section containing child.
func isParentPath(parent, child string) bool {
	return len(child) > len(parent) && strings.HasPrefix(child, parent) && child[len(parent)] == '.'
}

// diff returns a change for every setting that differs, ordered by path.
func diff(old, next Config) []Change {
	before, after := old.settings(), next.settings()
	paths := make([]string, 0, len(after))
	for p := range after {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changes []Change
	for _, p := range paths {
		if !equalSetting(before[p], after[p]) {
			changes = append(changes, Change{Path: p, Old: before[p], New: after[p]})
		}
	}
	return changes
}

func equalSetting(a, b any) bool {
	if as, ok := a.([]string); ok {
		bs, ok := b.([]string)
		return ok && slices.Equal(as, bs)
	}
	return a == b
}
