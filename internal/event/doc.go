// Package event provides the typed, synchronous notification primitives used
// between the local buffer/editor model and the collaboration bindings.
//
// Delivery is synchronous on the emitting goroutine, in subscription order.
// This matches the single cooperative event thread the editor runs on: a
// handler observes the world exactly as the emitter left it, and a batch of
// notifications from one operation is fully delivered before the next
// operation starts.
//
// Basic usage:
//
//	var changed event.Emitter[Change]
//	sub := changed.Subscribe(func(c Change) { ... })
//	changed.Emit(Change{...})
//	sub.Cancel()
//
// Components that hold several subscriptions collect them in a Group and
// cancel them together on dispose.
package event
