// Package history provides a buffer's default local undo/redo stack.
//
// A History is installed on a buffer through buffer.WithHistory and records
// every locally originated change. While a collaboration binding owns the
// buffer, the binding replaces it as history provider; when the binding is
// torn down the buffer rebuilds its default History from a snapshot, so
// edits made during the session stay undoable offline.
//
//	buf := buffer.NewBuffer(buffer.WithHistory(history.Factory(1000)))
//	buf.Insert(buffer.Point{}, "hello", buffer.OriginLocal)
//	buf.Undo() // removes "hello"
//
// # Grouping
//
// Changes recorded between BeginGroup and EndGroup form a single undo
// step. buffer.Transact does this automatically:
//
//	buf.Transact(func() {
//	    buf.Insert(p1, "a", buffer.OriginLocal)
//	    buf.Insert(p2, "b", buffer.OriginLocal)
//	})
//	buf.Undo() // removes both
package history
