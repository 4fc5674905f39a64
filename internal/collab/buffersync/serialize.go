package buffersync

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
)

// snapshotVersion is written into every serialized snapshot.
const snapshotVersion = 1

// ErrInvalidSnapshot is returned for data Deserialize cannot read.
var ErrInvalidSnapshot = errors.New("invalid buffer snapshot")

// Snapshot is the persisted state of a binding: the text and the local
// site's history at the time it was taken.
type Snapshot struct {
	Site     shared.SiteID
	Document shared.DocumentID
	Text     string
	History  buffer.HistorySnapshot
}

// Serialize encodes the buffer text and the local site's shared history as
// JSON.
func (s *BufferSync) Serialize() ([]byte, error) {
	s.mu.Lock()
	disposed, doc := s.disposed, s.doc
	s.mu.Unlock()
	if disposed {
		return nil, ErrDisposed
	}

	snap := Snapshot{Text: s.buf.Text()}
	if doc != nil {
		snap.Site = doc.SiteID()
		snap.Document = doc.DocumentID()
		snap.History = toLocalSnapshot(doc.History(s.opts.MaxHistoryEntries))
	} else {
		snap.History = s.buf.HistorySnapshot(s.opts.MaxHistoryEntries)
	}
	return snap.Marshal()
}

// Marshal encodes the snapshot as JSON.
func (snap Snapshot) Marshal() ([]byte, error) {
	out := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}

	set("version", snapshotVersion)
	set("site", int(snap.Site))
	set("document", string(snap.Document))
	set("text", snap.Text)
	for _, stack := range []struct {
		name    string
		entries []buffer.HistoryEntry
	}{
		{"undo", snap.History.Undo},
		{"redo", snap.History.Redo},
	} {
		base := "history." + stack.name
		set(base, []any{})
		for _, e := range stack.entries {
			set(base+".-1", entryJSON(e))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}
	return out, nil
}

type changeJSON struct {
	Start   [2]uint32 `json:"start"`
	End     [2]uint32 `json:"end"`
	OldText string    `json:"oldText"`
	NewText string    `json:"newText"`
}

type historyEntryJSON struct {
	Timestamp int64        `json:"timestamp"`
	Changes   []changeJSON `json:"changes"`
}

func entryJSON(e buffer.HistoryEntry) historyEntryJSON {
	out := historyEntryJSON{
		Timestamp: e.Timestamp.UnixMilli(),
		Changes:   make([]changeJSON, len(e.Changes)),
	}
	for i, c := range e.Changes {
		out.Changes[i] = changeJSON{
			Start:   [2]uint32{c.OldRange.Start.Line, c.OldRange.Start.Column},
			End:     [2]uint32{c.OldRange.End.Line, c.OldRange.End.Column},
			OldText: c.OldText,
			NewText: c.NewText,
		}
	}
	return out
}

// Deserialize decodes data written by Serialize.
func Deserialize(data []byte) (Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return Snapshot{}, ErrInvalidSnapshot
	}
	root := gjson.ParseBytes(data)
	if v := root.Get("version").Int(); v != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: version %d", ErrInvalidSnapshot, v)
	}
	text := root.Get("text")
	if !text.Exists() {
		return Snapshot{}, fmt.Errorf("%w: missing text", ErrInvalidSnapshot)
	}

	snap := Snapshot{
		Site:     shared.SiteID(root.Get("site").Int()),
		Document: shared.DocumentID(root.Get("document").String()),
		Text:     text.String(),
	}
	snap.History.Undo = readEntries(root.Get("history.undo"))
	snap.History.Redo = readEntries(root.Get("history.redo"))
	return snap, nil
}

func readEntries(stack gjson.Result) []buffer.HistoryEntry {
	var out []buffer.HistoryEntry
	stack.ForEach(func(_, e gjson.Result) bool {
		entry := buffer.HistoryEntry{Timestamp: time.UnixMilli(e.Get("timestamp").Int())}
		e.Get("changes").ForEach(func(_, c gjson.Result) bool {
			start := readPoint(c.Get("start"))
			newText := c.Get("newText").String()
			entry.Changes = append(entry.Changes, buffer.Change{
				OldRange: buffer.Range{Start: start, End: readPoint(c.Get("end"))},
				NewRange: buffer.Range{Start: start, End: buffer.Extent(start, newText)},
				OldText:  c.Get("oldText").String(),
				NewText:  newText,
				Origin:   buffer.OriginLocal,
			})
			return true
		})
		out = append(out, entry)
		return true
	})
	return out
}

func readPoint(r gjson.Result) buffer.Point {
	a := r.Array()
	if len(a) != 2 {
		return buffer.Point{}
	}
	return buffer.Point{Line: uint32(a[0].Uint()), Column: uint32(a[1].Uint())}
}

// Restore installs the snapshot's history as buf's default history. The
// history only applies to the text it was taken from, so a buffer whose
// text differs is left untouched and false is returned.
func (snap Snapshot) Restore(buf *buffer.Buffer) bool {
	if buf.Text() != snap.Text {
		return false
	}
	buf.RestoreDefaultHistory(snap.History)
	return true
}
