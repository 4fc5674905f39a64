package buffersync

import (
	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
)

func toShared(c buffer.Change) shared.Change {
	return shared.Change{
		OldStart: c.OldRange.Start,
		OldEnd:   c.OldRange.End,
		OldText:  c.OldText,
		NewText:  c.NewText,
	}
}

func toLocal(c shared.Change, origin buffer.Origin) buffer.Change {
	return buffer.Change{
		OldRange: buffer.Range{Start: c.OldStart, End: c.OldEnd},
		NewRange: buffer.Range{Start: c.OldStart, End: c.NewEnd()},
		OldText:  c.OldText,
		NewText:  c.NewText,
		Origin:   origin,
	}
}

func toLocalChanges(changes []shared.Change, origin buffer.Origin) []buffer.Change {
	if len(changes) == 0 {
		return nil
	}
	out := make([]buffer.Change, len(changes))
	for i, c := range changes {
		out[i] = toLocal(c, origin)
	}
	return out
}

func toLocalSnapshot(s shared.HistorySnapshot) buffer.HistorySnapshot {
	convert := func(entries []shared.HistoryEntry) []buffer.HistoryEntry {
		if len(entries) == 0 {
			return nil
		}
		out := make([]buffer.HistoryEntry, len(entries))
		for i, e := range entries {
			out[i] = buffer.HistoryEntry{
				Changes:   toLocalChanges(e.Changes, buffer.OriginLocal),
				Timestamp: e.Timestamp,
			}
		}
		return out
	}
	return buffer.HistorySnapshot{Undo: convert(s.Undo), Redo: convert(s.Redo)}
}

// selectionsFromMarkers converts a marker set into selections ordered by
// marker id and clipped to the buffer.
func selectionsFromMarkers(b *buffer.Buffer, markers shared.MarkerSet) []buffer.Selection {
	if len(markers) == 0 {
		return nil
	}
	out := make([]buffer.Selection, 0, len(markers))
	for _, id := range markers.IDs() {
		m := markers[id]
		out = append(out, buffer.Selection{
			Range:    b.ClipRange(buffer.Range{Start: m.Start, End: m.End}),
			Reversed: m.Reversed,
		})
	}
	return out
}

func markersFromSelections(sels []buffer.Selection) shared.MarkerSet {
	if sels == nil {
		return nil
	}
	out := make(shared.MarkerSet, len(sels))
	for i, s := range sels {
		out[i+1] = shared.MarkerRange{Start: s.Range.Start, End: s.Range.End, Reversed: s.Reversed}
	}
	return out
}
