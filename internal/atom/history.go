package atom

import (
	"context"
	"sort"
)

// HistoryEntry is one version in a field's history. Slot identifies
// which range key or collection position the version belongs to; empty
// for single-variant fields.
type HistoryEntry struct {
	Slot string
	Atom Atom
}

// HistoryPage is one page of newest-first history. Cursor resumes the
// walk; empty means the chain is exhausted.
type HistoryPage struct {
	Entries []HistoryEntry
	Cursor  string
}

// History walks a field's versions newest first, at most batchSize per
// page. Multi-slot fields interleave their per-slot prev chains by
// creation time. Pass an empty cursor to start; feed each page's Cursor
// back in to continue.
func (s *Store) History(ctx context.Context, fieldPath, cursor string) (HistoryPage, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return HistoryPage{}, err
	}
	return s.historyFor(ctx, ref, cursor)
}

// HistoryByRef is History addressed by reference id. Unlike History it
// also serves deleted references, so the audit trail of a removed field
// stays reachable.
func (s *Store) HistoryByRef(ctx context.Context, refUUID, cursor string) (HistoryPage, error) {
	ref, err := s.RefByUUID(ctx, refUUID)
	if err != nil {
		return HistoryPage{}, err
	}
	return s.historyFor(ctx, ref, cursor)
}

func (s *Store) historyFor(ctx context.Context, ref Ref, cursor string) (HistoryPage, error) {
	// Heads are the current atoms per slot, or the cursor atom's chain
	// when resuming. The cursor atom itself was already returned.
	heads, err := s.historyHeads(ctx, ref, cursor)
	if err != nil {
		return HistoryPage{}, err
	}

	var page HistoryPage
	for len(page.Entries) < s.batchSize && len(heads) > 0 {
		// Pop the newest head. Head count equals the slot count, which
		// stays small; a linear scan beats maintaining a heap here.
		sort.SliceStable(heads, func(i, j int) bool {
			return heads[i].Atom.CreatedAt.After(heads[j].Atom.CreatedAt)
		})
		next := heads[0]
		heads = heads[1:]

		page.Entries = append(page.Entries, next)

		if next.Atom.PrevUUID != "" {
			prev, err := s.AtomByUUID(ctx, next.Atom.PrevUUID)
			if err != nil {
				return HistoryPage{}, err
			}
			heads = append(heads, HistoryEntry{Slot: next.Slot, Atom: prev})
		}
	}

	if len(heads) > 0 && len(page.Entries) > 0 {
		page.Cursor = page.Entries[len(page.Entries)-1].Atom.UUID
	}
	return page, nil
}

// historyHeads seeds the merge walk. With no cursor, heads are the
// current slot atoms. With a cursor, the walk replays from the current
// atoms down to the cursor and resumes just past it.
func (s *Store) historyHeads(ctx context.Context, ref Ref, cursor string) ([]HistoryEntry, error) {
	entries, err := s.currentSlots(ctx, ref)
	if err != nil {
		return nil, err
	}

	heads := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		heads = append(heads, HistoryEntry{Slot: historySlot(ref, e), Atom: e.atom})
	}
	if cursor == "" {
		return heads, nil
	}

	// Replay the merge until the cursor atom surfaces, then the
	// remaining heads (with the cursor's prev swapped in) are the
	// resume point. History depth is bounded by write count per field.
	for len(heads) > 0 {
		sort.SliceStable(heads, func(i, j int) bool {
			return heads[i].Atom.CreatedAt.After(heads[j].Atom.CreatedAt)
		})
		next := heads[0]
		heads = heads[1:]

		if next.Atom.PrevUUID != "" {
			prev, err := s.AtomByUUID(ctx, next.Atom.PrevUUID)
			if err != nil {
				return nil, err
			}
			heads = append(heads, HistoryEntry{Slot: next.Slot, Atom: prev})
		}
		if next.Atom.UUID == cursor {
			return heads, nil
		}
	}
	return nil, nil
}

func historySlot(ref Ref, e slotEntry) string {
	if ref.Kind == KindCollection {
		return "" // positions are not stable identities across removals
	}
	return e.slot
}
