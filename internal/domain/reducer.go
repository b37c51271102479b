package domain

import "github.com/google/uuid"

// Reduce applies one event to a newest-first list and returns the new list.
// The input slice is never modified.
//
// added: the payload is prepended and any other row with the same id removed.
// deleted: the row with the payload id is removed.
// Events without an id, or of unknown kind, leave the list unchanged.
func Reduce(list []Bookmark, ev Event) []Bookmark {
	id := ev.Payload.ID
	if id == uuid.Nil {
		return list
	}

	switch ev.Kind {
	case EventAdded:
		out := make([]Bookmark, 0, len(list)+1)
		out = append(out, ev.Payload.WithDefaults())
		for _, b := range list {
			if b.ID != id {
				out = append(out, b)
			}
		}
		return out
	case EventDeleted:
		out := make([]Bookmark, 0, len(list))
		for _, b := range list {
			if b.ID != id {
				out = append(out, b)
			}
		}
		return out
	default:
		return list
	}
}

// Timeline is one session's view of an owner's bookmarks.
// It remembers the last sequence applied per id so that a late, older event
// (an add delivered after its own delete) cannot resurrect a row.
// Not safe for concurrent use.
type Timeline struct {
	items []Bookmark
	seen  map[uuid.UUID]int64
}

// NewTimeline seeds a timeline with a newest-first snapshot.
func NewTimeline(snapshot []Bookmark) *Timeline {
	items := make([]Bookmark, 0, len(snapshot))
	for _, b := range snapshot {
		items = append(items, b.WithDefaults())
	}
	return &Timeline{items: items, seen: make(map[uuid.UUID]int64)}
}

// Apply reconciles one event and reports whether it changed anything the
// session should hear about. Stale events return false.
func (t *Timeline) Apply(ev Event) bool {
	id := ev.Payload.ID
	if id == uuid.Nil {
		return false
	}
	if ev.Seq > 0 {
		if last, ok := t.seen[id]; ok && ev.Seq <= last {
			return false
		}
		t.seen[id] = ev.Seq
	}
	t.items = Reduce(t.items, ev)
	return true
}

// Items returns a copy of the current rows, newest first.
func (t *Timeline) Items() []Bookmark {
	out := make([]Bookmark, len(t.items))
	copy(out, t.items)
	return out
}

// Contains reports whether id is currently visible.
func (t *Timeline) Contains(id uuid.UUID) bool {
	for _, b := range t.items {
		if b.ID == id {
			return true
		}
	}
	return false
}
