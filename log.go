package richcrdt

import "sort"

// OpLog is the append/replace-only mapping OpId -> Action described in
// spec.md §3. An incoming op with an id already present replaces the
// prior entry (used for undo-counter updates); re-submitting identical
// content is idempotent by construction since the replacement is
// value-equal.
type OpLog struct {
	entries map[OpId]Action
}

// NewOpLog returns an empty log.
func NewOpLog() *OpLog {
	return &OpLog{entries: make(map[OpId]Action)}
}

// Put inserts or replaces the action at id.
func (l *OpLog) Put(id OpId, action Action) {
	l.entries[id] = action
}

// Get returns the action at id, if present.
func (l *OpLog) Get(id OpId) (Action, bool) {
	a, ok := l.entries[id]
	return a, ok
}

// Has reports whether id is present in the log.
func (l *OpLog) Has(id OpId) bool {
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of entries in the log.
func (l *OpLog) Len() int { return len(l.entries) }

// Max returns the greatest OpId in the log and true, or the zero value
// and false if the log is empty.
func (l *OpLog) Max() (OpId, bool) {
	var max OpId
	found := false
	for id := range l.entries {
		if !found || max.Less(id) {
			max = id
			found = true
		}
	}
	return max, found
}

// OrderedEntry pairs an id with its action for ascending iteration.
type OrderedEntry struct {
	ID     OpId
	Action Action
}

// Ordered returns every entry in ascending OpId order.
func (l *OpLog) Ordered() []OrderedEntry {
	out := make([]OrderedEntry, 0, len(l.entries))
	for id, a := range l.entries {
		out = append(out, OrderedEntry{ID: id, Action: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}
