package bzperi

import "sync"

// UpdateEntry is one queued characteristic/descriptor change notification
// (spec.md §3.1).
type UpdateEntry struct {
	Path      ObjectPath
	Interface string
}

// Encode renders the entry as "<path>|<interface>", the wire format of
// pop_update (spec.md §4.E/§6.2).
func (e UpdateEntry) Encode() string {
	return string(e.Path) + "|" + e.Interface
}

// UpdateQueue is the MPSC deque from spec.md §4.E: foreign threads push to
// the front, the single dispatcher thread pops from the back. A plain
// mutex-guarded slice is sufficient at the sizes involved (queue depth is
// bounded by in-flight notification bursts, not by device count).
type UpdateQueue struct {
	mu      sync.Mutex
	entries []UpdateEntry
}

// NewUpdateQueue returns an empty queue.
func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{}
}

// PushFront enqueues entry. Always succeeds (spec.md §4.E).
func (q *UpdateQueue) PushFront(entry UpdateEntry) {
	q.mu.Lock()
	q.entries = append([]UpdateEntry{entry}, q.entries...)
	q.mu.Unlock()
}

// PopBack removes and returns the oldest entry (the back of the deque),
// along with its wire encoding. ok is false if the queue is empty.
func (q *UpdateQueue) PopBack() (entry UpdateEntry, encoded string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	if n == 0 {
		return UpdateEntry{}, "", false
	}
	entry = q.entries[n-1]
	q.entries = q.entries[:n-1]
	return entry, entry.Encode(), true
}

// PeekBack returns the oldest entry without removing it, for "pop with
// keep" style callers that decide afterward whether to remove it
// (spec.md §3.3).
func (q *UpdateQueue) PeekBack() (entry UpdateEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	if n == 0 {
		return UpdateEntry{}, false
	}
	return q.entries[n-1], true
}

// IsEmpty reports whether the queue currently holds no entries.
func (q *UpdateQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// Size returns the current queue depth.
func (q *UpdateQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear empties the queue.
func (q *UpdateQueue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}
