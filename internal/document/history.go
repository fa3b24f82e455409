package document

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRevisionNotFound is returned when a requested revision has been
// evicted or never existed.
var ErrRevisionNotFound = errors.New("revision not found in history")

// DefaultHistoryDepth bounds how many snapshots a History retains.
const DefaultHistoryDepth = 100

// History retains a bounded run of buffer snapshots for
// restore-from-history updates. The oldest entry is discarded first
// when full.
type History struct {
	mu       sync.Mutex
	entries  []Snapshot
	capacity int
}

// NewHistory creates a history retaining up to depth snapshots.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{capacity: depth}
}

// Record appends a snapshot, discarding the oldest entry when full.
func (h *History) Record(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= h.capacity {
		n := copy(h.entries, h.entries[1:])
		h.entries = h.entries[:n]
	}
	h.entries = append(h.entries, snap)
}

// Restore returns the snapshot recorded at the given revision.
func (h *History) Restore(rev Revision) (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Revision() == rev {
			return h.entries[i], nil
		}
	}
	return Snapshot{}, fmt.Errorf("%w: %d", ErrRevisionNotFound, rev)
}

// Latest returns the most recent snapshot, if any.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Snapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns how many snapshots are retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// List returns the retained snapshots, oldest first.
func (h *History) List() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Snapshot, len(h.entries))
	copy(out, h.entries)
	return out
}

// Track records a snapshot of every change to buf. The returned
// function stops tracking.
func (h *History) Track(buf *Buffer) func() {
	return buf.OnChange(func(ch Change) {
		h.Record(Snapshot{content: ch.Content, revision: ch.Revision, taken: ch.At})
	})
}
