package document

import (
	"errors"
	"sync"
	"time"
)

// Errors returned by buffer operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
)

// Revision identifies one version of a buffer's content. Revisions
// increase monotonically per buffer with every applied change.
type Revision uint64

// Change describes one applied content update, delivered to OnChange
// listeners.
type Change struct {
	Content  string
	Revision Revision
	At       time.Time
}

// Listener receives buffer changes. Listeners run synchronously after
// the write completes, outside the buffer's lock.
type Listener func(Change)

type registration struct {
	id int
	fn Listener
}

// Buffer is a thread-safe text buffer shared between the human editor
// host, the analysis pipeline, and the update coordinator. The pipeline
// reads whole content; writers replace whole content or a byte range.
type Buffer struct {
	mu        sync.RWMutex
	content   string
	revision  Revision
	listeners []registration
	nextID    int
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewFromString creates a buffer with initial content at revision zero.
func NewFromString(s string) *Buffer {
	return &Buffer{content: s}
}

// Content returns the buffer's current content.
func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content
}

// Len returns the content length in bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.content)
}

// Revision returns the current revision.
func (b *Buffer) Revision() Revision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// Apply replaces the whole content and bumps the revision. notify
// controls whether change listeners fire. The error is always nil for
// an in-memory buffer; the signature matches what coordinator-side
// consumers write through.
func (b *Buffer) Apply(content string, notify bool) error {
	b.mu.Lock()
	b.content = content
	b.revision++
	change := Change{Content: content, Revision: b.revision, At: time.Now()}
	listeners := b.listenersLocked()
	b.mu.Unlock()

	if notify {
		for _, fn := range listeners {
			fn(change)
		}
	}
	return nil
}

// Replace edits the byte range [start, end), substituting text, and
// notifies listeners. Offsets must satisfy 0 <= start <= end <=
// Len().
func (b *Buffer) Replace(start, end int, text string) error {
	b.mu.Lock()
	if start < 0 || end > len(b.content) {
		b.mu.Unlock()
		return ErrOffsetOutOfRange
	}
	if start > end {
		b.mu.Unlock()
		return ErrRangeInvalid
	}
	b.content = b.content[:start] + text + b.content[end:]
	b.revision++
	change := Change{Content: b.content, Revision: b.revision, At: time.Now()}
	listeners := b.listenersLocked()
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
	return nil
}

// Snapshot returns a read-only view of the current content.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{content: b.content, revision: b.revision, taken: time.Now()}
}

// OnChange registers a listener for applied changes. The returned
// function removes it. Listeners fire in registration order.
func (b *Buffer) OnChange(fn Listener) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, registration{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, reg := range b.listeners {
			if reg.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// listenersLocked copies the listener list so it can be invoked after
// the lock is released.
func (b *Buffer) listenersLocked() []Listener {
	if len(b.listeners) == 0 {
		return nil
	}
	out := make([]Listener, len(b.listeners))
	for i, reg := range b.listeners {
		out[i] = reg.fn
	}
	return out
}
