package document

import "time"

// Snapshot is a read-only view of a buffer at a specific point in time.
// It will not change even if the original buffer is modified.
type Snapshot struct {
	content  string
	revision Revision
	taken    time.Time
}

// Text returns the snapshot's content.
func (s Snapshot) Text() string { return s.content }

// Len returns the content length in bytes.
func (s Snapshot) Len() int { return len(s.content) }

// Revision returns the revision the snapshot was taken at.
func (s Snapshot) Revision() Revision { return s.revision }

// Taken returns when the snapshot was captured.
func (s Snapshot) Taken() time.Time { return s.taken }

// IsEmpty reports whether the snapshot holds no content.
func (s Snapshot) IsEmpty() bool { return len(s.content) == 0 }
