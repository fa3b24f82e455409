// Package document provides a thread-safe, string-backed text buffer
// with revision tracking, change listeners, and a bounded snapshot
// history.
//
// The document package provides:
//
//   - Thread-safe read/write access via sync.RWMutex
//   - Whole-content replacement with optional listener notification
//   - Byte-range edits with validated offsets
//   - Read-only snapshots for concurrent access
//   - Monotonic per-buffer revisions for change correlation
//   - A bounded History of snapshots for restore operations
//
// Basic usage:
//
//	buf := document.NewFromString("Hello, World!")
//
//	// Watch for changes
//	remove := buf.OnChange(func(ch document.Change) {
//	    // re-run analysis on ch.Content...
//	})
//	defer remove()
//
//	// Replace the whole content, notifying listeners
//	buf.Apply("Hello again, World!", true)
//
//	// Keep snapshots for later restoration
//	hist := document.NewHistory(100)
//	defer hist.Track(buf)()
//
// Thread Safety:
//
// All Buffer methods are safe for concurrent use. Listeners run
// synchronously after a write completes, outside the buffer's lock, in
// registration order.
package document
