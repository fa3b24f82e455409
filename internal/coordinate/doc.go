// Package coordinate serializes writes to a shared document buffer so a
// slow-arriving background update can never overwrite fresher human
// input.
//
// # State Machine
//
// One Coordinator owns one document. Every submitted Request passes
// through a single transition function on the coordinator's own
// goroutine; external callers never touch internal state.
//
//	          human edit: preempt queue, apply, hold
//	  idle ---------------------------------> typing-hold
//	    | ^                                        |
//	    | | queue drained                          | hold expires:
//	    | | (one apply per pause)                  | drain queue
//	    v |                                        v
//	  applying <--------------------------- pending queue
//	              other kinds while held/busy
//
// A human edit always wins: queued updates at or below its priority are
// discarded, the edit is applied at once, and the coordinator holds off
// all other writers for the debounce window. Any other kind applies
// immediately when the coordinator is idle with nothing pending;
// otherwise it waits in a bounded priority queue that evicts the oldest
// lowest-priority entry when full.
//
// # Idempotence
//
// Before any write the request's content is compared to the buffer's
// current content; identical content is skipped so downstream change
// listeners never fire redundantly.
package coordinate
