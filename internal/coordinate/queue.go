package coordinate

// pendingQueue holds deferred update requests ordered by priority
// descending, FIFO within a priority. It is owned by the coordinator's
// run loop and needs no locking.
type pendingQueue struct {
	items    []Request
	capacity int
}

func newPendingQueue(capacity int) *pendingQueue {
	return &pendingQueue{capacity: capacity}
}

func (q *pendingQueue) len() int { return len(q.items) }

// push inserts req in priority order. When the queue is over capacity
// the oldest entry of the lowest priority present is evicted and
// returned; the evicted entry may be req itself.
func (q *pendingQueue) push(req Request) (Request, bool) {
	pos := len(q.items)
	for i, item := range q.items {
		if item.Kind.Priority() < req.Kind.Priority() {
			pos = i
			break
		}
	}
	q.items = append(q.items, Request{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = req

	if len(q.items) <= q.capacity {
		return Request{}, false
	}

	// The lowest-priority band sits at the tail; its first entry is
	// the oldest.
	last := len(q.items) - 1
	lowest := q.items[last].Kind.Priority()
	head := last
	for head > 0 && q.items[head-1].Kind.Priority() == lowest {
		head--
	}
	evicted := q.items[head]
	q.items = append(q.items[:head], q.items[head+1:]...)
	return evicted, true
}

// pop removes and returns the highest-priority request, oldest first
// within a priority.
func (q *pendingQueue) pop() (Request, bool) {
	if len(q.items) == 0 {
		return Request{}, false
	}
	req := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return req, true
}

// dropAtOrBelow removes every entry whose priority is at or below the
// given priority and reports how many were removed.
func (q *pendingQueue) dropAtOrBelow(priority int) int {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.Kind.Priority() > priority {
			kept = append(kept, item)
		}
	}
	dropped := len(q.items) - len(kept)
	q.items = kept
	return dropped
}
