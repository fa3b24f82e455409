package coordinate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDebounceWindow is how long the coordinator holds off other
	// writers after a human edit.
	DefaultDebounceWindow = 300 * time.Millisecond

	// DefaultDrainPause separates consecutive queued applications.
	DefaultDrainPause = 50 * time.Millisecond

	// DefaultQueueCapacity bounds the pending queue.
	DefaultQueueCapacity = 8

	// submitBuffer bounds how many submissions may sit between the
	// caller and the run loop.
	submitBuffer = 32
)

// State is the coordinator's externally visible condition.
type State int32

const (
	// StateIdle means no write is in progress and no hold is active.
	StateIdle State = iota

	// StateApplying means a write to the document is in progress.
	StateApplying

	// StateTypingHold means a human edit landed within the debounce
	// window; other writers wait.
	StateTypingHold
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApplying:
		return "applying"
	case StateTypingHold:
		return "typing-hold"
	default:
		return "unknown"
	}
}

// Document is the shared buffer the coordinator arbitrates writes to.
type Document interface {
	// Content returns the buffer's current content.
	Content() string

	// Apply replaces the buffer's content. notify controls whether
	// change listeners fire.
	Apply(content string, notify bool) error
}

// Coordinator serializes content updates to one document. Construct
// with New, then Start; submissions before Start fail with
// ErrNotRunning.
type Coordinator struct {
	// Configuration
	doc            Document
	debounceWindow time.Duration
	drainPause     time.Duration
	queueCapacity  int
	logger         Logger
	onApplied      func(Request)

	// Lifecycle
	mu       sync.Mutex // protects Start/Stop transitions
	requests chan Request
	stop     chan struct{}
	done     chan struct{}
	running  atomic.Bool
	state    atomic.Int32

	// Run-loop state. Owned exclusively by run(); never touched from
	// other goroutines.
	queue  *pendingQueue
	hold   *time.Timer
	holdC  <-chan time.Time
	pause  *time.Timer
	pauseC <-chan time.Time

	// Stats
	submitted atomic.Uint64
	applied   atomic.Uint64
	skipped   atomic.Uint64
	preempted atomic.Uint64
	evicted   atomic.Uint64
	failures  atomic.Uint64
	pending   atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDebounceWindow sets how long other writers wait after a human
// edit.
func WithDebounceWindow(window time.Duration) Option {
	return func(c *Coordinator) { c.debounceWindow = window }
}

// WithDrainPause sets the pause between consecutive queued
// applications.
func WithDrainPause(pause time.Duration) Option {
	return func(c *Coordinator) { c.drainPause = pause }
}

// WithQueueCapacity bounds the pending queue.
func WithQueueCapacity(capacity int) Option {
	return func(c *Coordinator) { c.queueCapacity = capacity }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnApplied registers a callback invoked after each successful
// write. It runs on the coordinator's goroutine and must not block.
func WithOnApplied(fn func(Request)) Option {
	return func(c *Coordinator) { c.onApplied = fn }
}

// New creates a Coordinator for the given document.
func New(doc Document, opts ...Option) (*Coordinator, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	c := &Coordinator{
		doc:            doc,
		debounceWindow: DefaultDebounceWindow,
		drainPause:     DefaultDrainPause,
		queueCapacity:  DefaultQueueCapacity,
		logger:         nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.debounceWindow < 0 {
		return nil, ErrInvalidDebounce
	}
	if c.drainPause < 0 {
		return nil, ErrInvalidPause
	}
	if c.queueCapacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return c, nil
}

// Start launches the coordinator's run loop.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}
	c.requests = make(chan Request, submitBuffer)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.queue = newPendingQueue(c.queueCapacity)
	c.hold, c.holdC = nil, nil
	c.pause, c.pauseC = nil, nil
	c.pending.Store(0)
	c.running.Store(true)

	go c.run()
	return nil
}

// Stop halts the coordinator, discarding pending requests. It waits for
// the run loop to finish or the context to expire.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running.Load() {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running.Store(false)
	close(c.stop)
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the run loop is active.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// Submit hands a content update request to the coordinator. The request
// is evaluated on the coordinator's goroutine in arrival order; Submit
// itself never applies content.
func (c *Coordinator) Submit(req Request) error {
	if !req.Kind.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, req.Kind)
	}
	if !c.running.Load() {
		return ErrNotRunning
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	select {
	case c.requests <- req:
		c.submitted.Add(1)
		return nil
	case <-c.stop:
		return ErrNotRunning
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Pending returns how many requests wait in the queue.
func (c *Coordinator) Pending() int {
	return int(c.pending.Load())
}

// CoordinatorStats are cumulative counters for one coordinator.
type CoordinatorStats struct {
	// Submitted is the number of requests accepted by Submit.
	Submitted uint64

	// Applied is the number of writes that reached the document.
	Applied uint64

	// Skipped is the number of writes elided by the idempotence guard.
	Skipped uint64

	// Preempted is the number of queued requests discarded by human
	// edits.
	Preempted uint64

	// Evicted is the number of requests dropped by queue overflow.
	Evicted uint64

	// Failures is the number of document writes that returned errors.
	Failures uint64

	// Pending is the current queue depth.
	Pending int
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		Submitted: c.submitted.Load(),
		Applied:   c.applied.Load(),
		Skipped:   c.skipped.Load(),
		Preempted: c.preempted.Load(),
		Evicted:   c.evicted.Load(),
		Failures:  c.failures.Load(),
		Pending:   int(c.pending.Load()),
	}
}

func (c *Coordinator) run() {
	defer func() {
		c.disarmHold()
		c.disarmPause()
		c.setState(StateIdle)
		close(c.done)
	}()

	for {
		select {
		case req := <-c.requests:
			c.transition(req)
		case <-c.holdC:
			c.holdC = nil
			c.holdExpired()
		case <-c.pauseC:
			c.pauseC = nil
			c.drainNext()
		case <-c.stop:
			return
		}
	}
}

// transition is the single state-transition function; every submitted
// request passes through it on the run loop.
func (c *Coordinator) transition(req Request) {
	if req.Kind == KindHumanEdit {
		if dropped := c.queue.dropAtOrBelow(req.Kind.Priority()); dropped > 0 {
			c.preempted.Add(uint64(dropped))
			c.pending.Store(int64(c.queue.len()))
			c.logger.Debug("human edit %s preempted %d pending updates", req.ID, dropped)
		}
		c.disarmPause()
		c.apply(req)
		c.enterTypingHold()
		return
	}

	if c.State() == StateTypingHold || c.queue.len() > 0 {
		c.enqueue(req)
		return
	}
	c.apply(req)
}

// apply performs the idempotence-guarded write. The coordinator is in
// StateApplying for its duration and StateIdle after; the caller
// overrides the final state for human edits.
func (c *Coordinator) apply(req Request) {
	c.setState(StateApplying)
	defer c.setState(StateIdle)

	if c.doc.Content() == req.Content {
		c.skipped.Add(1)
		c.logger.Debug("%s update %s matches current content, skipping", req.Kind, req.ID)
		return
	}
	if err := c.doc.Apply(req.Content, !req.Silent); err != nil {
		c.failures.Add(1)
		c.logger.Error("%s update %s failed: %v", req.Kind, req.ID, err)
		return
	}
	c.applied.Add(1)
	c.logger.Debug("applied %s update %s (%d bytes)", req.Kind, req.ID, len(req.Content))
	if c.onApplied != nil {
		c.onApplied(req)
	}
}

func (c *Coordinator) enqueue(req Request) {
	evicted, ok := c.queue.push(req)
	if ok {
		c.evicted.Add(1)
		c.logger.Warn("pending queue full, evicted %s update %s", evicted.Kind, evicted.ID)
	}
	c.pending.Store(int64(c.queue.len()))
	c.logger.Debug("queued %s update %s at depth %d", req.Kind, req.ID, c.queue.len())
}

// enterTypingHold (re)arms the debounce window after a human edit.
func (c *Coordinator) enterTypingHold() {
	c.setState(StateTypingHold)
	if c.hold == nil {
		c.hold = time.NewTimer(c.debounceWindow)
	} else {
		if !c.hold.Stop() {
			select {
			case <-c.hold.C:
			default:
			}
		}
		c.hold.Reset(c.debounceWindow)
	}
	c.holdC = c.hold.C
}

// holdExpired releases the typing hold and begins draining the queue.
func (c *Coordinator) holdExpired() {
	c.setState(StateIdle)
	c.logger.Debug("typing hold released, %d pending", c.queue.len())
	c.drainNext()
}

// drainNext applies the highest-priority queued request and paces the
// next one.
func (c *Coordinator) drainNext() {
	req, ok := c.queue.pop()
	if !ok {
		return
	}
	c.pending.Store(int64(c.queue.len()))
	c.apply(req)
	if c.queue.len() > 0 {
		c.armPause()
	}
}

func (c *Coordinator) armPause() {
	if c.pause == nil {
		c.pause = time.NewTimer(c.drainPause)
	} else {
		c.pause.Reset(c.drainPause)
	}
	c.pauseC = c.pause.C
}

func (c *Coordinator) disarmPause() {
	if c.pause != nil && !c.pause.Stop() {
		select {
		case <-c.pause.C:
		default:
		}
	}
	c.pauseC = nil
}

func (c *Coordinator) disarmHold() {
	if c.hold != nil && !c.hold.Stop() {
		select {
		case <-c.hold.C:
		default:
		}
	}
	c.holdC = nil
}
