package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dshills/prosecheck/internal/segment"
)

// Controller serializes analysis passes for one document session. Each
// Restart supersedes the previous run: the old run is cancelled, the
// generation counter advances, and completions tagged with a stale
// generation must be discarded by the consumer.
type Controller struct {
	dispatcher *Dispatcher
	generation atomic.Uint64

	mu      sync.Mutex
	current *Run
}

// NewController wraps a Dispatcher with generation tracking.
func NewController(dispatcher *Dispatcher) *Controller {
	return &Controller{dispatcher: dispatcher}
}

// Restart cancels any in-flight run and starts a new one under the next
// generation.
func (c *Controller) Restart(ctx context.Context, chunks []segment.Chunk, visible *segment.Span) (*Run, error) {
	generation := c.generation.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Cancel()
	}
	run, err := c.dispatcher.dispatch(ctx, chunks, visible, generation)
	if err != nil {
		return nil, err
	}
	c.current = run
	return run, nil
}

// Cancel stops the in-flight run, if any, without starting a new one.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Cancel()
	}
}

// Current returns the most recently started run, or nil before the
// first Restart.
func (c *Controller) Current() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Generation returns the newest generation.
func (c *Controller) Generation() uint64 { return c.generation.Load() }

// Accept reports whether a result belongs to the newest run. Stale
// results must be dropped, not treated as errors.
func (c *Controller) Accept(res Result) bool {
	return res.Generation == c.generation.Load()
}
