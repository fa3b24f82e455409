package analyze

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dshills/prosecheck/internal/segment"
)

// Analyzer produces findings for one chunk. Implementations must be safe
// for concurrent use: the dispatcher runs several Analyze calls at once.
// Implementations own their timeout behavior; callers wrap the context when
// they need a deadline.
type Analyzer interface {
	// Name identifies the analyzer in logs and progress output.
	Name() string

	// Analyze returns the findings for chunk, with offsets relative to
	// chunk.Text. An error marks the chunk as failed; it never aborts the
	// surrounding batch.
	Analyze(ctx context.Context, chunk segment.Chunk) ([]Finding, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func struct {
	name string
	fn   func(ctx context.Context, chunk segment.Chunk) ([]Finding, error)
}

// NewFunc wraps fn as a named Analyzer.
func NewFunc(name string, fn func(ctx context.Context, chunk segment.Chunk) ([]Finding, error)) Func {
	return Func{name: name, fn: fn}
}

func (f Func) Name() string { return f.name }

func (f Func) Analyze(ctx context.Context, chunk segment.Chunk) ([]Finding, error) {
	return f.fn(ctx, chunk)
}

// RateLimited wraps an analyzer with a token-bucket limiter, modeling a
// rate-limited analysis backend. Each Analyze call waits for one token
// before delegating; cancellation while waiting returns the context error.
type RateLimited struct {
	inner   Analyzer
	limiter *rate.Limiter
}

// NewRateLimited wraps inner so at most limit calls per second proceed,
// with the given burst.
func NewRateLimited(inner Analyzer, limit rate.Limit, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Analyze(ctx context.Context, chunk segment.Chunk) ([]Finding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Analyze(ctx, chunk)
}
