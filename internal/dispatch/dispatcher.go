package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/segment"
)

const (
	// DefaultMaxConcurrency is the number of chunk analyses allowed in
	// flight at once.
	DefaultMaxConcurrency = 2

	// DefaultBackgroundDelay is how long off-screen chunks wait before
	// they are dispatched.
	DefaultBackgroundDelay = 20 * time.Second
)

// Result reports the outcome of analyzing a single chunk. Exactly one
// Result is emitted per dispatched chunk unless the run is superseded
// first. Findings carry document-absolute offsets.
type Result struct {
	ChunkID    string
	ChunkIndex int
	Findings   []analyze.AbsoluteFinding
	Err        error
	Generation uint64
}

// Progress is a point-in-time snapshot of a run's counters.
type Progress struct {
	Total      int
	Completed  int
	Processing int
	Failed     int
}

// Remaining reports how many chunks have not completed yet.
func (p Progress) Remaining() int { return p.Total - p.Completed }

// Done reports whether every chunk has settled.
func (p Progress) Done() bool { return p.Completed >= p.Total }

// DispatcherStats are cumulative counters across all runs.
type DispatcherStats struct {
	Runs     uint64
	Chunks   uint64
	Failures uint64
	Findings uint64
}

// Dispatcher fans chunk analysis out to an analyzer under a fixed
// concurrency cap. A single Dispatcher may serve many runs; it holds no
// per-run state.
type Dispatcher struct {
	analyzer        analyze.Analyzer
	maxConcurrency  int
	backgroundDelay time.Duration
	logger          Logger

	runs     atomic.Uint64
	chunks   atomic.Uint64
	failures atomic.Uint64
	findings atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrency sets how many chunks may be analyzed at once.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) { d.maxConcurrency = n }
}

// WithBackgroundDelay sets how long chunks outside the visible range
// wait before dispatch. Zero dispatches them immediately after the
// priority wave.
func WithBackgroundDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.backgroundDelay = delay }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher for the given analyzer.
func New(analyzer analyze.Analyzer, opts ...Option) (*Dispatcher, error) {
	if analyzer == nil {
		return nil, ErrNilAnalyzer
	}
	d := &Dispatcher{
		analyzer:        analyzer,
		maxConcurrency:  DefaultMaxConcurrency,
		backgroundDelay: DefaultBackgroundDelay,
		logger:          nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxConcurrency < 1 {
		return nil, ErrInvalidConcurrency
	}
	if d.backgroundDelay < 0 {
		return nil, ErrNegativeDelay
	}
	return d, nil
}

// Stats returns cumulative counters across all runs of this Dispatcher.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Runs:     d.runs.Load(),
		Chunks:   d.chunks.Load(),
		Failures: d.failures.Load(),
		Findings: d.findings.Load(),
	}
}

// Dispatch starts analyzing chunks and returns immediately. Chunks
// overlapping visible are dispatched first; the rest follow after the
// background delay. A nil visible range dispatches everything
// immediately in index order. The returned Run streams per-chunk
// results and resolves the merged, deduplicated set on Wait.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []segment.Chunk, visible *segment.Span) (*Run, error) {
	return d.dispatch(ctx, chunks, visible, 0)
}

func (d *Dispatcher) dispatch(ctx context.Context, chunks []segment.Chunk, visible *segment.Span, generation uint64) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		id:         uuid.NewString(),
		generation: generation,
		total:      len(chunks),
		results:    make(chan Result, len(chunks)),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	priority, background := partition(chunks, visible)
	d.runs.Add(1)
	d.logger.Debug("dispatching run %s: %d priority, %d background, cap %d",
		run.id, len(priority), len(background), d.maxConcurrency)

	go d.execute(runCtx, run, priority, background)
	return run, nil
}

// partition splits chunks into those overlapping the visible range and
// the rest, preserving index order within each group. A nil range puts
// everything in the priority group.
func partition(chunks []segment.Chunk, visible *segment.Span) (priority, background []segment.Chunk) {
	if visible == nil {
		return chunks, nil
	}
	for _, chunk := range chunks {
		if chunk.Span().Overlaps(*visible) {
			priority = append(priority, chunk)
		} else {
			background = append(background, chunk)
		}
	}
	return priority, background
}

func (d *Dispatcher) execute(ctx context.Context, run *Run, priority, background []segment.Chunk) {
	var group errgroup.Group
	group.SetLimit(d.maxConcurrency)

	for _, chunk := range priority {
		chunk := chunk
		group.Go(func() error {
			d.analyzeChunk(ctx, run, chunk)
			return nil
		})
	}

	if len(background) > 0 {
		if d.backgroundDelay > 0 {
			timer := time.NewTimer(d.backgroundDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() == nil {
			for _, chunk := range background {
				chunk := chunk
				group.Go(func() error {
					d.analyzeChunk(ctx, run, chunk)
					return nil
				})
			}
		}
	}

	group.Wait() //nolint:errcheck // workers never return errors
	run.finish()
	d.logger.Debug("run %s settled: %d/%d chunks, %d failed",
		run.id, run.completed.Load(), run.total, run.failed.Load())
}

// analyzeChunk runs one chunk through the analyzer, maps its findings to
// document offsets, and records the result. A superseded run's
// completions are discarded without emitting.
func (d *Dispatcher) analyzeChunk(ctx context.Context, run *Run, chunk segment.Chunk) {
	if ctx.Err() != nil {
		return
	}
	run.processing.Add(1)
	findings, err := d.safeAnalyze(ctx, chunk)
	run.processing.Add(-1)
	if ctx.Err() != nil {
		return
	}
	run.completed.Add(1)
	d.chunks.Add(1)

	res := Result{ChunkID: chunk.ID, ChunkIndex: chunk.Index, Generation: run.generation}
	if err != nil {
		run.failed.Add(1)
		d.failures.Add(1)
		d.logger.Warn("analysis of chunk %d [%d, %d) failed: %v", chunk.Index, chunk.Start, chunk.End, err)
		res.Err = err
		run.emit(res)
		return
	}

	mapped := make([]analyze.AbsoluteFinding, 0, len(findings))
	for _, f := range findings {
		if analyze.Clamped(f, chunk) {
			d.logger.Warn("chunk %d: %s finding offsets [%d, %d) outside chunk, clamping",
				chunk.Index, f.Category, f.Start, f.End)
		}
		abs := analyze.MapToDocument(f, chunk)
		if !abs.Valid() {
			d.logger.Warn("chunk %d: %s finding collapsed after clamping, dropping", chunk.Index, f.Category)
			continue
		}
		if abs.ID == "" {
			abs.ID = analyze.DeriveID(abs.Category, abs.Span(), abs.Matched)
		}
		mapped = append(mapped, abs)
	}
	d.findings.Add(uint64(len(mapped)))
	res.Findings = mapped
	run.merge(mapped)
	run.emit(res)
}

// safeAnalyze contains analyzer panics so one bad chunk cannot take the
// run down.
func (d *Dispatcher) safeAnalyze(ctx context.Context, chunk segment.Chunk) (findings []analyze.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return d.analyzer.Analyze(ctx, chunk)
}

// Run is one in-flight analysis pass over a set of chunks.
type Run struct {
	id         string
	generation uint64
	total      int
	results    chan Result
	done       chan struct{}
	cancel     context.CancelFunc

	completed  atomic.Int64
	processing atomic.Int64
	failed     atomic.Int64

	mu     sync.Mutex
	merged []analyze.AbsoluteFinding
	final  []analyze.AbsoluteFinding
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Generation returns the generation this run was started under.
func (r *Run) Generation() uint64 { return r.generation }

// Results streams per-chunk outcomes as they settle. The channel is
// closed once every chunk has settled or the run is superseded.
func (r *Run) Results() <-chan Result { return r.results }

// Done is closed when the run has settled.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run settles and returns the merged,
// deduplicated findings in document order.
func (r *Run) Wait() []analyze.AbsoluteFinding {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// Cancel stops the run. In-flight analyses are abandoned and their
// results discarded.
func (r *Run) Cancel() { r.cancel() }

// Progress returns a snapshot of the run's counters.
func (r *Run) Progress() Progress {
	return Progress{
		Total:      r.total,
		Completed:  int(r.completed.Load()),
		Processing: int(r.processing.Load()),
		Failed:     int(r.failed.Load()),
	}
}

func (r *Run) merge(findings []analyze.AbsoluteFinding) {
	if len(findings) == 0 {
		return
	}
	r.mu.Lock()
	r.merged = append(r.merged, findings...)
	r.mu.Unlock()
}

// emit never blocks: results is buffered for one entry per chunk and
// each chunk settles at most once.
func (r *Run) emit(res Result) {
	r.results <- res
}

func (r *Run) finish() {
	r.mu.Lock()
	r.final = analyze.Dedupe(r.merged)
	r.mu.Unlock()
	close(r.results)
	close(r.done)
	r.cancel()
}
