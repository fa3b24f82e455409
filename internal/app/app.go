package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/analyze/lua"
	"github.com/dshills/prosecheck/internal/analyze/style"
	"github.com/dshills/prosecheck/internal/config"
	"github.com/dshills/prosecheck/internal/coordinate"
	"github.com/dshills/prosecheck/internal/dispatch"
	"github.com/dshills/prosecheck/internal/document"
	"github.com/dshills/prosecheck/internal/segment"
)

// stopTimeout bounds how long Close waits for a running app to drain.
const stopTimeout = 5 * time.Second

// Pass is the outcome of one analysis pass over the document, delivered
// to OnPass handlers.
type Pass struct {
	// Revision is the buffer revision the pass analyzed.
	Revision document.Revision

	// Findings are the document-relative findings after deduplication.
	Findings []analyze.AbsoluteFinding

	// Chunks is how many chunks the document split into.
	Chunks int

	// Failed is how many chunks failed analysis.
	Failed int

	// Duration is the wall time from segmentation to final merge.
	Duration time.Duration
}

// App wires the checking pipeline together: the document buffer feeds
// the segmenter, chunks flow through the dispatcher to the configured
// analyzer, and content updates go through the coordinator.
type App struct {
	// Configuration
	cfg     config.Config
	segOpts segment.Options
	visible *segment.Span

	// Infrastructure
	logger  *Logger
	metrics *Metrics

	// Pipeline components
	buffer     *document.Buffer
	history    *document.History
	analyzer   analyze.Analyzer
	controller *dispatch.Controller
	coord      *coordinate.Coordinator

	// Pass delivery
	handlerMu sync.Mutex
	handlers  []func(Pass)

	// Lifecycle
	runMu       sync.Mutex // protects Start/Stop transitions
	running     atomic.Bool
	closed      atomic.Bool
	runCancel   context.CancelFunc
	unsubscribe func()
	untrack     func()
	passes      sync.WaitGroup
	closers     []io.Closer
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. Defaults to a stderr logger at the
// configured log level.
func WithLogger(logger *Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithMetrics sets the metrics tracker. Defaults to a fresh tracker.
func WithMetrics(m *Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVisibleRange marks the byte span currently on screen. Chunks
// overlapping it are analyzed first; the rest wait out the background
// delay.
func WithVisibleRange(span segment.Span) Option {
	return func(a *App) {
		s := span
		a.visible = &s
	}
}

// New builds the pipeline described by cfg. The returned App owns the
// analyzer and must be closed.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	a := &App{
		cfg: cfg,
		segOpts: segment.Options{
			MaxChunkSize:              cfg.Segment.MaxChunkSize,
			OverlapSize:               cfg.Segment.OverlapSize,
			RespectSentenceBoundaries: cfg.Segment.RespectSentenceBoundaries,
			Language:                  cfg.Segment.Language,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		lcfg := DefaultLoggerConfig()
		lcfg.Level = ParseLogLevel(cfg.Log.Level)
		a.logger = NewLogger(lcfg)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics()
	}

	// 1. Document buffer with revision history
	a.buffer = document.New()
	a.history = document.NewHistory(document.DefaultHistoryDepth)
	a.untrack = a.history.Track(a.buffer)

	// 2. Analyzer selected by configuration
	analyzer, closer, err := buildAnalyzer(cfg.Analyze)
	if err != nil {
		a.untrack()
		return nil, &InitError{Component: "analyzer", Err: err}
	}
	a.analyzer = analyzer
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	// 3. Chunk dispatcher with restart control
	dispatcher, err := dispatch.New(analyzer,
		dispatch.WithMaxConcurrency(cfg.Dispatch.MaxConcurrency),
		dispatch.WithBackgroundDelay(cfg.Dispatch.BackgroundDelay()),
		dispatch.WithLogger(a.logger.WithComponent("dispatch")),
	)
	if err != nil {
		a.untrack()
		a.closeClosers()
		return nil, &InitError{Component: "dispatcher", Err: err}
	}
	a.controller = dispatch.NewController(dispatcher)

	// 4. Content update coordinator over the buffer
	coord, err := coordinate.New(a.buffer,
		coordinate.WithDebounceWindow(cfg.Coordinate.DebounceWindow()),
		coordinate.WithDrainPause(cfg.Coordinate.DrainPause()),
		coordinate.WithQueueCapacity(cfg.Coordinate.QueueCapacity),
		coordinate.WithLogger(a.logger.WithComponent("coordinate")),
		coordinate.WithOnApplied(func(coordinate.Request) {
			a.metrics.RecordUpdateApplied()
		}),
	)
	if err != nil {
		a.untrack()
		a.closeClosers()
		return nil, &InitError{Component: "coordinator", Err: err}
	}
	a.coord = coord

	return a, nil
}

// buildAnalyzer constructs the analyzer named by cfg.Engine, wrapped
// with rate limiting when configured. The returned closer is non-nil
// when the analyzer holds resources.
func buildAnalyzer(cfg config.AnalyzeConfig) (analyze.Analyzer, io.Closer, error) {
	var (
		analyzer analyze.Analyzer
		closer   io.Closer
	)

	switch cfg.Engine {
	case config.EngineStyle:
		analyzer = style.New(style.WithLongSentenceLimit(cfg.LongSentenceLimit))
	case config.EngineLua:
		engine, err := lua.New(cfg.RulesDir)
		if err != nil {
			return nil, nil, err
		}
		analyzer = engine
		closer = engine
	default:
		return nil, nil, fmt.Errorf("unknown analyze engine %q", cfg.Engine)
	}

	if cfg.RateLimit > 0 {
		analyzer = analyze.NewRateLimited(analyzer, rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return analyzer, closer, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Buffer returns the shared document buffer.
func (a *App) Buffer() *document.Buffer { return a.buffer }

// History returns the buffer's revision history.
func (a *App) History() *document.History { return a.history }

// Coordinator returns the content update coordinator.
func (a *App) Coordinator() *coordinate.Coordinator { return a.coord }

// Logger returns the app's logger.
func (a *App) Logger() *Logger { return a.logger }

// Metrics returns the app's metrics tracker.
func (a *App) Metrics() *Metrics { return a.metrics }

// AnalyzerName returns the name of the configured analyzer.
func (a *App) AnalyzerName() string { return a.analyzer.Name() }

// IsRunning reports whether continuous checking is active.
func (a *App) IsRunning() bool { return a.running.Load() }

// OnPass registers a handler for completed analysis passes. Handlers
// run on the pass goroutine and must not block. Register before Start.
func (a *App) OnPass(fn func(Pass)) {
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()
	a.handlers = append(a.handlers, fn)
}

// CheckOnce analyzes text in a single pass and returns the deduplicated
// document-relative findings. The text also becomes the buffer content,
// without notifying change listeners. If ctx expires mid-pass the
// findings gathered so far are returned along with the context error.
func (a *App) CheckOnce(ctx context.Context, text string) ([]analyze.AbsoluteFinding, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if err := a.buffer.Apply(text, false); err != nil {
		return nil, err
	}

	timer := StartTimer()

	chunks, err := segment.Segment(text, a.segOpts)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	run, err := a.controller.Restart(ctx, chunks, a.visible)
	if err != nil {
		return nil, err
	}
	findings := run.Wait()

	prog := run.Progress()
	a.metrics.RecordPass(timer.Elapsed())
	a.metrics.RecordChunks(len(chunks))
	a.metrics.RecordChunkFailures(prog.Failed)
	a.metrics.RecordFindings(len(findings))
	a.logger.Debug("checked %d chunks in %.1fms: %d findings, %d failures",
		len(chunks), timer.ElapsedMs(), len(findings), prog.Failed)

	if err := ctx.Err(); err != nil {
		return findings, err
	}
	return findings, nil
}

// Start begins continuous checking: the coordinator accepts Submit
// requests, and every buffer change triggers a fresh analysis pass that
// supersedes any pass still in flight.
func (a *App) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.closed.Load() {
		return ErrClosed
	}
	if a.running.Load() {
		return ErrAlreadyRunning
	}

	if err := a.coord.Start(); err != nil {
		return &InitError{Component: "coordinator", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.runCancel = cancel
	a.unsubscribe = a.buffer.OnChange(func(ch document.Change) {
		a.passes.Add(1)
		go a.runPass(ctx, ch.Content, ch.Revision)
	})

	a.running.Store(true)
	a.logger.Info("continuous checking started (analyzer: %s)", a.analyzer.Name())
	return nil
}

// Submit hands a content update to the coordinator.
func (a *App) Submit(req coordinate.Request) error {
	return a.coord.Submit(req)
}

// Stop halts continuous checking. In-flight passes are cancelled and
// awaited until ctx expires. The app can be started again afterwards.
func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if !a.running.Load() {
		return ErrNotRunning
	}

	a.unsubscribe()
	a.unsubscribe = nil
	a.runCancel()
	a.runCancel = nil
	a.controller.Cancel()

	err := a.coord.Stop(ctx)

	finished := make(chan struct{})
	go func() {
		a.passes.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	a.running.Store(false)
	a.logger.Info("continuous checking stopped")
	return err
}

// Close releases the analyzer and stops continuous checking if needed.
// Safe to call more than once.
func (a *App) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if a.running.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		firstErr = a.Stop(ctx)
		cancel()
	}

	a.untrack()
	if err := a.closeClosers(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeClosers() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runPass segments content and dispatches the chunks, delivering the
// outcome to OnPass handlers unless a newer pass superseded this one.
func (a *App) runPass(ctx context.Context, content string, rev document.Revision) {
	defer a.passes.Done()

	timer := StartTimer()

	chunks, err := segment.Segment(content, a.segOpts)
	if err != nil {
		a.logger.Error("segmenting revision %d: %v", rev, err)
		return
	}

	// An emptied document dispatches zero chunks; the pass still runs so
	// stale findings get cleared.
	run, err := a.controller.Restart(ctx, chunks, a.visible)
	if err != nil {
		a.logger.Error("dispatching revision %d: %v", rev, err)
		return
	}
	findings := run.Wait()

	if a.controller.Generation() != run.Generation() {
		a.metrics.RecordStalePass()
		a.logger.Debug("pass for revision %d superseded", rev)
		return
	}

	prog := run.Progress()
	a.metrics.RecordPass(timer.Elapsed())
	a.metrics.RecordChunks(len(chunks))
	a.metrics.RecordChunkFailures(prog.Failed)
	a.metrics.RecordFindings(len(findings))

	a.emit(Pass{
		Revision: rev,
		Findings: findings,
		Chunks:   len(chunks),
		Failed:   prog.Failed,
		Duration: timer.Elapsed(),
	})
}

// emit delivers a pass to every registered handler.
func (a *App) emit(p Pass) {
	a.handlerMu.Lock()
	handlers := make([]func(Pass), len(a.handlers))
	copy(handlers, a.handlers)
	a.handlerMu.Unlock()

	for _, fn := range handlers {
		a.safeEmit(fn, p)
	}
}

// safeEmit shields the pass goroutine from a panicking handler.
func (a *App) safeEmit(fn func(Pass), p Pass) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("pass handler panic: %v", r)
		}
	}()
	fn(p)
}
