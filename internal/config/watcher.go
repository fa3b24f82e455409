package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long file events must settle before a
// reload is attempted. Editors often produce several events per save.
const DefaultWatchDebounce = 100 * time.Millisecond

// Handler receives the freshly loaded configuration after a change.
type Handler func(cfg Config)

// ErrorHandler receives reload failures. The previously delivered
// configuration stays in effect.
type ErrorHandler func(err error)

// WatcherStats is a point-in-time snapshot of watcher counters.
type WatcherStats struct {
	// Events is the number of relevant filesystem events observed.
	Events uint64
	// Reloads is the number of successful configuration deliveries.
	Reloads uint64
	// Failures is the number of reloads rejected by parsing or validation.
	Failures uint64
}

// Watcher reloads a configuration file when it changes on disk.
//
// The parent directory is watched rather than the file itself, so
// editors that save by writing a temporary file and renaming it over
// the target are still observed.
type Watcher struct {
	mu sync.Mutex // protects Start/Stop transitions and handler registration

	// Configuration
	path     string
	debounce time.Duration

	// Handlers
	handlers    []Handler
	errHandlers []ErrorHandler

	// Lifecycle
	fw      *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
	running bool

	// Stats
	events   atomic.Uint64
	reloads  atomic.Uint64
	failures atomic.Uint64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long events must settle before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the configuration file at path. The
// file does not need to exist yet; its creation triggers the first
// reload.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, ErrNoConfigPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultWatchDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// OnChange registers a handler for successful reloads. Handlers run on
// the watcher goroutine in registration order.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// OnError registers a handler for failed reloads.
func (w *Watcher) OnError(h ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errHandlers = append(w.errHandlers, h)
}

// Start begins watching. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close() //nolint:errcheck // the add failure is the error worth reporting
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	w.fw = fw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.run()
	return nil
}

// Stop stops watching and waits for the watcher goroutine to exit.
// Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns a snapshot of the watcher counters.
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Events:   w.events.Load(),
		Reloads:  w.reloads.Load(),
		Failures: w.failures.Load(),
	}
}

// run is the watcher goroutine. The settle timer is owned here and is
// armed by relevant events; it never fires concurrently with event
// handling.
func (w *Watcher) run() {
	defer close(w.done)
	defer w.fw.Close() //nolint:errcheck // shutdown path, nothing to report to

	var (
		settle  *time.Timer
		settleC <-chan time.Time
	)

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.events.Add(1)
			if settle == nil {
				settle = time.NewTimer(w.debounce)
			} else {
				if !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(w.debounce)
			}
			settleC = settle.C

		case <-settleC:
			settleC = nil
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.emitError(fmt.Errorf("watching %s: %w", w.path, err))

		case <-w.stop:
			if settle != nil {
				settle.Stop()
			}
			return
		}
	}
}

// relevant reports whether the event concerns the watched file and may
// have changed its contents.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// reload loads the file and delivers the result to handlers.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.failures.Add(1)
		w.emitError(err)
		return
	}

	w.reloads.Add(1)
	w.mu.Lock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		w.safeCall(func() { h(cfg) })
	}
}

// emitError delivers a reload failure to error handlers.
func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	handlers := make([]ErrorHandler, len(w.errHandlers))
	copy(handlers, w.errHandlers)
	w.mu.Unlock()

	for _, h := range handlers {
		w.safeCall(func() { h(err) })
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the watcher goroutine.
func (w *Watcher) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
