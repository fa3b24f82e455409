// Package dispatch runs chunk analysis with bounded concurrency, priority
// ordering, streamed results, and generation-based supersession.
//
// # Architecture
//
//	chunks --> partition --> priority wave ---+
//	              |                           +--> analyzer (cap in flight)
//	              +------> background wave ---+        |
//	                       (after delay)               v
//	                                      map offsets, merge, emit
//	                                                   |
//	               Results() stream <------------------+
//	               Wait() final set <-- dedupe <-------+
//
// A Dispatcher issues at most its concurrency cap of analyzer calls at
// once. Chunks overlapping the caller's visible range form the priority
// wave and start immediately; the rest start only after a fixed delay so
// off-screen work never starves on-screen work. Each chunk's findings are
// position-mapped and emitted the moment its analysis resolves; the final
// merged set is deduplicated once every chunk has settled.
//
// # Failure Isolation
//
// One chunk's analysis failing (error or panic) never aborts the batch: the
// failure is logged, counted, reported as a Result with Err set, and the
// remaining chunks continue.
//
// # Generations
//
// A Controller owns a monotonically increasing generation counter for one
// logical document session. Restart cancels the in-flight run, bumps the
// generation, and starts a new run; completions carrying a stale generation
// are discarded without being merged or emitted. Cancellation is carried by
// first-class values (Run, Controller), not shared flags.
package dispatch
