package app

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks analysis pipeline counters. All methods are safe for
// concurrent use.
type Metrics struct {
	// Pass timing
	passCount   atomic.Uint64
	passTotalNs atomic.Int64
	passMinNs   atomic.Int64
	passMaxNs   atomic.Int64
	lastPassNs  atomic.Int64
	stalePasses atomic.Uint64

	// Chunk analysis
	chunkCount    atomic.Uint64
	chunkFailures atomic.Uint64

	// Findings surviving deduplication
	findingCount atomic.Uint64

	// Document updates
	updatesApplied atomic.Uint64

	// Configuration
	configReloads atomic.Uint64

	// Start time for uptime calculation
	startNs atomic.Int64
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max int64 so the first pass will be smaller
	m.passMinNs.Store(1<<63 - 1)
	m.startNs.Store(time.Now().UnixNano())
	return m
}

// RecordPass records a completed analysis pass.
func (m *Metrics) RecordPass(duration time.Duration) {
	ns := duration.Nanoseconds()

	m.passCount.Add(1)
	m.passTotalNs.Add(ns)
	m.lastPassNs.Store(ns)

	// Update min (atomic compare-and-swap loop)
	for {
		old := m.passMinNs.Load()
		if ns >= old {
			break
		}
		if m.passMinNs.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (atomic compare-and-swap loop)
	for {
		old := m.passMaxNs.Load()
		if ns <= old {
			break
		}
		if m.passMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordStalePass records a pass whose results were superseded before
// they could be delivered.
func (m *Metrics) RecordStalePass() {
	m.stalePasses.Add(1)
}

// RecordChunks records chunks handed to the analyzer.
func (m *Metrics) RecordChunks(n int) {
	if n > 0 {
		m.chunkCount.Add(uint64(n))
	}
}

// RecordChunkFailures records chunks whose analysis failed.
func (m *Metrics) RecordChunkFailures(n int) {
	if n > 0 {
		m.chunkFailures.Add(uint64(n))
	}
}

// RecordFindings records findings that survived deduplication.
func (m *Metrics) RecordFindings(n int) {
	if n > 0 {
		m.findingCount.Add(uint64(n))
	}
}

// RecordUpdateApplied records a document update applied to the buffer.
func (m *Metrics) RecordUpdateApplied() {
	m.updatesApplied.Add(1)
}

// RecordConfigReload records a live configuration reload.
func (m *Metrics) RecordConfigReload() {
	m.configReloads.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	passCount := m.passCount.Load()

	var avgPassNs int64
	if passCount > 0 {
		avgPassNs = m.passTotalNs.Load() / int64(passCount)
	}

	minPassNs := m.passMinNs.Load()
	if minPassNs == 1<<63-1 {
		minPassNs = 0
	}

	return MetricsSnapshot{
		Uptime:         time.Since(time.Unix(0, m.startNs.Load())),
		PassCount:      passCount,
		AvgPassTimeNs:  avgPassNs,
		MinPassTimeNs:  minPassNs,
		MaxPassTimeNs:  m.passMaxNs.Load(),
		LastPassNs:     m.lastPassNs.Load(),
		StalePasses:    m.stalePasses.Load(),
		ChunkCount:     m.chunkCount.Load(),
		ChunkFailures:  m.chunkFailures.Load(),
		FindingCount:   m.findingCount.Load(),
		UpdatesApplied: m.updatesApplied.Load(),
		ConfigReloads:  m.configReloads.Load(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.passCount.Store(0)
	m.passTotalNs.Store(0)
	m.passMinNs.Store(1<<63 - 1)
	m.passMaxNs.Store(0)
	m.lastPassNs.Store(0)
	m.stalePasses.Store(0)
	m.chunkCount.Store(0)
	m.chunkFailures.Store(0)
	m.findingCount.Store(0)
	m.updatesApplied.Store(0)
	m.configReloads.Store(0)
	m.startNs.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime         time.Duration
	PassCount      uint64
	AvgPassTimeNs  int64
	MinPassTimeNs  int64
	MaxPassTimeNs  int64
	LastPassNs     int64
	StalePasses    uint64
	ChunkCount     uint64
	ChunkFailures  uint64
	FindingCount   uint64
	UpdatesApplied uint64
	ConfigReloads  uint64
}

// AvgPassMs returns the average pass duration in milliseconds.
func (s MetricsSnapshot) AvgPassMs() float64 {
	return float64(s.AvgPassTimeNs) / 1e6
}

// FailureRate returns the percentage of chunk analyses that failed.
func (s MetricsSnapshot) FailureRate() float64 {
	if s.ChunkCount == 0 {
		return 0
	}
	return float64(s.ChunkFailures) / float64(s.ChunkCount) * 100
}

// FindingsPerChunk returns the average finding count per analyzed chunk.
func (s MetricsSnapshot) FindingsPerChunk() float64 {
	if s.ChunkCount == 0 {
		return 0
	}
	return float64(s.FindingCount) / float64(s.ChunkCount)
}

// Timer provides a simple way to measure elapsed time.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer.
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMs returns the elapsed time in milliseconds.
func (t *Timer) ElapsedMs() float64 {
	return float64(t.Elapsed().Nanoseconds()) / 1e6
}

// Stop returns the elapsed time and resets the timer.
func (t *Timer) Stop() time.Duration {
	elapsed := t.Elapsed()
	t.start = time.Now()
	return elapsed
}

// checkerMetrics is the process-wide metrics instance.
var (
	checkerMetrics     *Metrics
	checkerMetricsOnce sync.Once
)

// GetMetrics returns the process-wide metrics.
func GetMetrics() *Metrics {
	checkerMetricsOnce.Do(func() {
		if checkerMetrics == nil {
			checkerMetrics = NewMetrics()
		}
	})
	return checkerMetrics
}

// SetMetrics sets the process-wide metrics.
func SetMetrics(m *Metrics) {
	checkerMetrics = m
}
