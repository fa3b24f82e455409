package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/segment"
)

// makeChunks builds n contiguous chunks of the given size with
// synthetic text.
func makeChunks(n, size int) []segment.Chunk {
	chunks := make([]segment.Chunk, n)
	for i := range chunks {
		chunks[i] = segment.Chunk{
			ID:    fmt.Sprintf("chunk-%d", i),
			Text:  strings.Repeat("x", size),
			Start: i * size,
			End:   (i + 1) * size,
			Index: i,
			Total: n,
		}
	}
	return chunks
}

func noFindings(context.Context, segment.Chunk) ([]analyze.Finding, error) {
	return nil, nil
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		analyzer analyze.Analyzer
		opts     []Option
		wantErr  error
	}{
		{
			name:    "nil analyzer",
			wantErr: ErrNilAnalyzer,
		},
		{
			name:     "zero concurrency",
			analyzer: analyze.NewFunc("test", noFindings),
			opts:     []Option{WithMaxConcurrency(0)},
			wantErr:  ErrInvalidConcurrency,
		},
		{
			name:     "negative concurrency",
			analyzer: analyze.NewFunc("test", noFindings),
			opts:     []Option{WithMaxConcurrency(-3)},
			wantErr:  ErrInvalidConcurrency,
		},
		{
			name:     "negative delay",
			analyzer: analyze.NewFunc("test", noFindings),
			opts:     []Option{WithBackgroundDelay(-time.Second)},
			wantErr:  ErrNegativeDelay,
		},
		{
			name:     "defaults",
			analyzer: analyze.NewFunc("test", noFindings),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.analyzer, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if d.maxConcurrency != DefaultMaxConcurrency {
				t.Errorf("maxConcurrency = %d, want %d", d.maxConcurrency, DefaultMaxConcurrency)
			}
			if d.backgroundDelay != DefaultBackgroundDelay {
				t.Errorf("backgroundDelay = %v, want %v", d.backgroundDelay, DefaultBackgroundDelay)
			}
		})
	}
}

func TestDispatcher_EmptyChunks(t *testing.T) {
	d, err := New(analyze.NewFunc("test", noFindings))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	run, err := d.Dispatch(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatal("empty run did not settle within timeout")
	}
	if got := run.Wait(); len(got) != 0 {
		t.Errorf("Wait() returned %d findings, want 0", len(got))
	}
	if _, open := <-run.Results(); open {
		t.Error("expected Results() to be closed")
	}
	if p := run.Progress(); !p.Done() || p.Total != 0 {
		t.Errorf("Progress() = %+v, want settled with Total 0", p)
	}
}

func TestDispatcher_ConcurrencyCap(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	analyzer := analyze.NewFunc("slow", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})

	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	start := time.Now()
	run, err := d.Dispatch(context.Background(), makeChunks(5, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	run.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrency %d exceeded cap 2", peak)
	}
	// Five 50ms chunks at cap 2 run as three waves: serial execution
	// would reach peak 1, uncapped would finish in one wave. Only the
	// lower bound is timed; an upper bound flakes on loaded machines.
	if peak != 2 {
		t.Errorf("peak concurrency %d, want the cap of 2 reached", peak)
	}
	if elapsed < 140*time.Millisecond {
		t.Errorf("5 chunks at cap 2 finished in %v, want ~3 waves of 50ms", elapsed)
	}
	if p := run.Progress(); p.Completed != 5 || p.Processing != 0 {
		t.Errorf("Progress() = %+v, want 5 completed, 0 processing", p)
	}
}

func TestDispatcher_StreamsResults(t *testing.T) {
	release := make(chan struct{})
	analyzer := analyze.NewFunc("gated", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		if c.Index == 0 {
			return nil, nil
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	})

	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	run, err := d.Dispatch(context.Background(), makeChunks(4, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	// The first chunk's result must arrive while the rest are still
	// gated.
	select {
	case res := <-run.Results():
		if res.ChunkIndex != 0 {
			t.Errorf("first streamed result is chunk %d, want 0", res.ChunkIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("no result streamed before batch completion")
	}

	select {
	case <-run.Done():
		t.Fatal("run settled while chunks were still gated")
	default:
	}

	close(release)
	run.Wait()

	seen := 1
	for range run.Results() {
		seen++
	}
	if seen != 4 {
		t.Errorf("streamed %d results, want 4", seen)
	}
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	analyzer := analyze.NewFunc("flaky", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		switch c.Index {
		case 1:
			return nil, errors.New("boom")
		case 2:
			panic("analyzer exploded")
		default:
			return []analyze.Finding{{
				Category: "test",
				Message:  "found",
				Severity: analyze.SeverityWarning,
				Start:    0,
				End:      3,
				Matched:  "xxx",
			}}, nil
		}
	})

	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	run, err := d.Dispatch(context.Background(), makeChunks(4, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	byChunk := map[int]Result{}
	for res := range run.Results() {
		byChunk[res.ChunkIndex] = res
	}
	if len(byChunk) != 4 {
		t.Fatalf("got results for %d chunks, want 4", len(byChunk))
	}
	if byChunk[1].Err == nil {
		t.Error("chunk 1 should report its analyzer error")
	}
	if byChunk[2].Err == nil || !strings.Contains(byChunk[2].Err.Error(), "panic") {
		t.Errorf("chunk 2 error = %v, want recovered panic", byChunk[2].Err)
	}
	for _, idx := range []int{0, 3} {
		if byChunk[idx].Err != nil {
			t.Errorf("chunk %d failed: %v", idx, byChunk[idx].Err)
		}
		if len(byChunk[idx].Findings) != 1 {
			t.Errorf("chunk %d has %d findings, want 1", idx, len(byChunk[idx].Findings))
		}
	}

	final := run.Wait()
	if len(final) != 2 {
		t.Errorf("Wait() returned %d findings, want 2 from the healthy chunks", len(final))
	}
	if p := run.Progress(); p.Failed != 2 || p.Completed != 4 {
		t.Errorf("Progress() = %+v, want 4 completed with 2 failed", p)
	}
	if s := d.Stats(); s.Failures != 2 || s.Chunks != 4 || s.Runs != 1 {
		t.Errorf("Stats() = %+v, want 1 run, 4 chunks, 2 failures", s)
	}
}

func TestDispatcher_PriorityBeforeBackground(t *testing.T) {
	var mu sync.Mutex
	started := map[int]time.Time{}

	analyzer := analyze.NewFunc("timed", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		mu.Lock()
		started[c.Index] = time.Now()
		mu.Unlock()
		return nil, nil
	})

	const delay = 80 * time.Millisecond
	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(delay))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	chunks := makeChunks(4, 10)
	visible := &segment.Span{Start: 20, End: 30} // chunk 2 only
	begin := time.Now()
	run, err := d.Dispatch(context.Background(), chunks, visible)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	run.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(started) != 4 {
		t.Fatalf("analyzed %d chunks, want 4", len(started))
	}
	for _, idx := range []int{0, 1, 3} {
		if started[idx].Before(started[2]) {
			t.Errorf("background chunk %d started before visible chunk 2", idx)
		}
		if gap := started[idx].Sub(begin); gap < delay-20*time.Millisecond {
			t.Errorf("background chunk %d started %v after dispatch, want ~%v", idx, gap, delay)
		}
	}
	if gap := started[2].Sub(begin); gap > delay {
		t.Errorf("visible chunk started after %v, should not wait for the background delay", gap)
	}
}

func TestDispatcher_NilVisibleDispatchesImmediately(t *testing.T) {
	analyzer := analyze.NewFunc("instant", noFindings)

	// With no visible range the delay must not apply to anything.
	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(time.Minute))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	start := time.Now()
	run, err := d.Dispatch(context.Background(), makeChunks(4, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	run.Wait()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("nil visible range took %v, background delay was applied", elapsed)
	}

	order := make([]int, 0, 4)
	for res := range run.Results() {
		order = append(order, res.ChunkIndex)
	}
	if len(order) != 4 {
		t.Errorf("got %d results, want 4", len(order))
	}
}

func TestDispatcher_MapsAndClampsFindings(t *testing.T) {
	analyzer := analyze.NewFunc("sloppy", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		return []analyze.Finding{
			{Category: "good", Start: 2, End: 5, Matched: "xxx"},
			{Category: "under", Start: -5, End: 3, Matched: "xxx"},
			{Category: "beyond", Start: 900, End: 905, Matched: "xxx"},
		}, nil
	})

	d, err := New(analyzer, WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	chunks := makeChunks(1, 10)
	chunks[0].Start, chunks[0].End = 100, 110

	run, err := d.Dispatch(context.Background(), chunks, nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	final := run.Wait()

	// The beyond-range finding collapses to an empty span and is
	// dropped; the others are clamped into the chunk.
	if len(final) != 2 {
		t.Fatalf("Wait() returned %d findings, want 2", len(final))
	}
	want := map[string]segment.Span{
		"good":  {Start: 102, End: 105},
		"under": {Start: 100, End: 103},
	}
	for _, f := range final {
		span, ok := want[f.Category]
		if !ok {
			t.Errorf("unexpected finding %q survived", f.Category)
			continue
		}
		if f.Span() != span {
			t.Errorf("%s mapped to %v, want %v", f.Category, f.Span(), span)
		}
		if f.ID == "" {
			t.Errorf("%s finding has no derived ID", f.Category)
		}
	}
}

func TestDispatcher_DeterministicAcrossRuns(t *testing.T) {
	analyzer := analyze.NewFunc("fixed", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		return []analyze.Finding{{
			Category: "test",
			Message:  "always here",
			Start:    1,
			End:      4,
			Matched:  c.Text[1:4],
		}}, nil
	})

	d, err := New(analyzer, WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	chunks := makeChunks(5, 10)
	first, err := d.Dispatch(context.Background(), chunks, nil)
	if err != nil {
		t.Fatalf("first Dispatch() failed: %v", err)
	}
	second, err := d.Dispatch(context.Background(), chunks, nil)
	if err != nil {
		t.Fatalf("second Dispatch() failed: %v", err)
	}

	a, b := first.Wait(), second.Wait()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical dispatches produced different findings:\n%v\n%v", a, b)
	}
}

func TestRun_CancelDiscardsResults(t *testing.T) {
	entered := make(chan struct{}, 4)
	analyzer := analyze.NewFunc("blocked", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	run, err := d.Dispatch(context.Background(), makeChunks(4, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	// Wait for the first wave to be in flight, then supersede it.
	<-entered
	<-entered
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled run did not settle")
	}
	if got := run.Wait(); len(got) != 0 {
		t.Errorf("cancelled run returned %d findings, want 0", len(got))
	}
	for res := range run.Results() {
		t.Errorf("cancelled run emitted result for chunk %d", res.ChunkIndex)
	}
	if p := run.Progress(); p.Completed != 0 {
		t.Errorf("cancelled run counted %d completions, want 0", p.Completed)
	}
}

func TestRun_ProgressCounters(t *testing.T) {
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	analyzer := analyze.NewFunc("gated", func(ctx context.Context, c segment.Chunk) ([]analyze.Finding, error) {
		started <- struct{}{}
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	d, err := New(analyzer, WithMaxConcurrency(2), WithBackgroundDelay(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	run, err := d.Dispatch(context.Background(), makeChunks(3, 10), nil)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	<-started
	<-started
	if p := run.Progress(); p.Processing != 2 || p.Completed != 0 || p.Total != 3 {
		t.Errorf("mid-flight Progress() = %+v, want 2 processing of 3", p)
	}

	close(release)
	run.Wait()
	if p := run.Progress(); p.Completed != 3 || p.Processing != 0 || !p.Done() {
		t.Errorf("settled Progress() = %+v, want 3 completed", p)
	}
	if p := run.Progress(); p.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", p.Remaining())
	}
}
