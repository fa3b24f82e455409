package coordinate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type appliedCall struct {
	content string
	notify  bool
}

// fakeDoc is an in-memory Document recording every write.
type fakeDoc struct {
	mu       sync.Mutex
	content  string
	applies  []appliedCall
	failWith error
}

func (d *fakeDoc) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

func (d *fakeDoc) Apply(content string, notify bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		err := d.failWith
		d.failWith = nil
		return err
	}
	d.content = content
	d.applies = append(d.applies, appliedCall{content: content, notify: notify})
	return nil
}

func (d *fakeDoc) calls() []appliedCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]appliedCall, len(d.applies))
	copy(out, d.applies)
	return out
}

func (d *fakeDoc) applyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.applies)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

func startCoordinator(t *testing.T, doc Document, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(doc, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx) // may already be stopped by the test body
	})
	return c
}

func TestNew_Validation(t *testing.T) {
	doc := &fakeDoc{}
	tests := []struct {
		name    string
		doc     Document
		opts    []Option
		wantErr error
	}{
		{name: "nil document", wantErr: ErrNilDocument},
		{name: "negative debounce", doc: doc, opts: []Option{WithDebounceWindow(-time.Second)}, wantErr: ErrInvalidDebounce},
		{name: "negative pause", doc: doc, opts: []Option{WithDrainPause(-time.Millisecond)}, wantErr: ErrInvalidPause},
		{name: "zero capacity", doc: doc, opts: []Option{WithQueueCapacity(0)}, wantErr: ErrInvalidCapacity},
		{name: "defaults", doc: doc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.doc, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if c.debounceWindow != DefaultDebounceWindow {
				t.Errorf("debounceWindow = %v, want %v", c.debounceWindow, DefaultDebounceWindow)
			}
			if c.drainPause != DefaultDrainPause {
				t.Errorf("drainPause = %v, want %v", c.drainPause, DefaultDrainPause)
			}
			if c.queueCapacity != DefaultQueueCapacity {
				t.Errorf("queueCapacity = %d, want %d", c.queueCapacity, DefaultQueueCapacity)
			}
		})
	}
}

func TestCoordinator_StartStop(t *testing.T) {
	c, err := New(&fakeDoc{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "early"}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Submit() before Start = %v, want ErrNotRunning", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !c.IsRunning() {
		t.Error("expected coordinator to be running after Start()")
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if c.IsRunning() {
		t.Error("expected coordinator to not be running after Stop()")
	}
	if err := c.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() = %v, want ErrNotRunning", err)
	}
	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "late"}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Submit() after Stop = %v, want ErrNotRunning", err)
	}
}

func TestCoordinator_RejectsUnknownKind(t *testing.T) {
	c := startCoordinator(t, &fakeDoc{})
	if err := c.Submit(Request{Content: "zero kind"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Submit() with zero kind = %v, want ErrUnknownKind", err)
	}
}

func TestCoordinator_HumanEditAppliesImmediately(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc, WithDebounceWindow(30*time.Millisecond))

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "typed text"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "typed text" },
		"human edit was not applied")

	calls := doc.calls()
	if len(calls) != 1 || !calls[0].notify {
		t.Errorf("applies = %+v, want one notifying write", calls)
	}
	if s := c.Stats(); s.Applied != 1 {
		t.Errorf("Stats().Applied = %d, want 1", s.Applied)
	}
	// The hold releases on its own once the window passes.
	waitFor(t, time.Second, func() bool { return c.State() == StateIdle },
		"coordinator did not return to idle after the debounce window")
}

func TestCoordinator_IdleNonHumanAppliesDirectly(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc)

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "reformatted"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "reformatted" },
		"idle coordinator did not apply a background update directly")
	if p := c.Pending(); p != 0 {
		t.Errorf("Pending() = %d, want 0", p)
	}
}

func TestCoordinator_TypingHoldDefersOthers(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc, WithDebounceWindow(400*time.Millisecond))

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "draft"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "draft" },
		"human edit was not applied")

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "formatted"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Pending() == 1 },
		"background update was not queued during typing hold")

	time.Sleep(100 * time.Millisecond)
	if got := doc.Content(); got != "draft" {
		t.Errorf("content = %q during typing hold, background update applied too early", got)
	}
	if s := c.State(); s != StateTypingHold {
		t.Errorf("State() = %s during hold, want typing-hold", s)
	}

	waitFor(t, 2*time.Second, func() bool { return doc.Content() == "formatted" },
		"queued update was not applied after the hold expired")
}

func TestCoordinator_HumanEditPreemptsQueued(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc, WithDebounceWindow(250*time.Millisecond))

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "v1"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "v1" },
		"first human edit was not applied")

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "reformatted v1"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Pending() == 1 },
		"reformat was not queued")

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "v2"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "v2" },
		"second human edit was not applied")

	// Let the hold expire; the evicted reformat must never surface.
	time.Sleep(400 * time.Millisecond)
	if got := doc.Content(); got != "v2" {
		t.Errorf("content = %q, stale reformat overwrote the fresher human edit", got)
	}
	calls := doc.calls()
	if len(calls) != 2 || calls[0].content != "v1" || calls[1].content != "v2" {
		t.Errorf("applies = %+v, want exactly [v1 v2]", calls)
	}
	if s := c.Stats(); s.Preempted != 1 || s.Pending != 0 {
		t.Errorf("Stats() = %+v, want 1 preempted and empty queue", s)
	}
}

func TestCoordinator_DrainOrderRespectsPriority(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc,
		WithDebounceWindow(300*time.Millisecond),
		WithDrainPause(10*time.Millisecond),
	)

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "base"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "base" },
		"human edit was not applied")

	// Arrival order deliberately inverts priority order.
	for _, req := range []Request{
		{Kind: KindBackgroundReformat, Content: "reformat-1"},
		{Kind: KindBackgroundReformat, Content: "reformat-2"},
		{Kind: KindExternalSuggestion, Content: "suggestion"},
		{Kind: KindRestoreHistory, Content: "restore"},
	} {
		if err := c.Submit(req); err != nil {
			t.Fatalf("Submit(%s) failed: %v", req.Kind, err)
		}
	}
	waitFor(t, time.Second, func() bool { return c.Pending() == 4 },
		"updates were not queued during typing hold")

	waitFor(t, 3*time.Second, func() bool { return doc.applyCount() == 5 },
		"queue did not drain")

	want := []string{"base", "restore", "suggestion", "reformat-1", "reformat-2"}
	calls := doc.calls()
	for i, call := range calls {
		if call.content != want[i] {
			t.Errorf("apply %d = %q, want %q", i, call.content, want[i])
		}
	}
}

func TestCoordinator_QueueEviction(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc,
		WithDebounceWindow(300*time.Millisecond),
		WithDrainPause(5*time.Millisecond),
		WithQueueCapacity(2),
	)

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "base"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "base" },
		"human edit was not applied")

	for _, content := range []string{"reformat-1", "reformat-2", "reformat-3"} {
		if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: content}); err != nil {
			t.Fatalf("Submit(%s) failed: %v", content, err)
		}
	}
	waitFor(t, time.Second, func() bool { return c.Stats().Evicted == 1 },
		"full queue did not evict")

	// A higher-priority arrival displaces another reformat rather than
	// being dropped itself.
	if err := c.Submit(Request{Kind: KindRestoreHistory, Content: "restore"}); err != nil {
		t.Fatalf("Submit(restore) failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Stats().Evicted == 2 },
		"higher-priority arrival did not displace a reformat")

	waitFor(t, 3*time.Second, func() bool { return doc.applyCount() == 3 },
		"queue did not drain")
	want := []string{"base", "restore", "reformat-3"}
	calls := doc.calls()
	for i, call := range calls {
		if call.content != want[i] {
			t.Errorf("apply %d = %q, want %q", i, call.content, want[i])
		}
	}
}

func TestCoordinator_IdempotenceGuard(t *testing.T) {
	doc := &fakeDoc{content: "unchanged"}
	var callbacks int
	var mu sync.Mutex
	c := startCoordinator(t, doc, WithOnApplied(func(Request) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	}))

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "unchanged"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Stats().Skipped == 1 },
		"identical content was not skipped")

	if n := doc.applyCount(); n != 0 {
		t.Errorf("document written %d times for identical content, want 0", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if callbacks != 0 {
		t.Errorf("OnApplied fired %d times for a skipped write, want 0", callbacks)
	}
}

func TestCoordinator_ApplyFailureIsolated(t *testing.T) {
	doc := &fakeDoc{failWith: errors.New("disk full")}
	c := startCoordinator(t, doc)

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "first"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Stats().Failures == 1 },
		"write failure was not recorded")

	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "second"}); err != nil {
		t.Fatalf("Submit() after failure = %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "second" },
		"coordinator did not recover after a failed write")
}

func TestCoordinator_SilentWriteSkipsNotify(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc, WithDebounceWindow(10*time.Millisecond))

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "on screen already", Silent: true}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.applyCount() == 1 },
		"silent edit was not applied")

	if calls := doc.calls(); calls[0].notify {
		t.Error("silent request notified listeners")
	}
}

func TestCoordinator_OnApplied(t *testing.T) {
	doc := &fakeDoc{}
	got := make(chan Request, 1)
	c := startCoordinator(t, doc, WithOnApplied(func(req Request) {
		got <- req
	}))

	if err := c.Submit(Request{Kind: KindReplaceDocument, Content: "fresh", Source: "loader"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	select {
	case req := <-got:
		if req.Kind != KindReplaceDocument || req.Content != "fresh" || req.Source != "loader" {
			t.Errorf("OnApplied received %+v", req)
		}
		if req.ID == "" {
			t.Error("request reached OnApplied without an assigned ID")
		}
	case <-time.After(time.Second):
		t.Fatal("OnApplied was not invoked")
	}
}

func TestCoordinator_StopDiscardsPending(t *testing.T) {
	doc := &fakeDoc{}
	c := startCoordinator(t, doc, WithDebounceWindow(300*time.Millisecond))

	if err := c.Submit(Request{Kind: KindHumanEdit, Content: "typed"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return doc.Content() == "typed" },
		"human edit was not applied")
	if err := c.Submit(Request{Kind: KindBackgroundReformat, Content: "never lands"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Pending() == 1 },
		"reformat was not queued")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	time.Sleep(400 * time.Millisecond)
	if got := doc.Content(); got != "typed" {
		t.Errorf("content = %q after Stop, pending update was applied", got)
	}
}
