package lua

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/segment"
)

// DefaultCallTimeout bounds one check call. A rule that loops forever is
// aborted at the deadline and reported as a rule failure.
const DefaultCallTimeout = 5 * time.Second

// rule pairs a manifest entry with its compiled check function.
type rule struct {
	spec RuleSpec
	fn   *glua.LFunction
}

// Engine runs Lua rule scripts as an analyzer.
//
// gopher-lua states are not goroutine-safe, so the engine serializes all
// rule execution behind one mutex. Concurrent Analyze calls queue; the
// deadline applies per check call, not per chunk.
type Engine struct {
	mu sync.Mutex // serializes all access to L

	// Configuration
	dir         string
	callTimeout time.Duration

	// State
	L      *glua.LState
	rules  []rule
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCallTimeout bounds each check call. Zero disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.callTimeout = d
		}
	}
}

// New loads the rule set in dir into a sandboxed Lua state. Every
// enabled rule file must load cleanly and define check, or New fails.
func New(dir string, opts ...Option) (*Engine, error) {
	if dir == "" {
		return nil, ErrNoRulesDir
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dir:         dir,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.L = newSandboxedState()
	if err := e.loadRules(manifest); err != nil {
		e.L.Close()
		return nil, err
	}
	return e, nil
}

// newSandboxedState creates a Lua state with only safe libraries open.
// io, os, debug, and package stay closed.
func newSandboxedState() *glua.LState {
	L := glua.NewState(glua.Options{SkipOpenLibs: true})

	glua.OpenBase(L)
	glua.OpenTable(L)
	glua.OpenString(L)
	glua.OpenMath(L)

	// The load family can pull arbitrary code into the state.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, glua.LNil)
	}
	return L
}

// loadRules executes each enabled rule file and captures its check
// function. The check global is cleared after capture so rule files
// cannot shadow each other.
func (e *Engine) loadRules(m *Manifest) error {
	for _, spec := range m.Enabled() {
		path := filepath.Join(e.dir, spec.File)
		err := e.withDeadline(context.Background(), func() error {
			return e.L.DoFile(path)
		})
		if err != nil {
			return fmt.Errorf("loading rule %s: %w", spec.ID, err)
		}

		fn, ok := e.L.GetGlobal("check").(*glua.LFunction)
		if !ok {
			return fmt.Errorf("%w (id: %s)", ErrMissingCheck, spec.ID)
		}
		e.L.SetGlobal("check", glua.LNil)

		e.rules = append(e.rules, rule{spec: spec, fn: fn})
	}
	return nil
}

// Name implements analyze.Analyzer.
func (e *Engine) Name() string { return "lua" }

// Rules returns the loaded rule IDs in manifest order.
func (e *Engine) Rules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.spec.ID
	}
	return ids
}

// Analyze implements analyze.Analyzer. Every loaded rule runs against
// the chunk in manifest order; the first rule failure aborts the pass.
func (e *Engine) Analyze(ctx context.Context, chunk segment.Chunk) ([]analyze.Finding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	meta := chunkMeta(chunk)
	var findings []analyze.Finding
	for _, r := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ruleMeta, _ := sjson.Set(meta, "rule_id", r.spec.ID)
		out, err := e.call(ctx, r.fn, chunk.Text, ruleMeta)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.spec.ID, err)
		}

		decoded, err := decodeFindings(out, r.spec, chunk)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.spec.ID, err)
		}
		findings = append(findings, decoded...)
	}
	return findings, nil
}

// Close releases the Lua state. Closing a closed engine is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.L.Close()
	e.closed = true
	return nil
}

// chunkMeta builds the JSON metadata object handed to every rule.
func chunkMeta(chunk segment.Chunk) string {
	meta, _ := sjson.Set("", "chunk_id", chunk.ID)
	meta, _ = sjson.Set(meta, "chunk_index", chunk.Index)
	meta, _ = sjson.Set(meta, "chunk_start", chunk.Start)
	meta, _ = sjson.Set(meta, "chunk_end", chunk.End)
	return meta
}

// call invokes one check function and returns its raw result. A nil
// return becomes the empty string.
func (e *Engine) call(ctx context.Context, fn *glua.LFunction, text, meta string) (string, error) {
	var ret glua.LValue
	err := e.withDeadline(ctx, func() error {
		top := e.L.GetTop()
		defer e.L.SetTop(top)

		e.L.Push(fn)
		e.L.Push(glua.LString(text))
		e.L.Push(glua.LString(meta))
		if err := e.L.PCall(2, 1, nil); err != nil {
			return err
		}
		ret = e.L.Get(-1)
		return nil
	})
	if err != nil {
		return "", err
	}

	switch v := ret.(type) {
	case *glua.LNilType:
		return "", nil
	case glua.LString:
		return string(v), nil
	default:
		return "", fmt.Errorf("%w: check returned %s", ErrBadRuleOutput, ret.Type())
	}
}

// withDeadline runs fn against the state under the call timeout, with
// panic recovery. gopher-lua raises Go panics on some error paths.
func (e *Engine) withDeadline(ctx context.Context, fn func() error) (err error) {
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
