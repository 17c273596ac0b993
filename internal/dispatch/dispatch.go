// Package dispatch implements the runtime dispatcher of spec §4.4: given
// an annotated expression tree, it resolves the (kind, dtype) entry,
// compiles (or reuses) the cached program, selects a candidate template
// by the four-way precedence the spec lays out, binds arguments, and
// enqueues.
package dispatch

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"isaac/internal/cache"
	"isaac/internal/codegen"
	"isaac/internal/driver"
	"isaac/internal/expression"
	"isaac/internal/forest"
	"isaac/internal/ierrors"
	"isaac/internal/profile"
	"isaac/internal/scheduler"
	"isaac/internal/symbolic"
)

// WorkspaceCeiling is the per-operation temporary-workspace ceiling, in
// elements, spec §4.4 step 3 fixes at 10^6. Candidates report
// TemporaryWorkspace in bytes (codegen.Template's doc), so callers divide
// by the tree's element size before comparing against this constant.
const WorkspaceCeiling int64 = 1_000_000

// workspaceElements converts a candidate's byte-denominated
// TemporaryWorkspace into elements of tree's dtype, for comparison
// against WorkspaceCeiling.
func workspaceElements(tmpl codegen.Template, tree expression.Tree) int64 {
	size := int64(tree.Dtype().Size())
	if size == 0 {
		return tmpl.TemporaryWorkspace(tree)
	}
	return tmpl.TemporaryWorkspace(tree) / size
}

// Entry is one dispatch-table slot: the candidate templates for a
// (kind, dtype) pair and the predictor ranking them, if one was loaded.
type Entry struct {
	Candidates []codegen.Template
	Predictor  *forest.Forest
}

// Options controls candidate selection for one Execute call (spec §4.4
// step 3).
type Options struct {
	// Tune, when true, times every candidate and records the winner.
	Tune bool
	// Label, when >= 0, picks Candidates[Label] directly, bypassing
	// override map, tuning, and predictor.
	Label int
}

// DefaultOptions selects purely by override map / tuning / predictor,
// with no explicit label.
func DefaultOptions() Options { return Options{Label: -1} }

type entryKey struct {
	kind  scheduler.Kind
	dtype string
}

// Dispatcher holds the (kind, dtype) -> Entry table and the override map
// recorded by tuning runs, plus the shared program cache.
type Dispatcher struct {
	Backend  driver.Backend
	Profiles *profile.Database

	mu       sync.RWMutex
	entries  map[entryKey]Entry
	override map[string]int // "kind|dtype|size0,size1,..." -> candidate index
	programs *cache.ProgramCache
}

// New returns an empty Dispatcher; entries are added with Register.
func New(backend driver.Backend, profiles *profile.Database) *Dispatcher {
	return &Dispatcher{
		Backend:  backend,
		Profiles: profiles,
		entries:  make(map[entryKey]Entry),
		override: make(map[string]int),
		programs: cache.New(),
	}
}

// Register installs the candidate list and optional predictor for
// (kind, dtype).
func (d *Dispatcher) Register(kind scheduler.Kind, dtype string, entry Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[entryKey{kind, dtype}] = entry
}

// Lookup returns the registered Entry for (kind, dtype), if any; used by
// the facade to discover a tree's candidate sizes before dispatching.
func (d *Dispatcher) Lookup(kind scheduler.Kind, dtype string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[entryKey{kind, dtype}]
	return e, ok
}

func overrideKey(kind scheduler.Kind, dtype string, sizes []int64) string {
	var sb strings.Builder
	sb.WriteString(kind.String())
	sb.WriteByte('|')
	sb.WriteString(dtype)
	sb.WriteByte('|')
	for i, s := range sizes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(s, 10))
	}
	return sb.String()
}

// EnqueueEnv bundles the per-call queue, workspace, and dependency
// events an Execute call needs (the "env" of spec §4.4).
type EnqueueEnv struct {
	Queue     driver.CommandQueue
	Workspace driver.Workspace
	Deps      []driver.Event
}

// Instruction records one dispatched kernel for the events-out list spec
// §6's environment names: the buffers it read, the buffer it wrote (nil
// for a bare reduction/matmul materializing straight into a
// scheduler-allocated temporary, whose produced buffer the caller already
// knows out of band), and the completion event a later instruction reading
// Produced should depend on. Grounded on original_source's
// instruction::execute (events-out list) and scheduler::dag (buffer-overlap
// dependency tracking) — a caller building its own dependency graph across
// several Execute calls walks Consumed/Produced the same way dag::overlap
// does.
type Instruction struct {
	Kind     scheduler.Kind
	Consumed []driver.Buffer
	Produced driver.Buffer
	Event    driver.Event
}

// buffersOf resolves table's buffer-order node indices (minus the
// assignee, if any) to the underlying driver buffers consumed by this
// instruction, and the assignee's buffer, if one was annotated.
func buffersOf(table *symbolic.Table, tree expression.Tree) (consumed []driver.Buffer, produced driver.Buffer) {
	for _, idx := range table.BufferOrder {
		buf := tree.At(idx).Buffer
		if idx == table.AssigneeIndex {
			produced = buf
			continue
		}
		consumed = append(consumed, buf)
	}
	return consumed, produced
}

// Execute runs tree's root operation (spec §4.4): resolve the entry,
// compile (or reuse) the concatenated candidate program, select a
// candidate by the four-way precedence, bind arguments, and enqueue.
func (d *Dispatcher) Execute(ctx context.Context, kind scheduler.Kind, dtype string, tree expression.Tree, dev driver.DeviceInfo, env EnqueueEnv, opts Options) (*Instruction, error) {
	d.mu.RLock()
	entry, ok := d.entries[entryKey{kind, dtype}]
	d.mu.RUnlock()
	if !ok || len(entry.Candidates) == 0 {
		return nil, ierrors.New(ierrors.OperationNotSupported, "dispatch: no entry for kind=%s dtype=%s", kind, dtype)
	}

	table := symbolic.Annotate(tree)

	// Step 2: compile (or reuse) the program before selection, since a
	// cache hit/miss never depends on which candidate ultimately runs —
	// every candidate's source lives in the same compiled unit.
	program, err := d.compile(env.Queue, entry.Candidates, table, tree)
	if err != nil {
		return nil, err
	}

	idx, err := d.selectCandidate(ctx, kind, dtype, tree, dev, entry, table, env, opts, program)
	if err != nil {
		return nil, err
	}

	tmpl := entry.Candidates[idx]
	if elems := workspaceElements(tmpl, tree); elems > WorkspaceCeiling {
		return nil, ierrors.New(ierrors.RuntimeError,
			"dispatch: chosen template's workspace %d elements exceeds ceiling %d", elems, WorkspaceCeiling)
	}
	if err := tmpl.IsInvalid(tree, dev); err != nil {
		return nil, ierrors.Wrap(ierrors.CodeGenerationError, err, "dispatch: candidate %d is invalid for this device/tree", idx)
	}

	suffix := strconv.Itoa(idx)
	if ws := tmpl.TemporaryWorkspace(tree); ws > 0 {
		if err := env.Workspace.Reserve(ws); err != nil {
			return nil, ierrors.Wrap(ierrors.RuntimeError, err, "dispatch: reserving workspace")
		}
	}
	evt, err := tmpl.Enqueue(ctx, program, suffix, codegen.EnqueueArgs{
		Queue:     env.Queue,
		Table:     table,
		Tree:      tree,
		Workspace: env.Workspace,
		Deps:      env.Deps,
	})
	if err != nil {
		return nil, err
	}

	consumed, produced := buffersOf(table, tree)
	return &Instruction{Kind: kind, Consumed: consumed, Produced: produced, Event: evt}, nil
}

// compile ensures every candidate's kernel source lives in one cached
// program for this queue, keyed by the tree's structural hash (spec
// §4.5: "for each candidate template generate source under a unique
// suffix, concatenate, compile once, and insert").
func (d *Dispatcher) compile(queue driver.CommandQueue, candidates []codegen.Template, table *symbolic.Table, tree expression.Tree) (driver.Program, error) {
	return d.programs.GetOrCompile(queue, cache.Hash(tree), func() (driver.Program, error) {
		var src strings.Builder
		var names []string
		for i, tmpl := range candidates {
			suffix := strconv.Itoa(i)
			source, kernelNames := tmpl.Generate(d.Backend, table, tree, suffix)
			src.WriteString(source)
			src.WriteByte('\n')
			names = append(names, kernelNames...)
		}
		program, err := queue.Compile(src.String(), names)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.CodeGenerationError, err, "dispatch: compiling %d candidates", len(candidates))
		}
		return program, nil
	})
}

// selectCandidate implements spec §4.4 step 3's precedence.
func (d *Dispatcher) selectCandidate(ctx context.Context, kind scheduler.Kind, dtype string, tree expression.Tree, dev driver.DeviceInfo, entry Entry, table *symbolic.Table, env EnqueueEnv, opts Options, program driver.Program) (int, error) {
	if opts.Label >= 0 {
		if opts.Label >= len(entry.Candidates) {
			return 0, ierrors.New(ierrors.OperationNotSupported, "dispatch: label %d out of range (%d candidates)", opts.Label, len(entry.Candidates))
		}
		return opts.Label, nil
	}

	sizes := entry.Candidates[0].InputSizes(tree)
	key := overrideKey(kind, dtype, sizes)

	d.mu.RLock()
	ovIdx, ok := d.override[key]
	d.mu.RUnlock()
	if ok {
		return ovIdx, nil
	}

	if opts.Tune {
		winner, err := d.tune(ctx, entry.Candidates, table, tree, env, program)
		if err != nil {
			return 0, err
		}
		d.mu.Lock()
		d.override[key] = winner
		d.mu.Unlock()
		return winner, nil
	}

	if entry.Predictor != nil {
		probs := entry.Predictor.Predict(sizes)
		for _, candidate := range forest.RankedIndices(probs) {
			if candidate >= len(entry.Candidates) {
				continue
			}
			if entry.Candidates[candidate].IsInvalid(tree, dev) != nil {
				continue
			}
			if workspaceElements(entry.Candidates[candidate], tree) <= WorkspaceCeiling {
				return candidate, nil
			}
		}
		return 0, ierrors.New(ierrors.RuntimeError, "dispatch: every ranked candidate is invalid or exceeds the workspace ceiling")
	}

	for i, candidate := range entry.Candidates {
		if candidate.IsInvalid(tree, dev) == nil && workspaceElements(candidate, tree) <= WorkspaceCeiling {
			return i, nil
		}
	}
	return 0, ierrors.New(ierrors.RuntimeError, "dispatch: no valid candidate for this device/tree")
}

// tune times every candidate once, synchronizing after each launch, and
// returns the index of the fastest (spec §4.4 step 3 "timing uses events
// and synchronizes once per candidate, with an exception-safe INF on
// compile/launch failure").
func (d *Dispatcher) tune(ctx context.Context, candidates []codegen.Template, table *symbolic.Table, tree expression.Tree, env EnqueueEnv, program driver.Program) (int, error) {
	best := -1
	var bestNanos int64
	for i, tmpl := range candidates {
		nanos, err := timeCandidate(ctx, i, tmpl, table, tree, env, program)
		if err != nil {
			continue // exception-safe INF: this candidate loses, never aborts tuning
		}
		if best == -1 || nanos < bestNanos {
			best, bestNanos = i, nanos
		}
	}
	if best == -1 {
		return 0, ierrors.New(ierrors.RuntimeError, "dispatch: every candidate failed during tuning")
	}
	return best, nil
}

func timeCandidate(ctx context.Context, idx int, tmpl codegen.Template, table *symbolic.Table, tree expression.Tree, env EnqueueEnv, program driver.Program) (int64, error) {
	suffix := strconv.Itoa(idx)
	evt, err := tmpl.Enqueue(ctx, program, suffix, codegen.EnqueueArgs{
		Queue: env.Queue, Table: table, Tree: tree, Workspace: env.Workspace, Deps: env.Deps,
	})
	if err != nil {
		return 0, err
	}
	if err := evt.Wait(); err != nil {
		return 0, err
	}
	if err := env.Queue.Synchronize(); err != nil {
		return 0, err
	}
	return evt.ElapsedNanos()
}
