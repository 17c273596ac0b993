// Package isaac is the root facade: it wires the scheduler, symbolic
// annotation, code-generation templates, and runtime dispatcher into the
// single Execute entry point a caller drives an expression tree through.
package isaac

import (
	"context"

	"isaac/internal/dispatch"
	"isaac/internal/driver"
	"isaac/internal/expression"
	"isaac/internal/ierrors"
	"isaac/internal/scheduler"
	"isaac/internal/tuple"
)

// Environment bundles the queue an Execute call submits on, the
// workspace scratch buffer reductions and depth-split matrix products
// reserve against, and any events the caller wants the first kernel to
// wait on.
type Environment struct {
	Queue     driver.CommandQueue
	Workspace driver.Workspace
	Deps      []driver.Event
}

// Launcher is the caller-facing handle: a dispatcher already populated
// by Register, paired with the device its candidates were profiled for.
type Launcher struct {
	Dispatcher *dispatch.Dispatcher
	Device     driver.Device

	// Events accumulates one Instruction per Execute call this Launcher
	// has driven (each materialized breakpoint, then the root dispatch),
	// in submission order: the events-out list spec §6's environment
	// names.
	Events []*dispatch.Instruction
}

// NewLauncher returns a Launcher for dev, whose dispatcher must already
// have candidates registered for it (see Register).
func NewLauncher(dispatcher *dispatch.Dispatcher, dev driver.Device) *Launcher {
	return &Launcher{Dispatcher: dispatcher, Device: dev}
}

// Execute runs tree's root operation (spec §4.2/§4.4 end to end):
// schedule materialization breakpoints, recursively execute and
// materialize each one into a fresh temporary, then dispatch the
// (possibly rewritten) root. The returned Instruction is also appended
// to l.Events, alongside one Instruction per materialized breakpoint, so
// a caller building its own dependency graph across several Execute
// calls has the full events-out list spec §6's environment names (spec
// §6 supplement #2; grounded on original_source's
// runtime/instruction.cpp and scheduler/dag.cpp).
func (l *Launcher) Execute(ctx context.Context, tree expression.Tree, env Environment, opts dispatch.Options) (*dispatch.Instruction, error) {
	plan, err := scheduler.Schedule(tree)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.SemanticError, err, "isaac: scheduling")
	}

	for _, bp := range plan.Breakpoints {
		if _, err := l.materialize(ctx, tree, bp, env, opts); err != nil {
			return nil, err
		}
	}

	dtype := tree.Dtype().String()
	instr, err := l.Dispatcher.Execute(ctx, plan.RootKind, dtype, tree, l.Device.Info(), dispatch.EnqueueEnv{
		Queue: env.Queue, Workspace: env.Workspace, Deps: env.Deps,
	}, opts)
	if err != nil {
		return nil, err
	}
	l.Events = append(l.Events, instr)
	return instr, nil
}

// materialize evaluates the sub-tree rooted at bp into a freshly
// allocated buffer, then overwrites tree.Nodes[bp] in place with a
// DENSE_ARRAY node reading that buffer. Because Tree.Nodes is shared
// backing storage, this rewrite is visible to every ancestor of bp
// without rebasing a single index (spec.md §9's "cheap concatenation"
// note cuts both ways: splicing is an append, replacing a sub-tree with
// its materialized result is a single slice write).
func (l *Launcher) materialize(ctx context.Context, tree expression.Tree, bp int, env Environment, opts dispatch.Options) (*dispatch.Instruction, error) {
	sub := expression.Tree{Nodes: tree.Nodes, Root: bp, Context: tree.Context}
	shape := sub.Shape()
	dtype := sub.Dtype()

	buf, err := tree.Context.Alloc(shape.Product() * int64(dtype.Size()))
	if err != nil {
		return nil, ierrors.Wrap(ierrors.RuntimeError, err, "isaac: allocating temporary for node %d", bp)
	}

	destNode := expression.DenseArray(dtype, shape, contiguousStride(shape), 0, buf)
	dest := expression.Leaf(tree.Context, destNode)

	assignTree, err := expression.Assign(dest, sub)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.SemanticError, err, "isaac: building temporary assignment for node %d", bp)
	}

	instr, err := l.Execute(ctx, assignTree, env, opts)
	if err != nil {
		return nil, err
	}

	tree.Nodes[bp] = destNode
	return instr, nil
}

// contiguousStride returns the row-major strides matching shape, the
// layout every scheduler-allocated temporary uses.
func contiguousStride(shape tuple.Tuple) tuple.Tuple {
	stride := make(tuple.Tuple, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	return stride
}
