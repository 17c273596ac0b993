package codegen

import (
	"context"
	"fmt"
	"strings"

	"isaac/internal/driver"
	"isaac/internal/expression"
	"isaac/internal/ierrors"
	"isaac/internal/symbolic"
)

// ReduceOneD is the §4.3.3 template. It emits two kernels sharing one
// program: "prod" streams the input into per-group partial results in a
// workspace array, "reduce" collapses those partials into the final
// scalar. Index-producing reductions (argmax/argmin and their
// floating-point-aware variants) carry a parallel index array alongside
// the value array through both passes (supplemented feature, grounded on
// original_source/lib/templates/reduce_1d.cpp's two-parallel-slot local
// array and comparison/carry table).
type ReduceOneD struct {
	VWidth      int
	GroupSize   int
	NumGroups   int
	FetchPolicy FetchPolicy
}

func (t ReduceOneD) reduceOp(tree expression.Tree) expression.Token {
	return tree.At(tree.Root).Op
}

func (t ReduceOneD) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if err := universalLimits(t.LMemUsage(tree, dev), dev, t.VWidth); err != nil {
		return err
	}
	return workGroupSize(dev, t.GroupSize)
}

func (t ReduceOneD) InputSizes(tree expression.Tree) []int64 {
	return []int64{tree.At(tree.At(tree.Root).LHS).Shape.Product()}
}

// LMemUsage is the per-group local footprint: one slot for the running
// value, a second for the running index when op is index-producing.
func (t ReduceOneD) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64 {
	slots := int64(1)
	if t.reduceOp(tree).IsIndexProducing() {
		slots = 2
	}
	return int64(t.GroupSize) * slots * 8
}

func (t ReduceOneD) RegistersUsage(tree expression.Tree) int { return t.VWidth }

func (t ReduceOneD) TemporaryWorkspace(tree expression.Tree) int64 {
	op := t.reduceOp(tree)
	dtype := tree.Dtype()
	mult := int64(1)
	if op.IsIndexProducing() {
		mult = 2
	}
	return int64(t.NumGroups) * int64(dtype.Size()) * mult
}

func (t ReduceOneD) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	op := t.reduceOp(tree)
	prodName := "reduce1d_prod_" + suffix
	reduceName := "reduce1d_reduce_" + suffix
	childIdx := tree.At(tree.Root).LHS
	readExpr := linearReadExpr(table, tree, childIdx, "k")
	neutral := expression.NeutralElementForType(op.Type, tree.Dtype())
	reducer := op.Type.ReduceCSpelling()
	indexed := op.IsIndexProducing()

	// The index array, when present, lives in the same workspace buffer
	// as the value array, at a fixed offset of NumGroups elements (spec
	// §4.3.3 "doubled for index reductions to hold both value and index
	// arrays") - one kernel argument carries both, addressed by a cast.
	idxAt := func(i string) string {
		return fmt.Sprintf("(($GLOBAL $SIZE_T*)(partial+%d))[%s]", t.NumGroups, i)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T N, $GLOBAL %s *partial%s) {\n",
		prodName, tree.Dtype().String(), argDeclList(table, tree))
	fmt.Fprintf(&sb, "  $LOCAL %s buf[%d];\n", tree.Dtype().String(), t.GroupSize)
	if indexed {
		sb.WriteString("  $LOCAL $SIZE_T idxbuf[" + fmt.Sprint(t.GroupSize) + "];\n")
	}
	fmt.Fprintf(&sb, "  %s acc = %s;\n", tree.Dtype().String(), neutral)
	if indexed {
		sb.WriteString("  $SIZE_T accidx = 0;\n")
	}
	sb.WriteString("  for ($SIZE_T k = $LOCAL_IDX_0 + $GROUP_ID_0*" + fmt.Sprint(t.GroupSize) + "; k < N; k += $GLOBAL_SIZE_0) {\n")
	if indexed {
		fmt.Fprintf(&sb, "    %s v = %s;\n", tree.Dtype().String(), readExpr)
		fmt.Fprintf(&sb, "    if (%s(v, acc) != acc) { acc = v; accidx = k; }\n", reducer)
	} else {
		fmt.Fprintf(&sb, "    acc = %s(acc, %s);\n", reducer, readExpr)
	}
	sb.WriteString("  }\n")
	sb.WriteString("  buf[$LOCAL_IDX_0] = acc;\n")
	if indexed {
		sb.WriteString("  idxbuf[$LOCAL_IDX_0] = accidx;\n")
	}
	sb.WriteString("  $LOCAL_BARRIER;\n")
	fmt.Fprintf(&sb, "  for ($SIZE_T stride = %d/2; stride > 0; stride /= 2) {\n", t.GroupSize)
	sb.WriteString("    if ($LOCAL_IDX_0 < stride) {\n")
	if indexed {
		fmt.Fprintf(&sb, "      if (%s(buf[$LOCAL_IDX_0+stride], buf[$LOCAL_IDX_0]) != buf[$LOCAL_IDX_0]) { buf[$LOCAL_IDX_0] = buf[$LOCAL_IDX_0+stride]; idxbuf[$LOCAL_IDX_0] = idxbuf[$LOCAL_IDX_0+stride]; }\n", reducer)
	} else {
		fmt.Fprintf(&sb, "      buf[$LOCAL_IDX_0] = %s(buf[$LOCAL_IDX_0], buf[$LOCAL_IDX_0+stride]);\n", reducer)
	}
	sb.WriteString("    }\n    $LOCAL_BARRIER;\n  }\n")
	sb.WriteString("  if ($LOCAL_IDX_0 == 0) {\n")
	sb.WriteString("    partial[$GROUP_ID_0] = buf[0];\n")
	if indexed {
		fmt.Fprintf(&sb, "    %s = idxbuf[0];\n", idxAt("$GROUP_ID_0"))
	}
	sb.WriteString("  }\n}\n")

	fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T NG, $GLOBAL %s *partial%s) {\n",
		reduceName, tree.Dtype().String(), argDeclList(table, tree))
	fmt.Fprintf(&sb, "  $LOCAL %s buf[%d];\n", tree.Dtype().String(), t.GroupSize)
	if indexed {
		sb.WriteString("  $LOCAL $SIZE_T idxbuf[" + fmt.Sprint(t.GroupSize) + "];\n")
	}
	fmt.Fprintf(&sb, "  buf[$LOCAL_IDX_0] = $LOCAL_IDX_0 < %d ? partial[$LOCAL_IDX_0] : %s;\n", t.NumGroups, neutral)
	if indexed {
		fmt.Fprintf(&sb, "  idxbuf[$LOCAL_IDX_0] = $LOCAL_IDX_0 < %d ? %s : 0;\n", t.NumGroups, idxAt("$LOCAL_IDX_0"))
	}
	sb.WriteString("  $LOCAL_BARRIER;\n")
	fmt.Fprintf(&sb, "  for ($SIZE_T stride = %d/2; stride > 0; stride /= 2) {\n", t.GroupSize)
	sb.WriteString("    if ($LOCAL_IDX_0 < stride) {\n")
	if indexed {
		fmt.Fprintf(&sb, "      if (%s(buf[$LOCAL_IDX_0+stride], buf[$LOCAL_IDX_0]) != buf[$LOCAL_IDX_0]) { buf[$LOCAL_IDX_0] = buf[$LOCAL_IDX_0+stride]; idxbuf[$LOCAL_IDX_0] = idxbuf[$LOCAL_IDX_0+stride]; }\n", reducer)
	} else {
		fmt.Fprintf(&sb, "      buf[$LOCAL_IDX_0] = %s(buf[$LOCAL_IDX_0], buf[$LOCAL_IDX_0+stride]);\n", reducer)
	}
	sb.WriteString("    }\n    $LOCAL_BARRIER;\n  }\n")
	sb.WriteString("  if ($LOCAL_IDX_0 == 0) {\n")
	assignDest := destinationExpr(table)
	if indexed {
		fmt.Fprintf(&sb, "    %s = idxbuf[0];\n", assignDest)
	} else {
		fmt.Fprintf(&sb, "    %s = buf[0];\n", assignDest)
	}
	sb.WriteString("  }\n}\n")

	return substitute(sb.String(), b), []string{prodName, reduceName}
}

// linearReadExpr evaluates child's accessor against a single running
// linear index, decomposing it into (i,j) when the child is 2D. Used by
// the 1D-reduction templates, which always walk their input with one
// linear loop variable regardless of its declared rank.
func linearReadExpr(table *symbolic.Table, tree expression.Tree, childIdx int, linearVar string) string {
	obj := table.Objects[childIdx]
	shape := tree.At(childIdx).Shape
	if shape.Size() <= 1 {
		text, _ := obj.Evaluate("at", linearVar)
		return text
	}
	dim1 := fmt.Sprint(shape.Back())
	iExpr := fmt.Sprintf("((%s)/(%s))", linearVar, dim1)
	jExpr := fmt.Sprintf("((%s)%%(%s))", linearVar, dim1)
	text, _ := obj.Evaluate("at", iExpr, jExpr)
	return text
}

func (t ReduceOneD) Enqueue(ctx context.Context, program driver.Program, suffix string, a EnqueueArgs) (driver.Event, error) {
	prod, err := program.Kernel("reduce1d_prod_" + suffix)
	if err != nil {
		return nil, err
	}
	sizes := t.InputSizes(a.Tree)
	if _, err := bindCommonArgs(prod, sizes, a.Workspace.Buffer(), a); err != nil {
		return nil, err
	}
	rng := driver.NDRange1D(int64(t.GroupSize*t.NumGroups), int64(t.GroupSize))
	prodEvt, err := a.Queue.Enqueue(ctx, prod, rng, a.Deps)
	if err != nil {
		return nil, err
	}

	reduce, err := program.Kernel("reduce1d_reduce_" + suffix)
	if err != nil {
		return nil, err
	}
	if _, err := bindCommonArgs(reduce, []int64{int64(t.NumGroups)}, a.Workspace.Buffer(), a); err != nil {
		return nil, err
	}
	reduceRng := driver.NDRange1D(int64(t.GroupSize), int64(t.GroupSize))
	return a.Queue.Enqueue(ctx, reduce, reduceRng, []driver.Event{prodEvt})
}
