package codegen

import (
	"context"
	"fmt"
	"strings"

	"isaac/internal/driver"
	"isaac/internal/expression"
	"isaac/internal/symbolic"
)

// ReduceTwoD is the §4.3.4 template, covering both row reduction
// (FamilyReduceRows, one output per row) and column reduction
// (FamilyReduceColumns, the transposed analogue, col_vwidth fixed at 1).
// Index-producing variants carry a parallel index array through both
// passes exactly as ReduceOneD does (supplemented from the same
// original_source/lib/templates/reduce_1d.cpp carry table, generalized
// to two dimensions).
type ReduceTwoD struct {
	VWidth      int
	LS0, LS1    int
	NG0, NG1    int
	FetchPolicy FetchPolicy
}

func (t ReduceTwoD) reduceOp(tree expression.Tree) expression.Token {
	return tree.At(tree.Root).Op
}

func (t ReduceTwoD) isRows(tree expression.Tree) bool {
	return t.reduceOp(tree).Family == expression.FamilyReduceRows
}

// LMemUsage is (ls0+1)*ls1*size_of(dtype), the +1 padding column that
// avoids local-memory bank conflicts (spec §4.3.4).
func (t ReduceTwoD) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64 {
	slots := int64(1)
	if t.reduceOp(tree).IsIndexProducing() {
		slots = 2
	}
	return int64(t.LS0+1) * int64(t.LS1) * int64(tree.Dtype().Size()) * slots
}

func (t ReduceTwoD) RegistersUsage(tree expression.Tree) int { return t.VWidth }

func (t ReduceTwoD) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if err := universalLimits(t.LMemUsage(tree, dev), dev, t.VWidth); err != nil {
		return err
	}
	return workGroupSize(dev, t.LS0*t.LS1)
}

func (t ReduceTwoD) InputSizes(tree expression.Tree) []int64 {
	childIdx := tree.At(tree.Root).LHS
	shape := tree.At(childIdx).Shape
	return []int64{shape.Front(), shape.Back()}
}

// TemporaryWorkspace is rows*ng0*size_of(dtype) (columns*ng0 for column
// reduction) when NG0 > 1, doubled again for index-producing reductions;
// else the single-pass kernel writes straight to the assignee and no
// workspace is needed.
func (t ReduceTwoD) TemporaryWorkspace(tree expression.Tree) int64 {
	if t.NG0 <= 1 {
		return 0
	}
	childIdx := tree.At(tree.Root).LHS
	shape := tree.At(childIdx).Shape
	survivors := shape.Front()
	if !t.isRows(tree) {
		survivors = shape.Back()
	}
	mult := int64(1)
	if t.reduceOp(tree).IsIndexProducing() {
		mult = 2
	}
	return survivors * int64(t.NG0) * int64(tree.Dtype().Size()) * mult
}

func (t ReduceTwoD) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	op := t.reduceOp(tree)
	rows := t.isRows(tree)
	childIdx := tree.At(tree.Root).LHS
	obj := table.Objects[childIdx]
	neutral := expression.NeutralElementForType(op.Type, tree.Dtype())
	reducer := op.Type.ReduceCSpelling()
	indexed := op.IsIndexProducing()
	dtype := tree.Dtype().String()

	// survivorVar names the axis that is kept (one output per row, or
	// per column); reducedVar names the axis collapsed by the tree.
	var survivorVar, reducedVar string
	var survivorSize, reducedSize string
	var readExpr func(sv, rv string) string
	if rows {
		survivorVar, reducedVar = "row", "col"
		survivorSize, reducedSize = "M", "N"
		readExpr = func(sv, rv string) string {
			text, _ := obj.Evaluate("at", sv, rv)
			return text
		}
	} else {
		survivorVar, reducedVar = "col", "row"
		survivorSize, reducedSize = "N", "M"
		readExpr = func(sv, rv string) string {
			text, _ := obj.Evaluate("at", rv, sv)
			return text
		}
	}

	singlePass := t.NG0 <= 1
	prodName := "reduce2d_prod_" + suffix
	reduceName := "reduce2d_reduce_" + suffix

	idxAt := func(buf, survivors, i string) string {
		return fmt.Sprintf("(($GLOBAL $SIZE_T*)(%s+%s*%d))[%s]", buf, survivors, t.NG0, i)
	}

	var sb strings.Builder
	outArg := ", $GLOBAL " + dtype + " *partial"
	if singlePass {
		outArg = ""
	}
	fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T M, $SIZE_T N%s%s) {\n", prodName, outArg, argDeclList(table, tree))
	fmt.Fprintf(&sb, "  $LOCAL %s buf[%d][%d];\n", dtype, t.LS1, t.LS0+1)
	if indexed {
		fmt.Fprintf(&sb, "  $LOCAL $SIZE_T idxbuf[%d][%d];\n", t.LS1, t.LS0+1)
	}
	fmt.Fprintf(&sb, "  for ($SIZE_T %s = $GROUP_ID_1*%d + $LOCAL_IDX_1; %s < %s; %s += $GLOBAL_SIZE_1) {\n",
		survivorVar, t.LS1, survivorVar, survivorSize, survivorVar)
	fmt.Fprintf(&sb, "    %s acc = %s;\n", dtype, neutral)
	if indexed {
		sb.WriteString("    $SIZE_T accidx = 0;\n")
	}
	fmt.Fprintf(&sb, "    for ($SIZE_T %s = $GROUP_ID_0*%d + $LOCAL_IDX_0; %s < %s; %s += $GLOBAL_SIZE_0) {\n",
		reducedVar, t.LS0, reducedVar, reducedSize, reducedVar)
	if indexed {
		fmt.Fprintf(&sb, "      %s v = %s;\n", dtype, readExpr(survivorVar, reducedVar))
		fmt.Fprintf(&sb, "      if (%s(v, acc) != acc) { acc = v; accidx = %s; }\n", reducer, reducedVar)
	} else {
		fmt.Fprintf(&sb, "      acc = %s(acc, %s);\n", reducer, readExpr(survivorVar, reducedVar))
	}
	sb.WriteString("    }\n")
	sb.WriteString("    buf[$LOCAL_IDX_1][$LOCAL_IDX_0] = acc;\n")
	if indexed {
		sb.WriteString("    idxbuf[$LOCAL_IDX_1][$LOCAL_IDX_0] = accidx;\n")
	}
	sb.WriteString("    $LOCAL_BARRIER;\n")
	fmt.Fprintf(&sb, "    for ($SIZE_T stride = %d/2; stride > 0; stride /= 2) {\n", t.LS0)
	sb.WriteString("      if ($LOCAL_IDX_0 < stride) {\n")
	if indexed {
		fmt.Fprintf(&sb, "        if (%s(buf[$LOCAL_IDX_1][$LOCAL_IDX_0+stride], buf[$LOCAL_IDX_1][$LOCAL_IDX_0]) != buf[$LOCAL_IDX_1][$LOCAL_IDX_0]) { buf[$LOCAL_IDX_1][$LOCAL_IDX_0] = buf[$LOCAL_IDX_1][$LOCAL_IDX_0+stride]; idxbuf[$LOCAL_IDX_1][$LOCAL_IDX_0] = idxbuf[$LOCAL_IDX_1][$LOCAL_IDX_0+stride]; }\n", reducer)
	} else {
		fmt.Fprintf(&sb, "        buf[$LOCAL_IDX_1][$LOCAL_IDX_0] = %s(buf[$LOCAL_IDX_1][$LOCAL_IDX_0], buf[$LOCAL_IDX_1][$LOCAL_IDX_0+stride]);\n", reducer)
	}
	sb.WriteString("      }\n      $LOCAL_BARRIER;\n    }\n")
	sb.WriteString("    if ($LOCAL_IDX_0 == 0) {\n")
	if singlePass {
		dest := destinationExprAt(table, survivorVar)
		if indexed {
			fmt.Fprintf(&sb, "      %s = idxbuf[$LOCAL_IDX_1][0];\n", dest)
		} else {
			fmt.Fprintf(&sb, "      %s = buf[$LOCAL_IDX_1][0];\n", dest)
		}
	} else {
		fmt.Fprintf(&sb, "      partial[%s*%d + $GROUP_ID_0] = buf[$LOCAL_IDX_1][0];\n", survivorVar, t.NG0)
		if indexed {
			fmt.Fprintf(&sb, "      %s = idxbuf[$LOCAL_IDX_1][0];\n", idxAt("partial", survivorSize, fmt.Sprintf("%s*%d + $GROUP_ID_0", survivorVar, t.NG0)))
		}
	}
	sb.WriteString("    }\n  }\n}\n")

	kernelNames := []string{prodName}
	if !singlePass {
		fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T %s, $GLOBAL %s *partial%s) {\n", reduceName, survivorSize, dtype, argDeclList(table, tree))
		fmt.Fprintf(&sb, "  for ($SIZE_T %s = $GROUP_ID_1*%d + $LOCAL_IDX_1; %s < %s; %s += $GLOBAL_SIZE_1) {\n",
			survivorVar, t.LS1, survivorVar, survivorSize, survivorVar)
		fmt.Fprintf(&sb, "    %s acc = %s;\n", dtype, neutral)
		if indexed {
			sb.WriteString("    $SIZE_T accidx = 0;\n")
		}
		fmt.Fprintf(&sb, "    for ($SIZE_T g = 0; g < %d; g++) {\n", t.NG0)
		if indexed {
			fmt.Fprintf(&sb, "      %s v = partial[%s*%d + g];\n", dtype, survivorVar, t.NG0)
			fmt.Fprintf(&sb, "      if (%s(v, acc) != acc) { acc = v; accidx = %s; }\n", reducer, idxAt("partial", survivorSize, fmt.Sprintf("%s*%d + g", survivorVar, t.NG0)))
		} else {
			fmt.Fprintf(&sb, "      acc = %s(acc, partial[%s*%d + g]);\n", reducer, survivorVar, t.NG0)
		}
		sb.WriteString("    }\n")
		dest := destinationExprAt(table, survivorVar)
		if indexed {
			fmt.Fprintf(&sb, "    %s = accidx;\n", dest)
		} else {
			fmt.Fprintf(&sb, "    %s = acc;\n", dest)
		}
		sb.WriteString("  }\n}\n")
		kernelNames = append(kernelNames, reduceName)
	}

	return substitute(sb.String(), b), kernelNames
}

func (t ReduceTwoD) Enqueue(ctx context.Context, program driver.Program, suffix string, a EnqueueArgs) (driver.Event, error) {
	prod, err := program.Kernel("reduce2d_prod_" + suffix)
	if err != nil {
		return nil, err
	}
	sizes := t.InputSizes(a.Tree)
	var workspace driver.Buffer
	if t.NG0 > 1 {
		workspace = a.Workspace.Buffer()
	}
	if _, err := bindCommonArgs(prod, sizes, workspace, a); err != nil {
		return nil, err
	}
	rng := driver.NDRange2D(int64(t.LS0*t.NG0), int64(t.LS1*t.NG1), int64(t.LS0), int64(t.LS1))
	prodEvt, err := a.Queue.Enqueue(ctx, prod, rng, a.Deps)
	if err != nil {
		return nil, err
	}
	if t.NG0 <= 1 {
		return prodEvt, nil
	}

	reduce, err := program.Kernel("reduce2d_reduce_" + suffix)
	if err != nil {
		return nil, err
	}
	survivors := sizes[0]
	if !t.isRows(a.Tree) {
		survivors = sizes[1]
	}
	if _, err := bindCommonArgs(reduce, []int64{survivors}, a.Workspace.Buffer(), a); err != nil {
		return nil, err
	}
	reduceRng := driver.NDRange2D(int64(t.LS0), int64(t.LS1*t.NG1), int64(t.LS0), int64(t.LS1))
	return a.Queue.Enqueue(ctx, reduce, reduceRng, []driver.Event{prodEvt})
}
