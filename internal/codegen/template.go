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

// EnqueueArgs bundles everything an Enqueue call needs beyond the
// compiled program itself: the queue to submit on, the annotated symbolic
// table (which fixes bound-buffer and reshape argument order), the tree
// being evaluated, and the workspace to bind when a template needs
// scratch space.
type EnqueueArgs struct {
	Queue     driver.CommandQueue
	Table     *symbolic.Table
	Tree      expression.Tree
	Workspace driver.Workspace
	Deps      []driver.Event
}

// Template is the contract every kernel-template family implements (spec
// §4.3). Suffix disambiguates kernels sharing one compiled Program but
// carrying different parameter sets, as spec.md describes.
type Template interface {
	// IsInvalid checks universal and template-specific constraints,
	// returning nil when the template can run on dev for tree.
	IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error
	// InputSizes returns the 1-3 size parameters the template uses.
	InputSizes(tree expression.Tree) []int64
	LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64
	RegistersUsage(tree expression.Tree) int
	TemporaryWorkspace(tree expression.Tree) int64
	// Generate emits the kernel source for backend b under suffix, and
	// returns the kernel's entry-point name(s) in emission order (most
	// templates emit one kernel; the 1D reduction, a 2D reduction with
	// NG0 > 1 and the multi-pass matrix product emit two: "prod" then
	// "reduce").
	Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (source string, kernelNames []string)
	// Enqueue binds arguments in the normative order of spec §4.3 and
	// submits every kernel the template generated, in order, returning
	// the final completion event.
	Enqueue(ctx context.Context, program driver.Program, suffix string, args EnqueueArgs) (driver.Event, error)
}

// destinationExpr returns the write-accessor text for a unit's assignee
// buffer (e.g. `p0[start0]`), or a placeholder when the unit has none
// annotated (a malformed tree; templates never call this without having
// confirmed an assignee exists during scheduling).
func destinationExpr(table *symbolic.Table) string {
	if table.AssigneeIndex < 0 {
		return "*result"
	}
	obj := table.Objects[table.AssigneeIndex]
	if text, ok := obj.Evaluate("at"); ok {
		return text
	}
	if text, ok := obj.Evaluate("at", "0"); ok {
		return text
	}
	if text, ok := obj.Evaluate("at", "0", "0"); ok {
		return text
	}
	return "*result"
}

// destinationExprAt is destinationExpr for assignees written per loop
// index rather than as a single scalar (row/column reductions writing
// one entry per surviving row or column).
func destinationExprAt(table *symbolic.Table, idxArgs ...string) string {
	if table.AssigneeIndex < 0 {
		return "*result"
	}
	obj := table.Objects[table.AssigneeIndex]
	if text, ok := obj.Evaluate("at", idxArgs...); ok {
		return text
	}
	return destinationExpr(table)
}

// assigneeDecl emits the kernel-parameter declaration for just the
// assignee buffer (pointer, start offset, per-axis stride) — for a
// kernel like matrix product's depth-split reduce pass, which writes its
// own destination directly rather than taking the full bound-buffer
// list argDeclList emits.
func assigneeDecl(table *symbolic.Table, tree expression.Tree) string {
	if table.AssigneeIndex < 0 {
		return ""
	}
	var sb strings.Builder
	n := tree.At(table.AssigneeIndex)
	obj := table.Objects[table.AssigneeIndex]
	pointer := obj.Attrs["pointer"]
	start := obj.Attrs["start"]
	fmt.Fprintf(&sb, ", $GLOBAL %s *%s, $SIZE_T %s", n.Dtype.String(), pointer, start)
	for _, axis := range n.Shape.NonUnitAxes() {
		if inc, ok := obj.Attrs[fmt.Sprintf("inc%d", axis)]; ok {
			fmt.Fprintf(&sb, ", $SIZE_T %s", inc)
		}
	}
	return sb.String()
}

// bindAssigneeArg binds the assignee buffer's pointer/start/stride
// arguments starting at idx, mirroring bindCommonArgs' per-buffer block
// but for just the destination buffer, and returns the next free index.
func bindAssigneeArg(k driver.Kernel, idx int, a EnqueueArgs) (int, error) {
	if a.Table.AssigneeIndex < 0 {
		return idx, nil
	}
	n := a.Tree.At(a.Table.AssigneeIndex)
	if err := k.SetBufferArg(idx, n.Buffer); err != nil {
		return 0, err
	}
	idx++
	if err := k.SetSizeArg(idx, n.StartOffset); err != nil {
		return 0, err
	}
	idx++
	for _, axis := range n.Shape.NonUnitAxes() {
		if err := k.SetSizeArg(idx, n.Stride[axis]); err != nil {
			return 0, err
		}
		idx++
	}
	return idx, nil
}

// universalLimits checks the constraints every template shares: local
// memory usage against the device ceiling and SIMD width membership in
// {1,2,3,4} (spec §4.3 "is_invalid ... Checks both universal constraints
// ... and template-specific ones").
func universalLimits(lmem int64, dev driver.DeviceInfo, vwidth int) error {
	if lmem > int64(dev.LocalMemSize) {
		return ierrors.New(ierrors.CodeGenerationError,
			"local memory usage %d exceeds device limit %d", lmem, dev.LocalMemSize)
	}
	if vwidth != 1 && vwidth != 2 && vwidth != 3 && vwidth != 4 {
		return ierrors.New(ierrors.CodeGenerationError, "invalid SIMD width %d", vwidth)
	}
	return nil
}

func workGroupSize(dev driver.DeviceInfo, groupSize int) error {
	if groupSize > dev.MaxWorkGroupSize {
		return ierrors.New(ierrors.CodeGenerationError,
			"work-group size %d exceeds device limit %d", groupSize, dev.MaxWorkGroupSize)
	}
	return nil
}

// bindCommonArgs writes the normative prefix/suffix of spec §4.3's
// "Common enqueue argument order": sizes, then (optionally) the
// workspace, then one argument block per bound buffer in DFS-annotation
// order, then host scalars, then reshape strides. It returns the next
// free argument index so a template's own Enqueue can append any
// template-private trailing arguments before setting the range and
// submitting (matrix product's alpha/beta are written into its source,
// not bound).
func bindCommonArgs(k driver.Kernel, sizes []int64, workspace driver.Buffer, a EnqueueArgs) (int, error) {
	idx := 0
	for _, sz := range sizes {
		if err := k.SetSizeArg(idx, sz); err != nil {
			return 0, err
		}
		idx++
	}
	if workspace != nil {
		if err := k.SetBufferArg(idx, workspace); err != nil {
			return 0, err
		}
		idx++
	}
	for _, bufIdx := range a.Table.BufferOrder {
		n := a.Tree.At(bufIdx)
		if err := k.SetBufferArg(idx, n.Buffer); err != nil {
			return 0, err
		}
		idx++
		if err := k.SetSizeArg(idx, n.StartOffset); err != nil {
			return 0, err
		}
		idx++
		for _, axis := range n.Shape.NonUnitAxes() {
			if err := k.SetSizeArg(idx, n.Stride[axis]); err != nil {
				return 0, err
			}
			idx++
		}
	}
	for _, scalarIdx := range a.Table.ScalarOrder {
		n := a.Tree.At(scalarIdx)
		bits := n.Scalar.Bits()
		buf := make([]byte, 8)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		if err := k.SetArg(idx, n.Dtype.Size(), buf[:n.Dtype.Size()]); err != nil {
			return 0, err
		}
		idx++
	}
	for _, reshapeIdx := range a.Table.ReshapeOrder {
		newShape := a.Tree.At(reshapeIdx).Shape
		oldShape := a.Tree.At(a.Tree.At(reshapeIdx).LHS).Shape
		newStride := newShape.ContiguousStride()
		oldStride := oldShape.ContiguousStride()
		for _, axis := range newShape.NonUnitAxes() {
			if err := k.SetSizeArg(idx, newStride[axis]); err != nil {
				return 0, err
			}
			idx++
		}
		for _, axis := range oldShape.NonUnitAxes() {
			if err := k.SetSizeArg(idx, oldStride[axis]); err != nil {
				return 0, err
			}
			idx++
		}
	}
	return idx, nil
}
