package scheduler_test

import (
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
	"isaac/internal/expression"
	"isaac/internal/numeric"
	"isaac/internal/scheduler"
	"isaac/internal/tuple"
)

func newTestContext(t *testing.T) driver.Context {
	t.Helper()
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func denseLeaf(t *testing.T, ctx driver.Context, shape tuple.Tuple, dtype numeric.Type) expression.Tree {
	t.Helper()
	buf, err := ctx.Alloc(shape.Product() * int64(dtype.Size()))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	stride := make(tuple.Tuple, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	node := expression.DenseArray(dtype, shape, stride, 0, buf)
	return expression.Leaf(ctx, node)
}

func TestScheduleElementwisePlainAdd(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	sum, err := expression.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	plan, err := scheduler.Schedule(sum)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if plan.RootKind != scheduler.KindElementwise2D {
		t.Errorf("RootKind = %v, want KindElementwise2D", plan.RootKind)
	}
	if len(plan.Breakpoints) != 0 {
		t.Errorf("Breakpoints = %v, want none for a plain fused add", plan.Breakpoints)
	}
}

func TestScheduleMatrixProductOperandMaterialized(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	c := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	prod, err := expression.MatrixProduct(a, b, expression.NN)
	if err != nil {
		t.Fatalf("MatrixProduct: %v", err)
	}
	// A matrix product used as an operand of further arithmetic (rather
	// than the direct RHS of an assignment) must be materialized first
	// (spec §4.2 rule 5).
	combined, err := expression.Add(prod, c)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	plan, err := scheduler.Schedule(combined)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(plan.Breakpoints) != 1 {
		t.Fatalf("Breakpoints = %v, want exactly one (the matrix product)", plan.Breakpoints)
	}
	if plan.Breakpoints[0] != prod.Root {
		t.Errorf("Breakpoints[0] = %d, want the matrix-product root %d", plan.Breakpoints[0], prod.Root)
	}
}

func TestScheduleDirectAssignOfMatrixProductNoBreakpoint(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	dest := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	prod, err := expression.MatrixProduct(a, b, expression.NN)
	if err != nil {
		t.Fatalf("MatrixProduct: %v", err)
	}
	assign, err := expression.Assign(dest, prod)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	plan, err := scheduler.Schedule(assign)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !plan.RootKind.IsMatrixProduct() {
		t.Errorf("RootKind = %v, want a matrix-product kind", plan.RootKind)
	}
	if len(plan.Breakpoints) != 0 {
		t.Errorf("Breakpoints = %v, want none: direct assignment absorbs the product", plan.Breakpoints)
	}
}

func TestScheduleReductionOverIncompatibleChildMaterializes(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	c := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	prod, err := expression.MatrixProduct(a, b, expression.NN)
	if err != nil {
		t.Fatalf("MatrixProduct: %v", err)
	}
	reduced, err := expression.Reduce1D(prod, expression.ReduceSum)
	if err != nil {
		t.Fatalf("Reduce1D: %v", err)
	}
	_ = c

	plan, err := scheduler.Schedule(reduced)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if plan.RootKind != scheduler.KindReduce1D {
		t.Errorf("RootKind = %v, want KindReduce1D", plan.RootKind)
	}
	if len(plan.Breakpoints) != 1 || plan.Breakpoints[0] != prod.Root {
		t.Errorf("Breakpoints = %v, want [%d]", plan.Breakpoints, prod.Root)
	}
}
