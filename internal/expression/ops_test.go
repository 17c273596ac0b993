package expression_test

import (
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
	"isaac/internal/expression"
	"isaac/internal/numeric"
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

func TestAddBroadcastsAndPromotes(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 1), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 8), numeric.Float64)

	sum, err := expression.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !sum.Shape().Equal(tuple.Of(4, 8)) {
		t.Errorf("Shape() = %s, want (4,8)", sum.Shape())
	}
	if sum.Dtype() != numeric.Float64 {
		t.Errorf("Dtype() = %v, want Float64", sum.Dtype())
	}
}

func TestAddIncompatibleShapesErrors(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 3), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 5), numeric.Float32)

	if _, err := expression.Add(a, b); err == nil {
		t.Fatal("Add with incompatible shapes should error")
	}
}

func TestMatrixProductInnerDimensionCheck(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 3), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(5, 6), numeric.Float32)

	if _, err := expression.MatrixProduct(a, b, expression.NN); err == nil {
		t.Fatal("MatrixProduct with mismatched inner dims should error")
	}

	c := denseLeaf(t, ctx, tuple.Of(3, 6), numeric.Float32)
	product, err := expression.MatrixProduct(a, c, expression.NN)
	if err != nil {
		t.Fatalf("MatrixProduct: %v", err)
	}
	if !product.Shape().Equal(tuple.Of(4, 6)) {
		t.Errorf("Shape() = %s, want (4,6)", product.Shape())
	}
}

func TestMatrixProductTransposedVariant(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(3, 4), numeric.Float32) // transposed: (4,3)
	b := denseLeaf(t, ctx, tuple.Of(3, 6), numeric.Float32)

	product, err := expression.MatrixProduct(a, b, expression.TN)
	if err != nil {
		t.Fatalf("MatrixProduct TN: %v", err)
	}
	if !product.Shape().Equal(tuple.Of(4, 6)) {
		t.Errorf("Shape() = %s, want (4,6)", product.Shape())
	}
}

func TestReshapeRejectsElementCountMismatch(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 3), numeric.Float32)
	if _, err := expression.Reshape(a, tuple.Of(5, 5)); err == nil {
		t.Fatal("Reshape changing element count should error")
	}
	reshaped, err := expression.Reshape(a, tuple.Of(2, 6))
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if !reshaped.Shape().Equal(tuple.Of(2, 6)) {
		t.Errorf("Shape() = %s, want (2,6)", reshaped.Shape())
	}
}

func TestReduceRowsRequires2D(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(9), numeric.Float32)
	if _, err := expression.ReduceRows(a, expression.ReduceSum); err == nil {
		t.Fatal("ReduceRows on a 1D operand should error")
	}
}

func TestAssignTakesDestShape(t *testing.T) {
	ctx := newTestContext(t)
	dest := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	src := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	assign, err := expression.Assign(dest, src)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !assign.Shape().Equal(tuple.Of(4, 4)) {
		t.Errorf("Shape() = %s, want (4,4)", assign.Shape())
	}
}
