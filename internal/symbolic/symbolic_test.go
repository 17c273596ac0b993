package symbolic_test

import (
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
	"isaac/internal/expression"
	"isaac/internal/numeric"
	"isaac/internal/symbolic"
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

func TestAnnotateAssignRecordsAssignee(t *testing.T) {
	ctx := newTestContext(t)
	dest := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	src := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	assign, err := expression.Assign(dest, src)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	table := symbolic.Annotate(assign)
	if table.AssigneeIndex < 0 {
		t.Fatal("AssigneeIndex should be set for a tree whose root is an assignment")
	}
	if len(table.BufferOrder) != 2 {
		t.Fatalf("BufferOrder = %v, want two distinct buffers", table.BufferOrder)
	}
	if obj, ok := table.Objects[table.AssigneeIndex]; !ok || !obj.Is("buffer") {
		t.Fatalf("assignee Object missing or not tagged buffer: %+v", obj)
	}
}

func TestAnnotateRepeatedBufferReadSharesOneSlot(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)

	sum, err := expression.Add(a, a)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	table := symbolic.Annotate(sum)
	if len(table.BufferOrder) != 1 {
		t.Fatalf("BufferOrder = %v, want one entry for a buffer read twice", table.BufferOrder)
	}
}

func TestAnnotateScalarsAppendToScalarOrder(t *testing.T) {
	ctx := newTestContext(t)
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	scalarNode := expression.ValueScalar(numeric.Float32Scalar(2))
	scalar := expression.Leaf(ctx, scalarNode)

	sum, err := expression.Add(a, scalar)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	table := symbolic.Annotate(sum)
	if len(table.ScalarOrder) != 1 {
		t.Fatalf("ScalarOrder = %v, want exactly one host scalar", table.ScalarOrder)
	}
}

func TestLambdaExpandSubstitutesParams(t *testing.T) {
	l := symbolic.NewLambda("at(i,j) : #pointer[#start + (i)*#inc0 + (j)*#inc1]")
	if l.Name != "at" {
		t.Fatalf("Name = %q, want at", l.Name)
	}
	if len(l.Params) != 2 || l.Params[0] != "i" || l.Params[1] != "j" {
		t.Fatalf("Params = %v, want [i j]", l.Params)
	}
	body, err := l.Expand("row", "col")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := "#pointer[#start + (row)*#inc0 + (col)*#inc1]"
	if body != want {
		t.Fatalf("Expand = %q, want %q", body, want)
	}
}

func TestObjectProcessExpandsAttrsAndLambdas(t *testing.T) {
	o := symbolic.NewObject("object", "leaf", "buffer")
	o.SetAttr("pointer", "p0").SetAttr("start", "start0")
	o.AddLambda("at(i) : #pointer[#start + i]")

	out, ok := o.Evaluate("at", "3")
	if !ok {
		t.Fatal("Evaluate(at, 3) should succeed")
	}
	if out != "p0[start0 + 3]" {
		t.Fatalf("Evaluate = %q, want p0[start0 + 3]", out)
	}
}

func TestObjectEvaluateMissingLambdaFails(t *testing.T) {
	o := symbolic.NewObject("object")
	if _, ok := o.Evaluate("at", "0"); ok {
		t.Fatal("Evaluate should fail when no matching-arity lambda is registered")
	}
}
