package cache

import (
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
	"isaac/internal/expression"
	"isaac/internal/numeric"
	"isaac/internal/tuple"
)

func vector(ctx driver.Context, n int64) expression.Tree {
	buf, _ := ctx.Alloc(n * 4)
	shape := tuple.Of(n)
	node := expression.DenseArray(numeric.Float32, shape, shape.Clone(), 0, buf)
	return expression.Leaf(ctx, node)
}

func TestHashIdentityAcrossBufferRelabeling(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()

	a1, b1 := vector(ctx, 16), vector(ctx, 16)
	sum1, err := expression.Add(a1, b1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	a2, b2 := vector(ctx, 16), vector(ctx, 16)
	sum2, err := expression.Add(a2, b2)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	h1, h2 := Hash(sum1), Hash(sum2)
	if h1 != h2 {
		t.Errorf("structurally identical trees over different buffers hashed differently:\n%s\n%s", h1, h2)
	}
}

func matrix(ctx driver.Context, rows, cols int64) expression.Tree {
	buf, _ := ctx.Alloc(rows * cols * 4)
	shape := tuple.Of(rows, cols)
	stride := tuple.Of(cols, 1)
	node := expression.DenseArray(numeric.Float32, shape, stride, 0, buf)
	return expression.Leaf(ctx, node)
}

func TestHashDiffersOnRank(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()

	a, b := vector(ctx, 16), vector(ctx, 16)
	vecSum, err := expression.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	m, n := matrix(ctx, 4, 4), matrix(ctx, 4, 4)
	matSum, err := expression.Add(m, n)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if Hash(vecSum) == Hash(matSum) {
		t.Error("a 1D sum and a 2D sum hashed identically")
	}
}

func TestHashDiffersOnOperator(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()

	a, b := vector(ctx, 16), vector(ctx, 16)
	addTree, err := expression.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	c, d := vector(ctx, 16), vector(ctx, 16)
	subTree, err := expression.Sub(c, d)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}

	if Hash(addTree) == Hash(subTree) {
		t.Error("Add and Sub trees hashed identically")
	}
}

func TestHashRepeatedBufferGetsOneID(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()

	a := vector(ctx, 16)
	selfSum, err := expression.Add(a, a)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	b, c := vector(ctx, 16), vector(ctx, 16)
	distinctSum, err := expression.Add(b, c)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if Hash(selfSum) == Hash(distinctSum) {
		t.Error("a+a (one buffer reused) should not hash the same as b+c (two distinct buffers)")
	}
}
