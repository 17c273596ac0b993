package tuple

import "testing"

func TestProduct(t *testing.T) {
	if got := Of(2, 3, 4).Product(); got != 24 {
		t.Errorf("Product() = %d, want 24", got)
	}
	if got := Of().Product(); got != 1 {
		t.Errorf("Product() of empty tuple = %d, want 1", got)
	}
}

func TestFrontBack(t *testing.T) {
	tup := Of(10, 20, 30)
	if tup.Front() != 10 || tup.Back() != 30 {
		t.Errorf("Front/Back = %d/%d, want 10/30", tup.Front(), tup.Back())
	}
}

func TestEqual(t *testing.T) {
	if !Of(1, 2, 3).Equal(Of(1, 2, 3)) {
		t.Error("identical tuples should be Equal")
	}
	if Of(1, 2).Equal(Of(1, 2, 3)) {
		t.Error("different-length tuples must not be Equal")
	}
	if Of(1, 2, 3).Equal(Of(1, 2, 4)) {
		t.Error("differing-element tuples must not be Equal")
	}
}

func TestNumNonUnitAndAxes(t *testing.T) {
	shape := Of(1, 5, 1, 8)
	if got := shape.NumNonUnit(); got != 2 {
		t.Errorf("NumNonUnit() = %d, want 2", got)
	}
	axes := shape.NonUnitAxes()
	if len(axes) != 2 || axes[0] != 1 || axes[1] != 3 {
		t.Errorf("NonUnitAxes() = %v, want [1 3]", axes)
	}
}

func TestMaxMin(t *testing.T) {
	tup := Of(4, 9, 1, 7)
	if tup.Max() != 9 {
		t.Errorf("Max() = %d, want 9", tup.Max())
	}
	if tup.Min() != 1 {
		t.Errorf("Min() = %d, want 1", tup.Min())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Of(1, 2, 3)
	clone := orig.Clone()
	clone[0] = 99
	if orig[0] == 99 {
		t.Error("Clone() must not alias the original backing array")
	}
}

func TestString(t *testing.T) {
	if got, want := Of(2, 3).String(), "(2,3)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
