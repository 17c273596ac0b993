// Package scheduler implements the temporary-insertion pass of spec
// §4.2: it walks a tree bottom-up, classifies the root into one of nine
// kernel kinds, and inserts materialization breakpoints where a
// sub-result must become a temporary array before its consumer can run
// in the same kernel.
package scheduler

// Kind is one of the nine kernel kinds, ordered by the lattice spec
// §4.2 defines: matrix products rank highest, then 2D reductions, then
// 1D reduction, then element-wise 2D, then element-wise 1D.
type Kind uint8

const (
	KindElementwise1D Kind = iota
	KindElementwise2D
	KindReduce1D
	KindReduce2DRows
	KindReduce2DCols
	KindMatrixProductNN
	KindMatrixProductNT
	KindMatrixProductTN
	KindMatrixProductTT
)

// rank gives the lattice order: higher rank wins when two kinds meet at
// an arithmetic fusion point (spec §4.2 rule 6).
var rank = map[Kind]int{
	KindElementwise1D:   0,
	KindElementwise2D:   1,
	KindReduce1D:        2,
	KindReduce2DRows:    3,
	KindReduce2DCols:    3,
	KindMatrixProductNN: 4,
	KindMatrixProductNT: 4,
	KindMatrixProductTN: 4,
	KindMatrixProductTT: 4,
}

// Greater returns the lattice-greater of a and b.
func Greater(a, b Kind) Kind {
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// IsMatrixProduct reports whether k is one of the four matrix-product
// kinds.
func (k Kind) IsMatrixProduct() bool {
	return k == KindMatrixProductNN || k == KindMatrixProductNT ||
		k == KindMatrixProductTN || k == KindMatrixProductTT
}

// IsReduction reports whether k is a 1D or 2D reduction kind.
func (k Kind) IsReduction() bool {
	switch k {
	case KindReduce1D, KindReduce2DRows, KindReduce2DCols:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindElementwise1D:
		return "elementwise-1d"
	case KindElementwise2D:
		return "elementwise-2d"
	case KindReduce1D:
		return "reduce-1d"
	case KindReduce2DRows:
		return "reduce-2d-rows"
	case KindReduce2DCols:
		return "reduce-2d-cols"
	case KindMatrixProductNN:
		return "matrix-product-nn"
	case KindMatrixProductNT:
		return "matrix-product-nt"
	case KindMatrixProductTN:
		return "matrix-product-tn"
	case KindMatrixProductTT:
		return "matrix-product-tt"
	default:
		return "unknown-kind"
	}
}
