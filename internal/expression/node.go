package expression

import (
	"isaac/internal/driver"
	"isaac/internal/numeric"
	"isaac/internal/tuple"
)

// NodeKind distinguishes the tagged variants a Node can hold (spec §3
// "Expression node").
type NodeKind uint8

const (
	// KindInvalid is the sentinel used for a unary operator's unused
	// right operand.
	KindInvalid NodeKind = iota
	KindValueScalar
	KindDenseArray
	KindComposite
)

// Node is one entry in a Tree's flat arena. Only the fields relevant to
// its Kind are populated; the others are zero. This mirrors the tagged
// union of the original implementation's expression::node, but as a flat
// Go struct rather than a C union, since Go has no safe union primitive
// and the struct is small enough (a handful of words) that the waste is
// immaterial next to the simplicity of not needing type-punning.
type Node struct {
	Kind  NodeKind
	Dtype numeric.Type
	Shape tuple.Tuple

	// KindValueScalar
	Scalar numeric.Scalar

	// KindDenseArray
	Buffer      driver.Buffer
	StartOffset int64
	Stride      tuple.Tuple

	// KindComposite
	LHS, RHS int // child indices into the owning Tree's Nodes slice
	Op       Token
}

// IsInvalid reports whether n is the INVALID sentinel.
func (n Node) IsInvalid() bool { return n.Kind == KindInvalid }

// Invalid returns the INVALID sentinel node.
func Invalid() Node { return Node{Kind: KindInvalid} }

// ValueScalar wraps an immediate scalar as a leaf node.
func ValueScalar(s numeric.Scalar) Node {
	return Node{Kind: KindValueScalar, Dtype: s.Type, Scalar: s}
}

// DenseArray wraps a view onto a buffer as a leaf node.
func DenseArray(dtype numeric.Type, shape, stride tuple.Tuple, start int64, buf driver.Buffer) Node {
	return Node{
		Kind: KindDenseArray, Dtype: dtype, Shape: shape.Clone(),
		Stride: stride.Clone(), StartOffset: start, Buffer: buf,
	}
}
