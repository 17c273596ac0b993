package expression

import (
	"isaac/internal/ierrors"
	"isaac/internal/numeric"
	"isaac/internal/tuple"
)

// Add, Sub, Mult, Div build the standard binary-arithmetic composites,
// promoting dtype and broadcasting shape per invariant 2 of spec §3.
func Add(lhs, rhs Tree) (Tree, error) {
	return binaryArithmetic(lhs, rhs, Token{FamilyBinaryArithmetic, TypeAdd})
}

func Sub(lhs, rhs Tree) (Tree, error) {
	return binaryArithmetic(lhs, rhs, Token{FamilyBinaryArithmetic, TypeSub})
}

func Mult(lhs, rhs Tree) (Tree, error) {
	return binaryArithmetic(lhs, rhs, Token{FamilyBinaryArithmetic, TypeMult})
}

func Div(lhs, rhs Tree) (Tree, error) {
	return binaryArithmetic(lhs, rhs, Token{FamilyBinaryArithmetic, TypeDiv})
}

func binaryArithmetic(lhs, rhs Tree, op Token) (Tree, error) {
	shape, err := broadcast(lhs.Shape(), rhs.Shape())
	if err != nil {
		return Tree{}, err
	}
	dtype := numeric.Promote(lhs.Dtype(), rhs.Dtype())
	return ComposeTreeTree(lhs, op, rhs, dtype, shape)
}

// broadcast implements the element-wise broadcast rule: shapes must
// match axis-by-axis except where one side has extent 1, or one operand
// is a scalar (empty shape).
func broadcast(a, b tuple.Tuple) (tuple.Tuple, error) {
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	if len(a) != len(b) {
		return nil, ierrors.New(ierrors.SemanticError,
			"shape rank mismatch: %s vs %s", a, b)
	}
	out := make(tuple.Tuple, len(a))
	for i := range a {
		switch {
		case a[i] == b[i]:
			out[i] = a[i]
		case a[i] == 1:
			out[i] = b[i]
		case b[i] == 1:
			out[i] = a[i]
		default:
			return nil, ierrors.New(ierrors.SemanticError,
				"cannot broadcast axis %d: %d vs %d", i, a[i], b[i])
		}
	}
	return out, nil
}

// Assign builds `dest = src`, with dest's shape/dtype as the result.
func Assign(dest, src Tree) (Tree, error) {
	return ComposeTreeTree(dest, Token{FamilyBinaryArithmetic, TypeAssign}, src, dest.Dtype(), dest.Shape())
}

// Negate builds unary `-x`.
func Negate(x Tree) (Tree, error) {
	return Unary(x, Token{FamilyUnaryArithmetic, TypeMinus}, x.Dtype(), x.Shape())
}

// Cast builds a unary cast-to-dtype composite.
func Cast(x Tree, to numeric.Type) (Tree, error) {
	return Unary(x, Token{FamilyUnaryArithmetic, castTypeFor(to)}, to, x.Shape())
}

func castTypeFor(t numeric.Type) Type {
	switch t {
	case numeric.Int8:
		return TypeCastInt8
	case numeric.Uint8:
		return TypeCastUint8
	case numeric.Int16:
		return TypeCastInt16
	case numeric.Uint16:
		return TypeCastUint16
	case numeric.Int32:
		return TypeCastInt32
	case numeric.Uint32:
		return TypeCastUint32
	case numeric.Int64:
		return TypeCastInt64
	case numeric.Uint64:
		return TypeCastUint64
	case numeric.Float32:
		return TypeCastFloat32
	default:
		return TypeCastFloat64
	}
}

// ReduceOp names a reduction operator by its C++-original spelling,
// independent of whether it eventually carries an index (argmax/argmin)
// or uses the floating-point-aware neutral element (f-variants).
type ReduceOp uint8

const (
	ReduceSum ReduceOp = iota
	ReduceMax
	ReduceMin
	ReduceFMax
	ReduceFMin
	ReduceArgMax
	ReduceArgMin
	ReduceArgFMax
	ReduceArgFMin
)

func (r ReduceOp) tokenType() Type {
	switch r {
	case ReduceSum:
		return TypeReduceSum
	case ReduceMax:
		return TypeReduceMax
	case ReduceMin:
		return TypeReduceMin
	case ReduceFMax:
		return TypeReduceFMax
	case ReduceFMin:
		return TypeReduceFMin
	case ReduceArgMax:
		return TypeReduceArgMax
	case ReduceArgMin:
		return TypeReduceArgMin
	case ReduceArgFMax:
		return TypeReduceArgFMax
	default:
		return TypeReduceArgFMin
	}
}

// NeutralElement returns the C literal for op's neutral element, using
// device-appropriate infinity spellings for the f-variants (spec §4.1).
func (r ReduceOp) NeutralElement(dtype numeric.Type) string {
	switch r {
	case ReduceSum:
		return "0"
	case ReduceMax, ReduceArgMax:
		if dtype.IsSigned() {
			return "-2147483648"
		}
		return "0"
	case ReduceMin, ReduceArgMin:
		if dtype.IsSigned() {
			return "2147483647"
		}
		return "4294967295"
	case ReduceFMax, ReduceArgFMax:
		return "-INFINITY"
	case ReduceFMin, ReduceArgFMin:
		return "INFINITY"
	default:
		return "0"
	}
}

// NeutralElementForType returns the neutral-element literal for a
// reduction Token.Type directly, for callers (code-generation templates)
// that only have the Token off an already-built tree rather than the
// ReduceOp used to construct it.
func NeutralElementForType(t Type, dtype numeric.Type) string {
	var r ReduceOp
	switch t {
	case TypeReduceSum:
		r = ReduceSum
	case TypeReduceMax:
		r = ReduceMax
	case TypeReduceMin:
		r = ReduceMin
	case TypeReduceFMax:
		r = ReduceFMax
	case TypeReduceFMin:
		r = ReduceFMin
	case TypeReduceArgMax:
		r = ReduceArgMax
	case TypeReduceArgMin:
		r = ReduceArgMin
	case TypeReduceArgFMax:
		r = ReduceArgFMax
	case TypeReduceArgFMin:
		r = ReduceArgFMin
	}
	return r.NeutralElement(dtype)
}

// Reduce1D builds a full reduction of x to a scalar.
func Reduce1D(x Tree, op ReduceOp) (Tree, error) {
	return Unary(x, Token{FamilyReduce, op.tokenType()}, x.Dtype(), tuple.Of())
}

// ReduceRows builds a row reduction (one output per row: axis 1 removed).
func ReduceRows(x Tree, op ReduceOp) (Tree, error) {
	if x.Shape().Size() != 2 {
		return Tree{}, ierrors.New(ierrors.SemanticError, "ReduceRows requires a 2D operand, got %s", x.Shape())
	}
	shape := tuple.Of(x.Shape()[0])
	return Unary(x, Token{FamilyReduceRows, op.tokenType()}, x.Dtype(), shape)
}

// ReduceColumns builds a column reduction (one output per column: axis 0
// removed).
func ReduceColumns(x Tree, op ReduceOp) (Tree, error) {
	if x.Shape().Size() != 2 {
		return Tree{}, ierrors.New(ierrors.SemanticError, "ReduceColumns requires a 2D operand, got %s", x.Shape())
	}
	shape := tuple.Of(x.Shape()[1])
	return Unary(x, Token{FamilyReduceColumns, op.tokenType()}, x.Dtype(), shape)
}

// Trans builds the `trans` access modifier: the transpose of a 2D
// operand. MatrixProduct absorbs a direct Trans child rather than
// materializing it (spec §4.3.5 "Choosing the correct transpose variant").
func Trans(x Tree) (Tree, error) {
	if x.Shape().Size() != 2 {
		return Tree{}, ierrors.New(ierrors.SemanticError, "Trans requires a 2D operand, got %s", x.Shape())
	}
	shape := tuple.Of(x.Shape()[1], x.Shape()[0])
	return Unary(x, Token{FamilyUnaryArithmetic, TypeTrans}, x.Dtype(), shape)
}

// Reshape builds the `reshape` access modifier.
func Reshape(x Tree, newShape tuple.Tuple) (Tree, error) {
	if newShape.Product() != x.Shape().Product() {
		return Tree{}, ierrors.New(ierrors.SemanticError,
			"Reshape: element count mismatch %s -> %s", x.Shape(), newShape)
	}
	return Unary(x, Token{FamilyUnaryArithmetic, TypeReshape}, x.Dtype(), newShape.Clone())
}

// MatMulVariant names which operands MatrixProduct absorbed a Trans for.
type MatMulVariant uint8

const (
	NN MatMulVariant = iota
	NT
	TN
	TT
)

func (v MatMulVariant) tokenType() Type {
	switch v {
	case NN:
		return TypeMatrixProductNN
	case NT:
		return TypeMatrixProductNT
	case TN:
		return TypeMatrixProductTN
	default:
		return TypeMatrixProductTT
	}
}

// MatrixProduct builds `lhs @ rhs`, validating inner-dimension agreement
// per invariant 3 of spec §3: lhs.shape[outer-k-of-A] == rhs.shape[outer-k-of-B]
// modulo the variant's transpose flags.
func MatrixProduct(lhs, rhs Tree, variant MatMulVariant) (Tree, error) {
	a, b := lhs.Shape(), rhs.Shape()
	if a.Size() != 2 || b.Size() != 2 {
		return Tree{}, ierrors.New(ierrors.SemanticError, "MatrixProduct requires 2D operands, got %s and %s", a, b)
	}
	m, ka := a[0], a[1]
	if variant == TN || variant == TT {
		m, ka = a[1], a[0]
	}
	kb, n := b[0], b[1]
	if variant == NT || variant == TT {
		kb, n = b[1], b[0]
	}
	if ka != kb {
		return Tree{}, ierrors.New(ierrors.SemanticError,
			"MatrixProduct inner dimension mismatch: %d vs %d", ka, kb)
	}
	dtype := numeric.Promote(lhs.Dtype(), rhs.Dtype())
	shape := tuple.Of(m, n)
	return ComposeTreeTree(lhs, Token{FamilyMatrixProduct, variant.tokenType()}, rhs, dtype, shape)
}
