package expression

// Family groups operator Types for fast dispatch without a full switch on
// Type everywhere a caller only cares about the coarse category (spec
// §3 "A token has a family and a type").
type Family uint8

const (
	FamilyInvalid Family = iota
	FamilyUnaryArithmetic
	FamilyBinaryArithmetic
	FamilyReduce
	FamilyReduceRows
	FamilyReduceColumns
	FamilyMatrixProduct
)

// Type enumerates every recognized operator token.
type Type uint16

const (
	TypeInvalid Type = iota

	// unary
	TypeMinus
	TypeNegate

	// casts
	TypeCastInt8
	TypeCastUint8
	TypeCastInt16
	TypeCastUint16
	TypeCastInt32
	TypeCastUint32
	TypeCastInt64
	TypeCastUint64
	TypeCastFloat32
	TypeCastFloat64

	// transcendental / unary functions
	TypeAbs
	TypeAcos
	TypeAsin
	TypeAtan
	TypeCeil
	TypeCos
	TypeCosh
	TypeExp
	TypeFloor
	TypeLog
	TypeLog10
	TypeSin
	TypeSinh
	TypeSqrt
	TypeTan
	TypeTanh

	// access modifier (unary, treated as composite with INVALID rhs)
	TypeTrans
	TypeReshape
	TypeDiagMatrix
	TypeDiagVector

	// binary / assignment
	TypeAssign
	TypeAdd
	TypeSub
	TypeMult
	TypeDiv
	TypeElementPow
	TypeElementEq
	TypeElementNeq
	TypeElementGreater
	TypeElementGeq
	TypeElementLess
	TypeElementLeq
	TypeElementMax
	TypeElementMin
	TypeElementFMax
	TypeElementFMin

	// reductions
	TypeReduceSum
	TypeReduceMax
	TypeReduceMin
	TypeReduceFMax // floating-point-aware neutral element (-inf)
	TypeReduceFMin // floating-point-aware neutral element (+inf)
	TypeReduceArgMax
	TypeReduceArgMin
	TypeReduceArgFMax
	TypeReduceArgFMin

	// matrix products, one Type per transpose combination
	TypeMatrixProductNN
	TypeMatrixProductNT
	TypeMatrixProductTN
	TypeMatrixProductTT
)

// Token pairs an operator Family with its specific Type.
type Token struct {
	Family Family
	Type   Type
}

// IsAssignment reports whether t writes its left operand.
func (t Token) IsAssignment() bool { return t.Type == TypeAssign }

// IsCast reports whether t is a numeric-type cast.
func (t Token) IsCast() bool {
	switch t.Type {
	case TypeCastInt8, TypeCastUint8, TypeCastInt16, TypeCastUint16,
		TypeCastInt32, TypeCastUint32, TypeCastInt64, TypeCastUint64,
		TypeCastFloat32, TypeCastFloat64:
		return true
	default:
		return false
	}
}

// IsAccessModifier reports whether t only rewrites indices rather than
// computing a new value (spec §4.1 "access-modifier boundaries").
func (t Token) IsAccessModifier() bool {
	switch t.Type {
	case TypeTrans, TypeReshape, TypeDiagMatrix, TypeDiagVector:
		return true
	default:
		return false
	}
}

// IsFunction reports whether t's C spelling is a function call
// (`fn(lhs, rhs)`) rather than an infix operator (`lhs op rhs`).
func (t Token) IsFunction() bool {
	switch t.Type {
	case TypeAbs, TypeAcos, TypeAsin, TypeAtan, TypeCeil, TypeCos, TypeCosh,
		TypeExp, TypeFloor, TypeLog, TypeLog10, TypeSin, TypeSinh, TypeSqrt,
		TypeTan, TypeTanh,
		TypeElementPow, TypeElementMax, TypeElementMin, TypeElementFMax, TypeElementFMin:
		return true
	default:
		return false
	}
}

// IsIndexProducing reports whether a reduction token carries along an
// index (argmax/argmin and their float-neutral-element variants).
func (t Token) IsIndexProducing() bool {
	switch t.Type {
	case TypeReduceArgMax, TypeReduceArgMin, TypeReduceArgFMax, TypeReduceArgFMin:
		return true
	default:
		return false
	}
}

// CSpelling returns the infix operator or function-call spelling used by
// the binary-arithmetic symbolic object when emitting code.
func (t Token) CSpelling() string {
	switch t.Type {
	case TypeAdd:
		return "+"
	case TypeSub:
		return "-"
	case TypeMult:
		return "*"
	case TypeDiv:
		return "/"
	case TypeElementEq:
		return "=="
	case TypeElementNeq:
		return "!="
	case TypeElementGreater:
		return ">"
	case TypeElementGeq:
		return ">="
	case TypeElementLess:
		return "<"
	case TypeElementLeq:
		return "<="
	case TypeAbs:
		return "fabs"
	case TypeAcos:
		return "acos"
	case TypeAsin:
		return "asin"
	case TypeAtan:
		return "atan"
	case TypeCeil:
		return "ceil"
	case TypeCos:
		return "cos"
	case TypeCosh:
		return "cosh"
	case TypeExp:
		return "exp"
	case TypeFloor:
		return "floor"
	case TypeLog:
		return "log"
	case TypeLog10:
		return "log10"
	case TypeSin:
		return "sin"
	case TypeSinh:
		return "sinh"
	case TypeSqrt:
		return "sqrt"
	case TypeTan:
		return "tan"
	case TypeTanh:
		return "tanh"
	case TypeElementPow:
		return "pow"
	case TypeElementMax, TypeElementFMax:
		return "max"
	case TypeElementMin, TypeElementFMin:
		return "min"
	default:
		return ""
	}
}

// ReduceCSpelling returns the binary reducer function spelling used by the
// tree-reduction pattern (spec §4.3.3), e.g. "max" for TypeReduceMax.
func (t Type) ReduceCSpelling() string {
	switch t {
	case TypeReduceSum:
		return "+"
	case TypeReduceMax, TypeReduceArgMax:
		return "max"
	case TypeReduceMin, TypeReduceArgMin:
		return "min"
	case TypeReduceFMax, TypeReduceArgFMax:
		return "fmax"
	case TypeReduceFMin, TypeReduceArgFMin:
		return "fmin"
	default:
		return "+"
	}
}
