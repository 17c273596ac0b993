package numeric

import (
	"fmt"
	"math"
)

// Scalar Value Representation
// ===========================
//
// A Scalar is a (Type, value) pair where the value is stored in a single
// 64-bit word regardless of the declared type. This keeps immediates
// (VALUE_SCALAR tree nodes, reduction neutral elements) copyable and
// comparable without boxing, and mirrors how the expression tree stores
// every other fixed-size payload inline in its flat arena.
//
// Integers (signed or unsigned, any width) are truncated to their
// declared width when stored and sign/zero-extended back to 64 bits on
// read.
// Floats are stored via their IEEE-754 bit pattern (Float32 values use
// the low 32 bits of a float32 bit pattern, not a widened float64).
type Scalar struct {
	Type Type
	bits uint64
}

// Int returns a Scalar of the requested integer type holding v, truncated
// to that type's width.
func Int(t Type, v int64) Scalar {
	return Scalar{Type: t, bits: truncate(t, uint64(v))}
}

// Uint returns a Scalar of the requested unsigned integer type holding v.
func Uint(t Type, v uint64) Scalar {
	return Scalar{Type: t, bits: truncate(t, v)}
}

// Float32Scalar returns a Scalar holding a float32 value.
func Float32Scalar(v float32) Scalar {
	return Scalar{Type: numericFloat32, bits: uint64(math.Float32bits(v))}
}

// Float64Scalar returns a Scalar holding a float64 value.
func Float64Scalar(v float64) Scalar {
	return Scalar{Type: numericFloat64, bits: math.Float64bits(v)}
}

// internal aliases so the constructors above read naturally next to the
// exported Type constants without colliding with the function names.
const (
	numericFloat32 = Float32
	numericFloat64 = Float64
)

func truncate(t Type, v uint64) uint64 {
	switch t.Size() {
	case 1:
		return v & 0xFF
	case 2:
		return v & 0xFFFF
	case 4:
		return v & 0xFFFFFFFF
	default:
		return v
	}
}

// AsInt64 returns the scalar's value widened to int64, sign-extending if
// the declared type is signed.
func (s Scalar) AsInt64() int64 {
	switch s.Type {
	case Int8:
		return int64(int8(s.bits))
	case Int16:
		return int64(int16(s.bits))
	case Int32:
		return int64(int32(s.bits))
	case Int64:
		return int64(s.bits)
	case Uint8, Uint16, Uint32, Uint64:
		return int64(s.bits)
	case Float32:
		return int64(math.Float32frombits(uint32(s.bits)))
	case Float64:
		return int64(math.Float64frombits(s.bits))
	default:
		return 0
	}
}

// AsFloat64 returns the scalar's value widened to float64.
func (s Scalar) AsFloat64() float64 {
	switch s.Type {
	case Float32:
		return float64(math.Float32frombits(uint32(s.bits)))
	case Float64:
		return math.Float64frombits(s.bits)
	case Uint8, Uint16, Uint32, Uint64:
		return float64(s.bits)
	default:
		return float64(s.AsInt64())
	}
}

// Bits returns the scalar's raw 64-bit storage, for use by the driver
// layer when binding a host-scalar kernel argument.
func (s Scalar) Bits() uint64 { return s.bits }

// ConvertTo returns a new Scalar holding s's value reinterpreted as t,
// applying the same conversion a C cast would.
func (s Scalar) ConvertTo(t Type) Scalar {
	if t == s.Type {
		return s
	}
	if t.IsFloat() {
		if t == Float32 {
			return Float32Scalar(float32(s.AsFloat64()))
		}
		return Float64Scalar(s.AsFloat64())
	}
	return Int(t, s.AsInt64())
}

func (s Scalar) String() string {
	if s.Type.IsFloat() {
		return fmt.Sprintf("%g", s.AsFloat64())
	}
	if s.Type.IsSigned() {
		return fmt.Sprintf("%d", s.AsInt64())
	}
	return fmt.Sprintf("%d", s.bits)
}
