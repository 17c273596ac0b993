// Package numeric enumerates the element types the engine can generate
// kernels for, and carries a polymorphic scalar value around them.
package numeric

import "fmt"

// Type is the closed set of element types recognized by the expression
// tree, the templates, and the driver argument binder.
type Type uint8

const (
	Invalid Type = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var names = [...]string{
	Invalid: "invalid",
	Int8:    "int8", Uint8: "uint8",
	Int16: "int16", Uint16: "uint16",
	Int32: "int32", Uint32: "uint32",
	Int64: "int64", Uint64: "uint64",
	Float32: "float32", Float64: "float64",
}

var sizes = [...]int{
	Invalid: 0,
	Int8:    1, Uint8: 1,
	Int16: 2, Uint16: 2,
	Int32: 4, Uint32: 4,
	Int64: 8, Uint64: 8,
	Float32: 4, Float64: 8,
}

// String returns the canonical, lowercase spelling of t.
func (t Type) String() string {
	if int(t) >= len(names) {
		return fmt.Sprintf("numeric.Type(%d)", uint8(t))
	}
	return names[t]
}

// Size returns the element's size in bytes, or 0 for Invalid.
func (t Type) Size() int {
	if int(t) >= len(sizes) {
		return 0
	}
	return sizes[t]
}

// IsFloat reports whether t is a floating-point type.
func (t Type) IsFloat() bool {
	return t == Float32 || t == Float64
}

// IsSigned reports whether t is a signed integer or floating-point type.
func (t Type) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	default:
		return false
	}
}

// FromString parses the canonical spelling produced by String, returning
// Invalid (and false) on no match.
func FromString(name string) (Type, bool) {
	for t, n := range names {
		if t == int(Invalid) {
			continue
		}
		if n == name {
			return Type(t), true
		}
	}
	return Invalid, false
}

// Promote returns the result type of combining a and b under the usual
// arithmetic promotion rules: same type propagates unchanged, a float
// operand wins over an integer one, and otherwise the wider type wins.
func Promote(a, b Type) Type {
	if a == b {
		return a
	}
	if a == Invalid {
		return b
	}
	if b == Invalid {
		return a
	}
	if a.IsFloat() != b.IsFloat() {
		if a.IsFloat() {
			return a
		}
		return b
	}
	if a.Size() >= b.Size() {
		return a
	}
	return b
}
