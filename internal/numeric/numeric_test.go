package numeric

import "testing"

func TestTypeStringRoundTrip(t *testing.T) {
	for _, want := range []Type{Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float32, Float64} {
		got, ok := FromString(want.String())
		if !ok || got != want {
			t.Errorf("FromString(%q) = %v, %v; want %v, true", want.String(), got, ok, want)
		}
	}
}

func TestTypeSize(t *testing.T) {
	cases := []struct {
		t    Type
		size int
	}{
		{Int8, 1}, {Uint8, 1}, {Int16, 2}, {Uint16, 2},
		{Int32, 4}, {Uint32, 4}, {Int64, 8}, {Uint64, 8},
		{Float32, 4}, {Float64, 8}, {Invalid, 0},
	}
	for _, c := range cases {
		if got := c.t.Size(); got != c.size {
			t.Errorf("%v.Size() = %d, want %d", c.t, got, c.size)
		}
	}
}

func TestTypeIsFloatIsSigned(t *testing.T) {
	if !Float32.IsFloat() || !Float64.IsFloat() {
		t.Error("Float32/Float64 must report IsFloat")
	}
	if Int32.IsFloat() || Uint32.IsFloat() {
		t.Error("integer types must not report IsFloat")
	}
	if !Int32.IsSigned() || Uint32.IsSigned() {
		t.Error("signedness mismatch for Int32/Uint32")
	}
}

func TestScalarIntRoundTrip(t *testing.T) {
	s := Int(Int32, -7)
	if s.AsInt64() != -7 {
		t.Errorf("AsInt64() = %d, want -7", s.AsInt64())
	}
	if got := s.ConvertTo(Float64).AsFloat64(); got != -7 {
		t.Errorf("ConvertTo(Float64).AsFloat64() = %v, want -7", got)
	}
}

func TestScalarTruncation(t *testing.T) {
	s := Int(Int8, 300) // 300 truncates to 0x2C = 44 in an int8 word
	if s.AsInt64() != 44 {
		t.Errorf("truncated Int8(300).AsInt64() = %d, want 44", s.AsInt64())
	}
}

func TestScalarFloat32BitPattern(t *testing.T) {
	s := Float32Scalar(3.5)
	if got := s.AsFloat64(); got != 3.5 {
		t.Errorf("Float32Scalar(3.5).AsFloat64() = %v, want 3.5", got)
	}
	if s.Type != Float32 {
		t.Errorf("Float32Scalar.Type = %v, want Float32", s.Type)
	}
}

func TestScalarUnsignedAsFloat(t *testing.T) {
	s := Uint(Uint64, 42)
	if got := s.AsFloat64(); got != 42 {
		t.Errorf("Uint(Uint64, 42).AsFloat64() = %v, want 42", got)
	}
}
