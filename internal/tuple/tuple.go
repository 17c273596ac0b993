// Package tuple implements the ordered integer sequences used as shapes
// and strides throughout the expression tree and code-generation layers.
package tuple

import "fmt"

// Tuple is an ordered sequence of signed integers: shape[i] is the extent
// along axis i, stride[i] the distance (in elements) between successive
// entries along that axis.
type Tuple []int64

// Of builds a Tuple from the given values.
func Of(values ...int64) Tuple {
	t := make(Tuple, len(values))
	copy(t, values)
	return t
}

// Size returns the number of axes.
func (t Tuple) Size() int { return len(t) }

// Max returns the largest element, or math.MinInt64 for an empty tuple.
func (t Tuple) Max() int64 {
	if len(t) == 0 {
		return minInt64
	}
	m := t[0]
	for _, v := range t[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest element, or math.MaxInt64 for an empty tuple.
func (t Tuple) Min() int64 {
	if len(t) == 0 {
		return maxInt64
	}
	m := t[0]
	for _, v := range t[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Product returns the product of every element (1 for an empty tuple).
func (t Tuple) Product() int64 {
	p := int64(1)
	for _, v := range t {
		p *= v
	}
	return p
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// Front returns the first element.
func (t Tuple) Front() int64 { return t[0] }

// Back returns the last element.
func (t Tuple) Back() int64 { return t[len(t)-1] }

// Equal reports whether t and o hold the same elements in the same order.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// NumNonUnit returns how many axes have an extent greater than 1; used by
// the scheduler to pick element-wise-1D vs element-wise-2D, and by
// templates to decide which axes need a stride argument at all.
func (t Tuple) NumNonUnit() int {
	n := 0
	for _, v := range t {
		if v > 1 {
			n++
		}
	}
	return n
}

// NonUnitAxes returns the indices of axes with extent greater than 1, in
// order; used to determine which stride arguments a kernel must bind.
func (t Tuple) NonUnitAxes() []int {
	axes := make([]int, 0, len(t))
	for i, v := range t {
		if v > 1 {
			axes = append(axes, i)
		}
	}
	return axes
}

// ContiguousStride returns the row-major strides for a shape of this
// extent: stride[last]=1, stride[i]=stride[i+1]*shape[i+1]. Used to
// relinearize a reshape's flat index against its new (and, symmetrically,
// its pre-reshape) shape.
func (t Tuple) ContiguousStride() Tuple {
	s := make(Tuple, len(t))
	acc := int64(1)
	for i := len(t) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= t[i]
	}
	return s
}

// Clone returns an independent copy.
func (t Tuple) Clone() Tuple {
	c := make(Tuple, len(t))
	copy(c, t)
	return c
}

func (t Tuple) String() string {
	s := "("
	for i, v := range t {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", v)
	}
	return s + ")"
}
