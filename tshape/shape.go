// Package tshape implements the four-axis tensor shape tuple used
// throughout the graph IR. Each axis is a symbolic.Polynomial rather than a
// concrete integer, so shapes can be reasoned about before any dimension is
// bound to a number.
package tshape

import (
	"fmt"
	"strings"

	"github.com/metadiff/core/symbolic"
)

// Shape is a fixed-size tuple of four symbolic integers (d0, d1, d2, d3).
type Shape [4]symbolic.Polynomial

// New builds a shape from four axes.
func New(d0, d1, d2, d3 symbolic.Polynomial) Shape {
	return Shape{d0, d1, d2, d3}
}

// Scalar returns the shape (1, 1, 1, 1).
func Scalar() Shape {
	one := symbolic.One()
	return Shape{one, one, one, one}
}

// Vector returns the shape (d0, 1, 1, 1).
func Vector(d0 symbolic.Polynomial) Shape {
	one := symbolic.One()
	return Shape{d0, one, one, one}
}

// Matrix returns the shape (d0, d1, 1, 1).
func Matrix(d0, d1 symbolic.Polynomial) Shape {
	one := symbolic.One()
	return Shape{d0, d1, one, one}
}

func isOne(p symbolic.Polynomial) bool { return p.Eq(symbolic.One()) }

// IsScalar reports whether every axis is 1.
func (s Shape) IsScalar() bool {
	return isOne(s[0]) && isOne(s[1]) && isOne(s[2]) && isOne(s[3])
}

// IsVector reports whether only d0 may differ from 1.
func (s Shape) IsVector() bool {
	return isOne(s[1]) && isOne(s[2]) && isOne(s[3])
}

// IsStrictMatrix reports whether d0,d1 != 1 and d2,d3 == 1.
func (s Shape) IsStrictMatrix() bool {
	return !isOne(s[0]) && !isOne(s[1]) && isOne(s[2]) && isOne(s[3])
}

// IsStrictTensor3 reports whether d0,d1,d2 != 1 and d3 == 1.
func (s Shape) IsStrictTensor3() bool {
	return !isOne(s[0]) && !isOne(s[1]) && !isOne(s[2]) && isOne(s[3])
}

// IsStrictTensor4 reports whether every axis differs from 1.
func (s Shape) IsStrictTensor4() bool {
	return !isOne(s[0]) && !isOne(s[1]) && !isOne(s[2]) && !isOne(s[3])
}

// ElementCount returns (d0*d1)*(d2*d3) as a polynomial.
func (s Shape) ElementCount() symbolic.Polynomial {
	return s[0].Mul(s[1]).Mul(s[2].Mul(s[3]))
}

// Eq reports structural equality of every axis.
func (s Shape) Eq(o Shape) bool {
	for i := 0; i < 4; i++ {
		if !s[i].Eq(o[i]) {
			return false
		}
	}
	return true
}

// AxisEqualOrOne reports whether, for every axis, s's axis is 1 or equal to
// o's axis — the precondition for s to be implicitly broadcastable to o.
func (s Shape) AxisEqualOrOne(o Shape) bool {
	for i := 0; i < 4; i++ {
		if isOne(s[i]) {
			continue
		}
		if !s[i].Eq(o[i]) {
			return false
		}
	}
	return true
}

// BroadcastMax folds shapes left to right and returns, axis by axis,
// whichever axis is not equal to 1. Where two axes are both not 1 they must
// be equal; otherwise BroadcastMax returns an error.
func BroadcastMax(shapes ...Shape) (Shape, error) {
	if len(shapes) == 0 {
		return Scalar(), nil
	}
	result := shapes[0]
	for _, s := range shapes[1:] {
		var next Shape
		for axis := 0; axis < 4; axis++ {
			switch {
			case isOne(result[axis]):
				next[axis] = s[axis]
			case isOne(s[axis]):
				next[axis] = result[axis]
			case result[axis].Eq(s[axis]):
				next[axis] = result[axis]
			default:
				return Shape{}, fmt.Errorf("incompatible shapes along axis %d: %s vs %s", axis, result[axis], s[axis])
			}
		}
		result = next
	}
	return result, nil
}

func (s Shape) String() string {
	parts := make([]string, 4)
	for i, p := range s {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
