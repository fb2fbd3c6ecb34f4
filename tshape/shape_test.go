package tshape

import (
	"testing"

	"github.com/metadiff/core/symbolic"
	"github.com/stretchr/testify/require"
)

func TestClassifiers(t *testing.T) {
	require.True(t, Scalar().IsScalar())
	require.True(t, Vector(symbolic.FromVar(0)).IsVector())
	require.True(t, Matrix(symbolic.FromVar(0), symbolic.FromVar(1)).IsStrictMatrix())
}

func TestElementCount(t *testing.T) {
	n, m := symbolic.FromVar(0), symbolic.FromVar(1)
	s := Matrix(n, m)
	require.True(t, s.ElementCount().Eq(n.Mul(m)))
}

func TestBroadcastMax(t *testing.T) {
	n := symbolic.FromVar(0)
	scalar := Scalar()
	vec := Vector(n)

	got, err := BroadcastMax(scalar, vec)
	require.NoError(t, err)
	require.True(t, got.Eq(vec))
}

func TestBroadcastMaxIncompatible(t *testing.T) {
	a := Vector(symbolic.FromVar(0))
	b := Vector(symbolic.FromVar(1))
	_, err := BroadcastMax(a, b)
	require.Error(t, err)
}
