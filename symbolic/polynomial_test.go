package symbolic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddIsHomomorphic(t *testing.T) {
	x, y := FromVar(0), FromVar(1)
	a := x.Mul(x).Add(Const(3))           // x^2 + 3
	b := x.Mul(y).Sub(Const(2).Mul(y))    // xy - 2y

	sum := a.Add(b)
	assignment := map[Var]int64{0: 5, 1: -2}
	require.Equal(t, a.Subst(assignment)+b.Subst(assignment), sum.Subst(assignment))
}

func TestMulIsHomomorphic(t *testing.T) {
	x, y := FromVar(0), FromVar(1)
	a := x.Add(Const(1))
	b := y.Sub(Const(4))

	product := a.Mul(b)
	assignment := map[Var]int64{0: 7, 1: 3}
	require.Equal(t, a.Subst(assignment)*b.Subst(assignment), product.Subst(assignment))
}

func TestExactDivisionRoundTrips(t *testing.T) {
	x, y := FromVar(0), FromVar(1)
	q := x.Add(y)
	b := x.Mul(x).Sub(y.Mul(y)) // x^2 - y^2 = (x+y)(x-y)
	divisor := x.Sub(y)

	got, err := b.Div(divisor)
	require.NoError(t, err)
	require.True(t, got.Eq(q), "expected %s, got %s", q, got)
}

func TestDivisionFailsWhenNotExact(t *testing.T) {
	x := FromVar(0)
	_, err := x.Div(Const(2).Mul(x))
	require.Error(t, err)
	require.True(t, ErrNonIntegerDivision.Is(err))
}

func TestDivisionFailsOnNegativeExponent(t *testing.T) {
	x, y := FromVar(0), FromVar(1)
	_, err := x.Div(x.Mul(y))
	require.Error(t, err)
}

func TestOrderingIsTotal(t *testing.T) {
	a := FromVar(0).Mul(FromVar(0)) // x0^2
	b := FromVar(0)                // x0
	c := FromVar(1)                // x1

	require.True(t, a.Less(b) || b.Less(a))
	require.False(t, a.Less(a))
	require.True(t, b.Less(c) != c.Less(b))
}

func TestEvalRequiresConstant(t *testing.T) {
	_, err := FromVar(0).Eval()
	require.Error(t, err)
	require.True(t, ErrNonConstantEvaluation.Is(err))

	v, err := Const(42).Eval()
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestZeroCoefficientsNeverSurvive(t *testing.T) {
	p := FromVar(0).Sub(FromVar(0))
	require.True(t, p.IsZero())
	require.Equal(t, "0", p.String())
}
