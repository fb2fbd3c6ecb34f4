package ops

import (
	"testing"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/policy"
	"github.com/metadiff/core/registry"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
	"github.com/stretchr/testify/require"
)

func newGraph() *graph.Graph {
	return graph.New(graph.DefaultConfig(), registry.New())
}

func TestDeriveMergesStructurallyEqualNodes(t *testing.T) {
	g := newGraph()
	x, err := Scalar(g, dtype.F64)
	require.NoError(t, err)
	y, err := Scalar(g, dtype.F64)
	require.NoError(t, err)

	a, err := SumAdd(g, x, y)
	require.NoError(t, err)
	b, err := SumAdd(g, x, y)
	require.NoError(t, err)

	require.NotEqual(t, a, b, "second call should return a distinct Alias node")
	bn, err := g.Node(b)
	require.NoError(t, err)
	alias, ok := bn.Op.(Alias)
	require.True(t, ok)
	require.Equal(t, a, alias.Target)
}

func TestBroadcastPolicyRaise(t *testing.T) {
	cfg := graph.DefaultConfig()
	cfg.Broadcast = policy.Raise
	g := graph.New(cfg, registry.New())

	scalar, err := Scalar(g, dtype.F64)
	require.NoError(t, err)
	vec, err := Vector(g, symbolic.Const(4), dtype.F64)
	require.NoError(t, err)

	_, err = SumAdd(g, scalar, vec)
	require.Error(t, err)
}

func TestBroadcastPolicyQuietInsertsBroadcastNode(t *testing.T) {
	g := newGraph()
	scalar, err := Scalar(g, dtype.F64)
	require.NoError(t, err)
	vec, err := Vector(g, symbolic.Const(4), dtype.F64)
	require.NoError(t, err)

	sum, err := SumAdd(g, scalar, vec)
	require.NoError(t, err)
	n, err := g.Node(sum)
	require.NoError(t, err)
	require.True(t, n.Shape.Eq(g.MustNode(vec).Shape))
}

func TestCastPolicyRaise(t *testing.T) {
	cfg := graph.DefaultConfig()
	cfg.Cast = policy.Raise
	g := graph.New(cfg, registry.New())

	f, err := Scalar(g, dtype.F64)
	require.NoError(t, err)
	i, err := Scalar(g, dtype.I64)
	require.NoError(t, err)

	// Select casts its non-b8 condition to b8, so an I64 condition under
	// Raise should be rejected rather than silently coerced.
	_, err = Select(g, i, f, f)
	require.Error(t, err)
}

func TestSquareGradientShape(t *testing.T) {
	g := newGraph()
	x, err := Matrix(g, symbolic.FromVar(0), symbolic.FromVar(1), dtype.F64)
	require.NoError(t, err)
	sq, err := Square(g, x)
	require.NoError(t, err)

	one, err := ConstantValue(g, 1.0, g.MustNode(sq).Shape)
	require.NoError(t, err)
	sqNode, err := g.Node(sq)
	require.NoError(t, err)
	grad, err := sqNode.Op.Gradient(g, sq, one, 0)
	require.NoError(t, err)

	gn, err := g.Node(grad)
	require.NoError(t, err)
	require.True(t, gn.Shape.Eq(g.MustNode(x).Shape))
}

func TestMatMulShapeMismatchErrors(t *testing.T) {
	g := newGraph()
	a, err := Matrix(g, symbolic.Const(2), symbolic.Const(3), dtype.F64)
	require.NoError(t, err)
	b, err := Matrix(g, symbolic.Const(4), symbolic.Const(5), dtype.F64)
	require.NoError(t, err)

	_, err = MatMul(g, a, b)
	require.Error(t, err)
}

func TestConstantKindPropagation(t *testing.T) {
	g := newGraph()
	a, err := ConstantValue(g, 2.0, tshape.Scalar())
	require.NoError(t, err)
	b, err := ConstantValue(g, 3.0, tshape.Scalar())
	require.NoError(t, err)
	sum, err := SumAdd(g, a, b)
	require.NoError(t, err)
	require.Equal(t, graph.Constant, g.MustNode(sum).Kind)

	x, err := Scalar(g, dtype.F64)
	require.NoError(t, err)
	mixed, err := SumAdd(g, a, x)
	require.NoError(t, err)
	require.Equal(t, graph.InputDerived, g.MustNode(mixed).Kind)
}
