package autodiff

import (
	"errors"
	"testing"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/metadiff/core/registry"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
	"github.com/stretchr/testify/require"
)

func newGraph() *graph.Graph {
	return graph.New(graph.DefaultConfig(), registry.New())
}

// TestScalarChainRule checks d/dx[x^2] = 2x by shape alone: the chain
// rule should produce a node with the same shape/dtype as x, built by
// Square's Gradient implementation out of Mul nodes.
func TestScalarChainRule(t *testing.T) {
	g := newGraph()
	x, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	y, err := ops.Square(g, x)
	require.NoError(t, err)

	grads, err := Differentiate(g, y, []graph.NodeID{x})
	require.NoError(t, err)
	require.Len(t, grads, 1)

	gn, err := g.Node(grads[0])
	require.NoError(t, err)
	require.True(t, gn.Shape.Eq(tshape.Scalar()))
	require.Equal(t, dtype.F64, gn.DType)
}

func TestDeepChainRule(t *testing.T) {
	g := newGraph()
	x, err := ops.Vector(g, symbolic.Const(10), dtype.F64)
	require.NoError(t, err)

	cur := x
	for i := 0; i < 8; i++ {
		cur, err = ops.Tanh(g, cur)
		require.NoError(t, err)
	}
	loss, err := ops.Sum(g, cur, []int{0}, false)
	require.NoError(t, err)

	grads, err := Differentiate(g, loss, []graph.NodeID{x})
	require.NoError(t, err)
	require.Len(t, grads, 1)

	gn, err := g.Node(grads[0])
	require.NoError(t, err)
	require.True(t, gn.Shape.Eq(g.MustNode(x).Shape))
}

func TestNonScalarObjectiveRaisesUnsupportedGradient(t *testing.T) {
	g := newGraph()
	x, err := ops.Vector(g, symbolic.Const(10), dtype.F64)
	require.NoError(t, err)

	_, err = Differentiate(g, x, []graph.NodeID{x})
	require.Error(t, err)
	require.True(t, errors.Is(err, graph.KindUnsupportedGradient))
}

func TestDisconnectedParamGetsZeroGradient(t *testing.T) {
	g := newGraph()
	x, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	unrelated, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	y, err := ops.Square(g, x)
	require.NoError(t, err)

	grads, err := Differentiate(g, y, []graph.NodeID{x, unrelated})
	require.NoError(t, err)
	require.Len(t, grads, 2)

	gn, err := g.Node(grads[1])
	require.NoError(t, err)
	v, ok := gn.Op.(ops.Value)
	require.True(t, ok, "expected disconnected param's gradient to be a zero constant, got %T", gn.Op)
	require.Equal(t, 0.0, v.Val)
}
