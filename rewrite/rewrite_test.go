package rewrite

import (
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

func TestConstantFolding(t *testing.T) {
	g := newGraph()
	two, err := ops.ConstantValue(g, 2.0, tshape.Scalar())
	require.NoError(t, err)
	three, err := ops.ConstantValue(g, 3.0, tshape.Scalar())
	require.NoError(t, err)
	sum, err := ops.SumAdd(g, two, three)
	require.NoError(t, err)

	out, outputs, _, _, err := Optimize(g, []graph.NodeID{sum}, nil, nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	n, err := out.Node(outputs[0])
	require.NoError(t, err)
	v, ok := n.Op.(ops.Value)
	require.True(t, ok, "expected folded Value, got %T", n.Op)
	require.Equal(t, 5.0, v.Val)
}

func TestDoubleNegationCollapses(t *testing.T) {
	g := newGraph()
	xid, err := ops.Matrix(g, symbolic.FromVar(0), symbolic.FromVar(1), dtype.F64)
	require.NoError(t, err)
	negX, err := ops.Neg(g, xid)
	require.NoError(t, err)
	negNegX, err := ops.Neg(g, negX)
	require.NoError(t, err)

	out, outputs, _, newInputs, err := Optimize(g, []graph.NodeID{negNegX}, nil, []graph.NodeID{xid})
	require.NoError(t, err)
	require.Len(t, newInputs, 1)

	n, err := out.Node(outputs[0])
	require.NoError(t, err)
	alias, ok := n.Op.(ops.Alias)
	require.True(t, ok, "expected collapsed double negation to alias the original input, got %T", n.Op)
	require.Equal(t, newInputs[0], alias.Target)
}

func TestIdentityEliminationDropsAdditiveZero(t *testing.T) {
	g := newGraph()
	xid, err := ops.Matrix(g, symbolic.FromVar(0), symbolic.FromVar(1), dtype.F64)
	require.NoError(t, err)
	zero, err := ops.Zeros(g, g.MustNode(xid).Shape, g.MustNode(xid).DType)
	require.NoError(t, err)
	sum, err := ops.SumAdd(g, xid, zero)
	require.NoError(t, err)

	out, outputs, _, newInputs, err := Optimize(g, []graph.NodeID{sum}, nil, []graph.NodeID{xid})
	require.NoError(t, err)

	n, err := out.Node(outputs[0])
	require.NoError(t, err)
	alias, ok := n.Op.(ops.Alias)
	require.True(t, ok, "expected Add(x, 0) to collapse to an alias of x, got %T", n.Op)
	require.Equal(t, newInputs[0], alias.Target)
}

func TestGlobalCSEMergesDuplicateSubtrees(t *testing.T) {
	g := newGraph()
	// Leaf operators always append fresh (see ops.derive), so two separately
	// constructed constants carrying the same value are distinct nodes until
	// a global pass notices they're structurally equal.
	a, err := ops.ConstantValue(g, 2.0, tshape.Scalar())
	require.NoError(t, err)
	b, err := ops.ConstantValue(g, 2.0, tshape.Scalar())
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	out, err := ops.SumMul(g, a, b)
	require.NoError(t, err)

	changed := globalCSE(g, g.Logger())
	require.True(t, changed)

	outN, err := g.Node(out)
	require.NoError(t, err)
	mul, ok := outN.Op.(ops.Mul)
	require.True(t, ok)
	require.Equal(t, mul.ParentsV[0], mul.ParentsV[1])
}

func TestHoistScalarFromSumProducesScalarsTimesSum(t *testing.T) {
	g := newGraph()
	s1, err := ops.ConstantValue(g, 2.0, tshape.Scalar())
	require.NoError(t, err)
	s2, err := ops.ConstantValue(g, 3.0, tshape.Scalar())
	require.NoError(t, err)
	m, err := ops.Matrix(g, symbolic.Const(2), symbolic.Const(2), dtype.F64)
	require.NoError(t, err)

	product, err := ops.SumMul(g, s1, s2, m)
	require.NoError(t, err)
	summed, err := ops.Sum(g, product, []int{0, 1}, false)
	require.NoError(t, err)

	changed := hoistScalarFromSum(g, g.Logger())
	require.True(t, changed)

	n, err := g.Node(summed)
	require.NoError(t, err)
	alias, ok := n.Op.(ops.Alias)
	require.True(t, ok, "expected sum(s1*s2*M) to alias a hoisted Mul(s1, s2, Sum(M)), got %T", n.Op)

	outer, err := g.Node(alias.Target)
	require.NoError(t, err)
	mul, ok := outer.Op.(ops.Mul)
	require.True(t, ok, "expected the hoisted node to be Mul(s1, s2, Sum(M)), got %T", outer.Op)
	require.Len(t, mul.ParentsV, 3)
	require.Contains(t, mul.ParentsV, s1)
	require.Contains(t, mul.ParentsV, s2)

	var innerSumID graph.NodeID
	found := false
	for _, p := range mul.ParentsV {
		if p != s1 && p != s2 {
			innerSumID = p
			found = true
		}
	}
	require.True(t, found)
	innerSum, err := g.Node(innerSumID)
	require.NoError(t, err)
	sumOp, ok := innerSum.Op.(ops.SumOp)
	require.True(t, ok, "expected the remaining factor to be Sum(M), got %T", innerSum.Op)
	require.Equal(t, m, sumOp.Parent)
}

func TestOptimizeCompactsUnreachableNodes(t *testing.T) {
	g := newGraph()
	xid, err := ops.Matrix(g, symbolic.FromVar(0), symbolic.FromVar(1), dtype.F64)
	require.NoError(t, err)
	_, err = ops.Neg(g, xid) // never used, should not survive compaction
	require.NoError(t, err)
	used, err := ops.Square(g, xid)
	require.NoError(t, err)

	before := g.Len()
	out, outputs, _, _, err := Optimize(g, []graph.NodeID{used}, nil, nil)
	require.NoError(t, err)
	require.Less(t, out.Len(), before)
	require.Len(t, outputs, 1)
}
