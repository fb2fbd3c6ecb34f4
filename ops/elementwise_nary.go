package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// Add is the commutative n-ary elementwise sum, broadcasting its parents to
// a common shape and promoting their dtypes.
type Add struct {
	ParentsV []graph.NodeID
	ShapeV   tshape.Shape
	DTypeV   dtype.Type
}

func (a Add) Name() string             { return "Add" }
func (a Add) Parents() []graph.NodeID  { return a.ParentsV }
func (a Add) Arguments() []graph.NodeID { return nil }
func (a Add) InferShape(g *graph.Graph) (tshape.Shape, error) { return a.ShapeV, nil }
func (a Add) InferDType(g *graph.Graph) (dtype.Type, error)   { return a.DTypeV, nil }
func (a Add) InferKind(g *graph.Graph) graph.Kind             { return inferKindFromParents(g, a.ParentsV) }
func (a Add) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// d/dx_i sum(x) = msg, reduced back down to parent i's own shape.
	return reduceToShape(g, msg, g.MustNode(a.ParentsV[parentIdx]).Shape)
}
func (a Add) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Add)
	return ok && sameNodeSet(a.ParentsV, o.ParentsV)
}
func (a Add) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	return Add{ParentsV: remapList(a.ParentsV, remap), ShapeV: a.ShapeV, DTypeV: a.DTypeV}
}

// SumAdd appends (deriving via CSE) the elementwise sum of operands, which
// must number at least two.
func SumAdd(g *graph.Graph, operands ...graph.NodeID) (graph.NodeID, error) {
	if len(operands) < 2 {
		return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: operands, Operator: "Add"}, "Add requires at least 2 operands")
	}
	parents, shape, err := broadcastAll(g, "Add", operands)
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, "Add", parents)
	if err != nil {
		return -1, err
	}
	return derive(g, Add{ParentsV: parents, ShapeV: shape, DTypeV: dt}, parents, nil)
}

// Mul is the commutative n-ary elementwise (Hadamard) product.
type Mul struct {
	ParentsV []graph.NodeID
	ShapeV   tshape.Shape
	DTypeV   dtype.Type
}

func (m Mul) Name() string              { return "Mul" }
func (m Mul) Parents() []graph.NodeID   { return m.ParentsV }
func (m Mul) Arguments() []graph.NodeID { return nil }
func (m Mul) InferShape(g *graph.Graph) (tshape.Shape, error) { return m.ShapeV, nil }
func (m Mul) InferDType(g *graph.Graph) (dtype.Type, error)   { return m.DTypeV, nil }
func (m Mul) InferKind(g *graph.Graph) graph.Kind             { return inferKindFromParents(g, m.ParentsV) }
func (m Mul) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// d/dx_i prod(x) = msg * prod_{j != i} x_j
	others := make([]graph.NodeID, 0, len(m.ParentsV)-1)
	for j, p := range m.ParentsV {
		if j != parentIdx {
			others = append(others, p)
		}
	}
	rest := others[0]
	var err error
	for _, o := range others[1:] {
		rest, err = SumMul(g, rest, o)
		if err != nil {
			return -1, err
		}
	}
	local, err := SumMul(g, msg, rest)
	if err != nil {
		return -1, err
	}
	return reduceToShape(g, local, g.MustNode(m.ParentsV[parentIdx]).Shape)
}
func (m Mul) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Mul)
	return ok && sameNodeSet(m.ParentsV, o.ParentsV)
}
func (m Mul) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	return Mul{ParentsV: remapList(m.ParentsV, remap), ShapeV: m.ShapeV, DTypeV: m.DTypeV}
}

// SumMul appends (deriving via CSE) the elementwise product of operands.
func SumMul(g *graph.Graph, operands ...graph.NodeID) (graph.NodeID, error) {
	if len(operands) < 2 {
		return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: operands, Operator: "Mul"}, "Mul requires at least 2 operands")
	}
	parents, shape, err := broadcastAll(g, "Mul", operands)
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, "Mul", parents)
	if err != nil {
		return -1, err
	}
	return derive(g, Mul{ParentsV: parents, ShapeV: shape, DTypeV: dt}, parents, nil)
}
