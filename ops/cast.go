package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// CastOp reinterprets Parent's values under DTypeV, preserving shape.
type CastOp struct {
	Parent   graph.NodeID
	FromType dtype.Type
	DTypeV   dtype.Type
	ShapeV   tshape.Shape
}

func (o CastOp) Name() string                                   { return "Cast" }
func (o CastOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o CastOp) Arguments() []graph.NodeID                       { return nil }
func (o CastOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o CastOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o CastOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o CastOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	if !o.FromType.IsFloat() {
		// Casting away from an integer/bool source has no meaningful
		// gradient to pass back through.
		return wrongGradient("Cast", self)
	}
	return Cast(g, msg, o.FromType)
}
func (o CastOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(CastOp)
	return ok && p.Parent == o.Parent && p.DTypeV == o.DTypeV
}
func (o CastOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Cast appends an explicit dtype conversion of x to dt, eliding a no-op
// cast when x is already dt.
func Cast(g *graph.Graph, x graph.NodeID, dt dtype.Type) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if n.DType == dt {
		return x, nil
	}
	op := CastOp{Parent: x, FromType: n.DType, DTypeV: dt, ShapeV: n.Shape}
	return derive(g, op, []graph.NodeID{x}, nil)
}
