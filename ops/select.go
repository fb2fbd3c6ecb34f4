package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// SelectOp picks elementwise between IfTrue and IfFalse according to the
// non-differentiable Cond argument.
type SelectOp struct {
	Cond, IfTrue, IfFalse graph.NodeID
	ShapeV                tshape.Shape
	DTypeV                dtype.Type
}

func (o SelectOp) Name() string             { return "Select" }
func (o SelectOp) Parents() []graph.NodeID  { return []graph.NodeID{o.IfTrue, o.IfFalse} }
func (o SelectOp) Arguments() []graph.NodeID { return []graph.NodeID{o.Cond} }
func (o SelectOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o SelectOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o SelectOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.IfTrue, o.IfFalse})
}
func (o SelectOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	zero, err := ConstantValue(g, 0.0, o.ShapeV)
	if err != nil {
		return -1, err
	}
	switch parentIdx {
	case 0:
		masked, err := Select(g, o.Cond, msg, zero)
		if err != nil {
			return -1, err
		}
		return reduceToShape(g, masked, g.MustNode(o.IfTrue).Shape)
	default:
		masked, err := Select(g, o.Cond, zero, msg)
		if err != nil {
			return -1, err
		}
		return reduceToShape(g, masked, g.MustNode(o.IfFalse).Shape)
	}
}
func (o SelectOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SelectOp)
	return ok && p.Cond == o.Cond && p.IfTrue == o.IfTrue && p.IfFalse == o.IfFalse
}
func (o SelectOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Cond, o.IfTrue, o.IfFalse = remap(o.Cond), remap(o.IfTrue), remap(o.IfFalse)
	return o
}

// Select appends the elementwise ternary choice: cond ? ifTrue : ifFalse.
// cond is cast to b8 and broadcast alongside ifTrue/ifFalse.
func Select(g *graph.Graph, cond, ifTrue, ifFalse graph.NodeID) (graph.NodeID, error) {
	broadcasted, shape, err := broadcastAll(g, "Select", []graph.NodeID{cond, ifTrue, ifFalse})
	if err != nil {
		return -1, err
	}
	boolCond, err := castB8All(g, "Select", []graph.NodeID{broadcasted[0]})
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, "Select", broadcasted[1:])
	if err != nil {
		return -1, err
	}
	typed, err := castAllTo(g, "Select", broadcasted[1:], dt)
	if err != nil {
		return -1, err
	}
	op := SelectOp{Cond: boolCond[0], IfTrue: typed[0], IfFalse: typed[1], ShapeV: shape, DTypeV: dt}
	return derive(g, op, []graph.NodeID{typed[0], typed[1]}, []graph.NodeID{boolCond[0]})
}
