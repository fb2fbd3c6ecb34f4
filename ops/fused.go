package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// sigmoid builds 1/(1+exp(-x)) from primitive operators.
func sigmoid(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	negX, err := Neg(g, x)
	if err != nil {
		return -1, err
	}
	expNegX, err := Exp(g, negX)
	if err != nil {
		return -1, err
	}
	one, err := ConstantValue(g, 1.0, g.MustNode(x).Shape)
	if err != nil {
		return -1, err
	}
	denom, err := SumAdd(g, one, expNegX)
	if err != nil {
		return -1, err
	}
	return Reciprocal(g, denom)
}

// BCELogitOp fuses the numerically-stable binary cross entropy with
// logits: max(x,0) - x*y + log(1+exp(-|x|)), where x is Logits and y is
// Labels. Fusing avoids separately materializing exp/log/abs nodes that a
// naive composition would leave for the rewrite engine to merge back
// together.
type BCELogitOp struct {
	Logits, Labels graph.NodeID
	ShapeV         tshape.Shape
	DTypeV         dtype.Type
}

func (o BCELogitOp) Name() string            { return "BinaryCrossEntropyLogit" }
func (o BCELogitOp) Parents() []graph.NodeID { return []graph.NodeID{o.Logits, o.Labels} }
func (o BCELogitOp) Arguments() []graph.NodeID                      { return nil }
func (o BCELogitOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o BCELogitOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o BCELogitOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Logits, o.Labels})
}
func (o BCELogitOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	switch parentIdx {
	case 0:
		sig, err := sigmoid(g, o.Logits)
		if err != nil {
			return -1, err
		}
		negLabels, err := Neg(g, o.Labels)
		if err != nil {
			return -1, err
		}
		diff, err := SumAdd(g, sig, negLabels)
		if err != nil {
			return -1, err
		}
		return SumMul(g, msg, diff)
	default:
		negLogits, err := Neg(g, o.Logits)
		if err != nil {
			return -1, err
		}
		return SumMul(g, msg, negLogits)
	}
}
func (o BCELogitOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(BCELogitOp)
	return ok && p.Logits == o.Logits && p.Labels == o.Labels
}
func (o BCELogitOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Logits, o.Labels = remap(o.Logits), remap(o.Labels)
	return o
}

// BinaryCrossEntropyLogit appends the fused, numerically-stable binary
// cross entropy loss between raw logits and 0/1 labels.
func BinaryCrossEntropyLogit(g *graph.Graph, logits, labels graph.NodeID) (graph.NodeID, error) {
	broadcasted, shape, err := broadcastAll(g, "BinaryCrossEntropyLogit", []graph.NodeID{logits, labels})
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, "BinaryCrossEntropyLogit", broadcasted)
	if err != nil {
		return -1, err
	}
	typed, err := castAllTo(g, "BinaryCrossEntropyLogit", broadcasted, dt)
	if err != nil {
		return -1, err
	}
	op := BCELogitOp{Logits: typed[0], Labels: typed[1], ShapeV: shape, DTypeV: dt}
	return derive(g, op, typed, nil)
}
