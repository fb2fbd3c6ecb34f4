package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// Alias is a structural no-op wrapping an existing node, returned by
// common-subexpression discovery (see derive in common.go) so a caller
// gets a distinct NodeID while the underlying computation is shared.
type Alias struct {
	Target graph.NodeID
}

func (a Alias) Name() string                                   { return "Alias" }
func (a Alias) Parents() []graph.NodeID                        { return []graph.NodeID{a.Target} }
func (a Alias) Arguments() []graph.NodeID                       { return nil }
func (a Alias) InferShape(g *graph.Graph) (tshape.Shape, error) { return g.MustNode(a.Target).Shape, nil }
func (a Alias) InferDType(g *graph.Graph) (dtype.Type, error)   { return g.MustNode(a.Target).DType, nil }
func (a Alias) InferKind(g *graph.Graph) graph.Kind             { return g.MustNode(a.Target).Kind }
func (a Alias) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return msg, nil
}
func (a Alias) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Alias)
	return ok && o.Target == a.Target
}
func (a Alias) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	return Alias{Target: remap(a.Target)}
}
