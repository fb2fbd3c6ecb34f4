package graph

import "github.com/metadiff/core/tshape"

// Update pairs a shared variable node with the node whose value should
// overwrite it at the end of one evaluation.
type Update struct {
	Shared      NodeID
	Replacement NodeID
}

// AddUpdate registers a persistent update, owned by the graph for its
// entire lifetime. Both nodes must already exist and must agree on shape
// and dtype.
func (g *Graph) AddUpdate(shared, replacement NodeID) error {
	s, err := g.at(shared)
	if err != nil {
		return err
	}
	r, err := g.at(replacement)
	if err != nil {
		return err
	}
	if s.Kind != Input {
		return NewError(KindInvalidArguments, Detail{NodeIDs: []NodeID{shared}, Operator: "AddUpdate"},
			"update target %d is not a Shared/Input node", shared)
	}
	if !s.Shape.Eq(r.Shape) {
		return NewError(KindIncompatibleShapes, Detail{NodeIDs: []NodeID{shared, replacement}, Operator: "AddUpdate", Shapes: []tshape.Shape{s.Shape, r.Shape}},
			"update shape mismatch")
	}
	if s.DType != r.DType {
		return NewError(KindInvalidArguments, Detail{NodeIDs: []NodeID{shared, replacement}, Operator: "AddUpdate"},
			"update dtype mismatch: %s vs %s", s.DType, r.DType)
	}
	g.persistentUpdates = append(g.persistentUpdates, Update{Shared: shared, Replacement: replacement})
	return nil
}

// Updates returns the graph's persistent updates.
func (g *Graph) Updates() []Update {
	return append([]Update(nil), g.persistentUpdates...)
}
