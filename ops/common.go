// Package ops implements the closed operator catalog: every operator
// variant named in the specification, each providing shape/dtype/kind
// inference, a local gradient rule, a structural-equality predicate, and a
// copy-to-another-arena rule, dispatched through the graph.Operator
// interface rather than open subclassing.
package ops

import (
	"fmt"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/policy"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
)

// derive implements the graph construction algorithm from the spec: scan
// the children of op's first parent (falling back to its first argument
// when there are no parents) for a node whose operator is structurally
// equal; on a hit, return an Alias of that node instead of appending a
// duplicate. Leaf operators (no parents, no arguments) always append fresh.
func derive(g *graph.Graph, op graph.Operator, parents, arguments []graph.NodeID) (graph.NodeID, error) {
	var scanRoot graph.NodeID
	switch {
	case len(parents) > 0:
		scanRoot = parents[0]
	case len(arguments) > 0:
		scanRoot = arguments[0]
	default:
		return g.Append(op, parents, arguments)
	}

	for _, childID := range g.ChildrenOf(scanRoot) {
		child, err := g.Node(childID)
		if err != nil || child.Op == nil || !child.Active {
			continue
		}
		if child.Op.StructurallyEqual(op) {
			return aliasOf(g, childID)
		}
	}
	return g.Append(op, parents, arguments)
}

// aliasOf wraps an existing node in a structural no-op so duplicate-lookup
// callers can return a distinct handle while sharing the underlying value.
func aliasOf(g *graph.Graph, target graph.NodeID) (graph.NodeID, error) {
	n, err := g.Node(target)
	if err != nil {
		return -1, err
	}
	if alias, ok := n.Op.(Alias); ok {
		return aliasOf(g, alias.Target)
	}
	return g.Append(Alias{Target: target}, []graph.NodeID{target}, nil)
}

// unwrapAlias follows an alias chain to the underlying node id, per the
// rule that structural equality unwraps alias chains.
func unwrapAlias(g *graph.Graph, id graph.NodeID) graph.NodeID {
	for {
		n, err := g.Node(id)
		if err != nil {
			return id
		}
		alias, ok := n.Op.(Alias)
		if !ok {
			return id
		}
		id = alias.Target
	}
}

// inferKindFromParents implements the graph invariant: a node is Constant
// only if all its parents are Constant (or it has none); otherwise it is
// InputDerived if any parent is Input/InputDerived, else ConstantDerived.
func inferKindFromParents(g *graph.Graph, parents []graph.NodeID) graph.Kind {
	if len(parents) == 0 {
		return graph.Constant
	}
	allConstant := true
	anyInput := false
	for _, id := range parents {
		switch g.EffectiveKind(id) {
		case graph.Input, graph.InputDerived:
			anyInput = true
			allConstant = false
		case graph.ConstantDerived:
			allConstant = false
		}
	}
	if allConstant {
		return graph.Constant
	}
	if anyInput {
		return graph.InputDerived
	}
	return graph.ConstantDerived
}

// broadcastAll resolves the elementwise broadcast-max shape across parents
// and wraps any mismatched parent in an explicit Broadcast node, honoring
// the graph's broadcast error policy.
func broadcastAll(g *graph.Graph, opName string, parents []graph.NodeID) ([]graph.NodeID, tshape.Shape, error) {
	shapes := make([]tshape.Shape, len(parents))
	for i, p := range parents {
		n, err := g.Node(p)
		if err != nil {
			return nil, tshape.Shape{}, err
		}
		shapes[i] = n.Shape
	}
	target, err := tshape.BroadcastMax(shapes...)
	if err != nil {
		return nil, tshape.Shape{}, graph.NewError(graph.KindIncompatibleShapes,
			graph.Detail{NodeIDs: parents, Operator: opName, Shapes: shapes}, "%v", err)
	}

	cfg := g.Config()
	out := make([]graph.NodeID, len(parents))
	for i, p := range parents {
		if shapes[i].Eq(target) {
			out[i] = p
			continue
		}
		detail := fmt.Sprintf("%s parent %d: %s -> %s", opName, p, shapes[i], target)
		if err := policy.Apply(g.Observer(), policy.BroadcastDecision, cfg.Broadcast, detail); err != nil {
			return nil, tshape.Shape{}, graph.NewError(graph.KindImplicitBroadcast,
				graph.Detail{NodeIDs: []graph.NodeID{p}, Operator: opName, Shapes: []tshape.Shape{shapes[i], target}}, "%v", err)
		}
		if cfg.Broadcast == policy.Warn {
			g.Logger().WithField("node", p).Warn(detail)
		}
		bid, err := Broadcast(g, p, target)
		if err != nil {
			return nil, tshape.Shape{}, err
		}
		out[i] = bid
	}
	return out, target, nil
}

// promoteAll folds pairwise dtype promotion across parents, honoring the
// graph's promotion error policy whenever two parents disagree.
func promoteAll(g *graph.Graph, opName string, parents []graph.NodeID) (dtype.Type, error) {
	cfg := g.Config()
	var result dtype.Type
	for i, p := range parents {
		n, err := g.Node(p)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			result = n.DType
			continue
		}
		if n.DType != result {
			detail := fmt.Sprintf("%s: %s vs %s", opName, result, n.DType)
			if err := policy.Apply(g.Observer(), policy.PromotionDecision, cfg.Promotion, detail); err != nil {
				return 0, graph.NewError(graph.KindInvalidArguments,
					graph.Detail{NodeIDs: parents, Operator: opName}, "%v", err)
			}
			if cfg.Promotion == policy.Warn {
				g.Logger().WithField("node", p).Warn(detail)
			}
		}
		result = dtype.Promote(result, n.DType, cfg.Caps())
	}
	return result, nil
}

// castAllTo wraps every node whose dtype differs from target in an
// explicit Cast, honoring the graph's cast error policy.
func castAllTo(g *graph.Graph, opName string, nodes []graph.NodeID, target dtype.Type) ([]graph.NodeID, error) {
	cfg := g.Config()
	out := make([]graph.NodeID, len(nodes))
	for i, id := range nodes {
		n, err := g.Node(id)
		if err != nil {
			return nil, err
		}
		if n.DType == target {
			out[i] = id
			continue
		}
		detail := fmt.Sprintf("%s: implicit cast %s -> %s", opName, n.DType, target)
		if err := policy.Apply(g.Observer(), policy.CastDecision, cfg.Cast, detail); err != nil {
			return nil, graph.NewError(graph.KindInvalidArguments,
				graph.Detail{NodeIDs: []graph.NodeID{id}, Operator: opName}, "%v", err)
		}
		if cfg.Cast == policy.Warn {
			g.Logger().WithField("node", id).Warn(detail)
		}
		cid, err := Cast(g, id, target)
		if err != nil {
			return nil, err
		}
		out[i] = cid
	}
	return out, nil
}

// sameNodeSet reports multiset equality of two NodeID slices, used by
// commutative operators' StructurallyEqual implementations.
func sameNodeSet(a, b []graph.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[graph.NodeID]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// sameNodeList reports positional equality of two NodeID slices, used by
// non-commutative operators.
func sameNodeList(a, b []graph.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func remapList(ids []graph.NodeID, remap func(graph.NodeID) graph.NodeID) []graph.NodeID {
	if ids == nil {
		return nil
	}
	out := make([]graph.NodeID, len(ids))
	for i, id := range ids {
		out[i] = remap(id)
	}
	return out
}

// reduceToShape sums node back down along every axis where target is 1 but
// node's shape is not, undoing an implicit broadcast for gradient
// propagation (the standard "sum out the broadcast axes" rule).
func reduceToShape(g *graph.Graph, node graph.NodeID, target tshape.Shape) (graph.NodeID, error) {
	n, err := g.Node(node)
	if err != nil {
		return -1, err
	}
	if n.Shape.Eq(target) {
		return node, nil
	}
	one := symbolic.One()
	var axes []int
	for axis := 0; axis < 4; axis++ {
		if target[axis].Eq(one) && !n.Shape[axis].Eq(one) {
			axes = append(axes, axis)
		}
	}
	if len(axes) == 0 {
		return node, nil
	}
	return Sum(g, node, axes, true)
}

// wrongGradient is the shared helper non-differentiable operators use to
// implement Operator.Gradient.
func wrongGradient(opName string, self graph.NodeID) (graph.NodeID, error) {
	return -1, graph.NewError(graph.KindWrongGradient, graph.Detail{NodeIDs: []graph.NodeID{self}, Operator: opName},
		"%s has no gradient", opName)
}
