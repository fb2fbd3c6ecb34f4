// Package autodiff implements reverse-mode automatic differentiation over
// the graph IR: a single bottom-up pass that accumulates gradient messages
// across the masked sub-DAG of nodes that are both ancestors of the
// objective and descendants of the requested parameters.
package autodiff

import (
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/opentracing/opentracing-go"
)

// Differentiate computes the gradient of the scalar objective with respect
// to each of params, appending whatever new nodes the chain rule requires
// and returning one gradient NodeID per param, in the order given.
//
// Nodes outside the flow sub-DAG (not an ancestor of objective, or not a
// descendant of any param) are marked temporarily Constant for the
// duration of the pass, so gradient-path node construction sees them the
// way the rest of the graph already treats true constants. The flag is
// always cleared before returning, successful or not.
func Differentiate(g *graph.Graph, objective graph.NodeID, params []graph.NodeID) ([]graph.NodeID, error) {
	span := opentracing.StartSpan("autodiff.Differentiate")
	span.SetTag("objective", objective)
	span.SetTag("params", len(params))
	defer span.Finish()

	obj, err := g.Node(objective)
	if err != nil {
		return nil, err
	}
	if !obj.Shape.IsScalar() {
		span.SetTag("error", true)
		return nil, graph.NewError(graph.KindUnsupportedGradient,
			graph.Detail{NodeIDs: []graph.NodeID{objective}, Operator: "Differentiate"},
			"objective node %d is not scalar (shape %s)", objective, obj.Shape)
	}

	prevLevel := g.PushGradLevel()
	defer g.SetGradLevel(prevLevel)
	defer g.ClearTemporaryConstants()

	ancestors := ancestorsOf(g, objective)
	descendants := descendantsOfAny(g, params)
	flow := make(map[graph.NodeID]bool, len(ancestors))
	for id := range ancestors {
		if descendants[id] {
			flow[id] = true
		}
	}
	for _, p := range params {
		flow[p] = true
	}

	for id := 0; id < g.Len(); id++ {
		nid := graph.NodeID(id)
		if !flow[nid] {
			g.SetTemporaryConstant(nid, true)
		}
	}

	one, err := ops.ConstantValue(g, 1.0, obj.Shape)
	if err != nil {
		return nil, err
	}
	messages := map[graph.NodeID]graph.NodeID{objective: one}

	for id := int(objective); id >= 0; id-- {
		nid := graph.NodeID(id)
		if !flow[nid] {
			continue
		}
		msg, has := messages[nid]
		if !has {
			continue
		}
		n, err := g.Node(nid)
		if err != nil {
			return nil, err
		}
		if n.Op == nil {
			continue
		}
		for parentIdx, parentID := range n.Op.Parents() {
			if !flow[parentID] {
				continue
			}
			local, err := n.Op.Gradient(g, nid, msg, parentIdx)
			if err != nil {
				return nil, err
			}
			if existing, ok := messages[parentID]; ok {
				summed, err := ops.SumAdd(g, existing, local)
				if err != nil {
					return nil, err
				}
				messages[parentID] = summed
			} else {
				messages[parentID] = local
			}
		}
	}

	result := make([]graph.NodeID, len(params))
	for i, p := range params {
		if msg, ok := messages[p]; ok {
			result[i] = msg
			continue
		}
		pn, err := g.Node(p)
		if err != nil {
			return nil, err
		}
		g.Logger().WithField("param", p).Warn("parameter does not influence objective; returning zero gradient")
		zero, err := ops.Zeros(g, pn.Shape, pn.DType)
		if err != nil {
			return nil, err
		}
		result[i] = zero
	}
	return result, nil
}

// ancestorsOf returns the set of node ids reachable from root by walking
// parents and arguments backward, including root itself.
func ancestorsOf(g *graph.Graph, root graph.NodeID) map[graph.NodeID]bool {
	seen := map[graph.NodeID]bool{root: true}
	stack := []graph.NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, err := g.Node(id)
		if err != nil || n.Op == nil {
			continue
		}
		for _, p := range n.Op.Parents() {
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
		for _, a := range n.Op.Arguments() {
			if !seen[a] {
				seen[a] = true
				stack = append(stack, a)
			}
		}
	}
	return seen
}

// descendantsOfAny returns the set of node ids reachable forward (via
// children) from any of roots, including the roots themselves.
func descendantsOfAny(g *graph.Graph, roots []graph.NodeID) map[graph.NodeID]bool {
	seen := map[graph.NodeID]bool{}
	var stack []graph.NodeID
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.ChildrenOf(id) {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return seen
}
