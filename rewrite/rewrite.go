// Package rewrite implements the best-effort graph optimization passes run
// between graph construction and backend compilation: global common
// subexpression merging, constant folding, identity elimination, double
// negation collapse, scalar-matrix hoisting, inline/in-place hinting, and
// final arena compaction. Every pass here is advisory — a pass that cannot
// improve a node leaves it untouched, and nothing in this package ever
// raises an IR error back to the caller.
package rewrite

import (
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/sirupsen/logrus"
)

// maxRounds bounds how many times the iterative passes (constant folding,
// double negation, identity elimination, duplicate merging, scalar
// hoisting) re-run to a fixpoint —
// each round can expose a new opportunity the previous one created (e.g.
// folding Add(Value,Value) can turn a Mul's operand into a fresh zero that
// the next round's identity pass then eliminates).
const maxRounds = 8

// Optimize runs every rewrite pass over g and returns a freshly compacted
// graph plus the outputs, updates, and inputs remapped onto it. g itself is
// mutated in place by the advisory passes before compaction; callers should
// not continue using g afterward.
func Optimize(g *graph.Graph, outputs []graph.NodeID, updates []graph.Update, inputs []graph.NodeID) (*graph.Graph, []graph.NodeID, []graph.Update, []graph.NodeID, error) {
	log := g.Logger()

	for round := 0; round < maxRounds; round++ {
		changed := false
		changed = constantFold(g, log) || changed
		changed = collapseDoubleNegation(g, log) || changed
		changed = eliminateIdentities(g, log) || changed
		if mergeDone := globalCSE(g, log); mergeDone {
			changed = true
		}
		changed = hoistScalarFromSum(g, log) || changed
		if !changed {
			break
		}
	}
	hintInlineAndInPlace(g)

	keep := make([]graph.NodeID, 0, len(outputs)+len(inputs)+2*len(updates))
	keep = append(keep, outputs...)
	keep = append(keep, inputs...)
	for _, u := range updates {
		keep = append(keep, u.Shared, u.Replacement)
	}

	out, newKeep, err := g.Relocate(keep)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	i := 0
	newOutputs := append([]graph.NodeID(nil), newKeep[i:i+len(outputs)]...)
	i += len(outputs)
	newInputs := append([]graph.NodeID(nil), newKeep[i:i+len(inputs)]...)
	i += len(inputs)
	newUpdates := make([]graph.Update, len(updates))
	for idx := range updates {
		newUpdates[idx] = graph.Update{Shared: newKeep[i], Replacement: newKeep[i+1]}
		i += 2
	}

	return out, newOutputs, newUpdates, newInputs, nil
}

// valueOf reports the folded scalar value of id, if id is currently a
// Value constant.
func valueOf(g *graph.Graph, id graph.NodeID) (ops.Value, bool) {
	n, err := g.Node(id)
	if err != nil {
		return ops.Value{}, false
	}
	v, ok := n.Op.(ops.Value)
	return v, ok
}

// constantFold collapses Neg/Add/Mul nodes whose every parent is already a
// folded Value constant into a single Value, sparing later passes and any
// backend from re-deriving arithmetic the graph already knows statically.
func constantFold(g *graph.Graph, log *logrus.Logger) bool {
	changed := false
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		switch op := n.Op.(type) {
		case ops.NegOp:
			if v, ok := valueOf(g, op.Parent); ok {
				if err := g.SetOperator(nid, ops.Value{Val: -v.Val, ShapeV: n.Shape, DTypeV: n.DType}); err == nil {
					changed = true
				}
			}
		case ops.Add:
			if folded, ok := foldNary(op.ParentsV, n, g, 0, func(a, b float64) float64 { return a + b }); ok {
				if err := g.SetOperator(nid, folded); err == nil {
					changed = true
				}
			}
		case ops.Mul:
			if folded, ok := foldNary(op.ParentsV, n, g, 1, func(a, b float64) float64 { return a * b }); ok {
				if err := g.SetOperator(nid, folded); err == nil {
					changed = true
				}
			}
		}
	}
	if changed {
		log.Debug("rewrite: folded constant-arithmetic nodes")
	}
	return changed
}

func foldNary(parents []graph.NodeID, n *graph.Node, g *graph.Graph, identity float64, combine func(a, b float64) float64) (ops.Value, bool) {
	acc := identity
	for _, p := range parents {
		v, ok := valueOf(g, p)
		if !ok {
			return ops.Value{}, false
		}
		acc = combine(acc, v.Val)
	}
	return ops.Value{Val: acc, ShapeV: n.Shape, DTypeV: n.DType}, true
}

// collapseDoubleNegation rewrites Neg(Neg(x)) into an Alias of x.
func collapseDoubleNegation(g *graph.Graph, log *logrus.Logger) bool {
	changed := false
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		outer, ok := n.Op.(ops.NegOp)
		if !ok {
			continue
		}
		inner, err := g.Node(outer.Parent)
		if err != nil || inner.Op == nil {
			continue
		}
		innerNeg, ok := inner.Op.(ops.NegOp)
		if !ok {
			continue
		}
		if err := g.SetOperator(nid, ops.Alias{Target: innerNeg.Parent}); err == nil {
			changed = true
		}
	}
	if changed {
		log.Debug("rewrite: collapsed double negation")
	}
	return changed
}

// eliminateIdentities rewrites Add/Mul nodes with an additive-zero or
// multiplicative-one Value operand down to the remaining operand (or, for
// a Mul with a zero operand, down to a single zero constant), aliasing the
// node rather than relinking its children by hand.
func eliminateIdentities(g *graph.Graph, log *logrus.Logger) bool {
	changed := false
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		switch op := n.Op.(type) {
		case ops.Add:
			if rest, ok := dropIdentityOperand(g, op.ParentsV, 0); ok && len(rest) == 1 {
				if err := g.SetOperator(nid, ops.Alias{Target: rest[0]}); err == nil {
					changed = true
				}
			}
		case ops.Mul:
			if hasZeroOperand(g, op.ParentsV) {
				if zero, err := ops.Zeros(g, n.Shape, n.DType); err == nil {
					if err := g.SetOperator(nid, ops.Alias{Target: zero}); err == nil {
						changed = true
					}
				}
				continue
			}
			if rest, ok := dropIdentityOperand(g, op.ParentsV, 1); ok && len(rest) == 1 {
				if err := g.SetOperator(nid, ops.Alias{Target: rest[0]}); err == nil {
					changed = true
				}
			}
		}
	}
	if changed {
		log.Debug("rewrite: eliminated additive/multiplicative identities")
	}
	return changed
}

func dropIdentityOperand(g *graph.Graph, parents []graph.NodeID, identity float64) ([]graph.NodeID, bool) {
	var rest []graph.NodeID
	dropped := false
	for _, p := range parents {
		if v, ok := valueOf(g, p); ok && v.Val == identity && !dropped {
			dropped = true
			continue
		}
		rest = append(rest, p)
	}
	return rest, dropped
}

func hasZeroOperand(g *graph.Graph, parents []graph.NodeID) bool {
	for _, p := range parents {
		if v, ok := valueOf(g, p); ok && v.Val == 0 {
			return true
		}
	}
	return false
}

// globalCSE re-scans the whole active arena for structurally-equal nodes
// sharing a common first parent/argument (or sharing no parents at all)
// that the local, construction-time CSE in ops.derive never compared
// directly against each other, merging later duplicates onto their
// earliest surviving twin via a graph-wide Relocate remap.
func globalCSE(g *graph.Graph, log *logrus.Logger) bool {
	groups := map[graph.NodeID][]graph.NodeID{}
	nameGroups := map[string][]graph.NodeID{}

	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		if parents := n.Op.Parents(); len(parents) > 0 {
			groups[parents[0]] = append(groups[parents[0]], nid)
			continue
		}
		if args := n.Op.Arguments(); len(args) > 0 {
			groups[args[0]] = append(groups[args[0]], nid)
			continue
		}
		nameGroups[n.Op.Name()] = append(nameGroups[n.Op.Name()], nid)
	}

	remap := map[graph.NodeID]graph.NodeID{}
	dedupe := func(ids []graph.NodeID) {
		var survivors []graph.NodeID
		for _, id := range ids {
			n, err := g.Node(id)
			if err != nil || n.Op == nil {
				continue
			}
			matched := false
			for _, s := range survivors {
				sn, err := g.Node(s)
				if err != nil || sn.Op == nil {
					continue
				}
				if n.Op.StructurallyEqual(sn.Op) {
					remap[id] = s
					matched = true
					break
				}
			}
			if !matched {
				survivors = append(survivors, id)
			}
		}
	}
	for _, ids := range groups {
		dedupe(ids)
	}
	for _, ids := range nameGroups {
		dedupe(ids)
	}
	if len(remap) == 0 {
		return false
	}

	resolve := func(id graph.NodeID) graph.NodeID {
		for {
			r, ok := remap[id]
			if !ok {
				return id
			}
			id = r
		}
	}
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		g.SetOperator(nid, n.Op.Relocate(resolve))
	}
	for dup := range remap {
		g.Deactivate(dup)
	}
	g.RebuildChildren()
	log.WithField("merged", len(remap)).Debug("rewrite: merged duplicate subexpressions")
	return true
}

// hoistScalarFromSum rewrites Sum(Mul(...)) where the Mul mixes scalar and
// non-scalar parents (a scalar that reaches the Mul through a Broadcast
// wrapper counts as scalar) into Mul(scalars..., Sum(nonScalarProduct)): the
// scalars come out of the reduction entirely instead of being broadcast
// across every element the Sum collapses. The Sum node's id is preserved
// (aliased to the new top node) so every existing reference to it keeps
// working; the original Mul is left untouched for any of its other
// consumers and simply goes dead here if this was its only one.
func hoistScalarFromSum(g *graph.Graph, log *logrus.Logger) bool {
	changed := false
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		sum, ok := n.Op.(ops.SumOp)
		if !ok {
			continue
		}
		parent, err := g.Node(sum.Parent)
		if err != nil || parent.Op == nil {
			continue
		}
		mul, ok := parent.Op.(ops.Mul)
		if !ok {
			continue
		}

		var scalars, nonScalars []graph.NodeID
		for _, p := range mul.ParentsV {
			pn, err := g.Node(p)
			if err != nil {
				continue
			}
			if b, ok := pn.Op.(ops.BroadcastOp); ok {
				if src, err := g.Node(b.Parent); err == nil && src.Shape.IsScalar() {
					scalars = append(scalars, b.Parent)
					continue
				}
			}
			if pn.Shape.IsScalar() {
				scalars = append(scalars, p)
			} else {
				nonScalars = append(nonScalars, p)
			}
		}
		if len(scalars) == 0 || len(nonScalars) == 0 {
			continue
		}

		inner := nonScalars[0]
		if len(nonScalars) > 1 {
			product, err := ops.SumMul(g, nonScalars...)
			if err != nil {
				continue
			}
			inner = product
		}
		newSum, err := ops.Sum(g, inner, append([]int(nil), sum.Axes...), false)
		if err != nil {
			continue
		}
		outer, err := ops.SumMul(g, append(append([]graph.NodeID(nil), scalars...), newSum)...)
		if err != nil {
			continue
		}
		if err := g.SetOperator(nid, ops.Alias{Target: outer}); err == nil {
			changed = true
		}
	}
	if changed {
		g.RebuildChildren()
		log.Debug("rewrite: hoisted scalar factors out of Sum(Mul(...))")
	}
	return changed
}

// hintInlineAndInPlace marks single-consumer nodes as inlineable and tags
// any node with exactly one parent, when that parent has no other active
// consumer, as reusable in place. Both hints require an exact one-consumer
// relationship so rewriting the hinted node can never change another
// reader's view of the parent's value. The in-place hint does not check the
// operator kind, nor that the node's shape or dtype match its parent's.
func hintInlineAndInPlace(g *graph.Graph) {
	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		if !g.IsActive(nid) {
			continue
		}
		n, err := g.Node(nid)
		if err != nil || n.Op == nil {
			continue
		}
		meta := n.Meta
		if children := activeChildren(g, nid); len(children) == 1 {
			meta.Inlined = true
		}
		parents := n.Op.Parents()
		if len(parents) == 1 {
			if activeChildrenCount(g, parents[0]) == 1 {
				meta.HasInPlace = true
				meta.InPlaceTarget = parents[0]
			}
		}
		g.SetMeta(nid, meta)
	}
}

func activeChildren(g *graph.Graph, id graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	for _, c := range g.ChildrenOf(id) {
		if g.IsActive(c) {
			out = append(out, c)
		}
	}
	return out
}

func activeChildrenCount(g *graph.Graph, id graph.NodeID) int {
	return len(activeChildren(g, id))
}
