package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// logicalNAry is shared by the dtype-agnostic-output boolean combinators
// (Not/And/Or): output is always b8, never differentiable.
type logicalNAry struct {
	OpName   string
	ParentsV []graph.NodeID
	ShapeV   tshape.Shape
}

func (l logicalNAry) Name() string                                   { return l.OpName }
func (l logicalNAry) Parents() []graph.NodeID                        { return l.ParentsV }
func (l logicalNAry) Arguments() []graph.NodeID                      { return nil }
func (l logicalNAry) InferShape(g *graph.Graph) (tshape.Shape, error) { return l.ShapeV, nil }
func (l logicalNAry) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.B8, nil }
func (l logicalNAry) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, l.ParentsV)
}
func (l logicalNAry) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient(l.OpName, self)
}
func (l logicalNAry) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(logicalNAry)
	return ok && o.OpName == l.OpName && sameNodeSet(l.ParentsV, o.ParentsV)
}
func (l logicalNAry) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	l.ParentsV = remapList(l.ParentsV, remap)
	return l
}

func castB8All(g *graph.Graph, opName string, operands []graph.NodeID) ([]graph.NodeID, error) {
	return castAllTo(g, opName, operands, dtype.B8)
}

// Not appends the elementwise logical negation of x (cast to b8 first).
func Not(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	bx, err := castB8All(g, "Not", []graph.NodeID{x})
	if err != nil {
		return -1, err
	}
	shape := g.MustNode(bx[0]).Shape
	l := logicalNAry{OpName: "Not", ParentsV: bx, ShapeV: shape}
	return derive(g, l, bx, nil)
}

// And appends the elementwise logical conjunction of operands.
func And(g *graph.Graph, operands ...graph.NodeID) (graph.NodeID, error) {
	return logicalCombine(g, "And", operands)
}

// Or appends the elementwise logical disjunction of operands.
func Or(g *graph.Graph, operands ...graph.NodeID) (graph.NodeID, error) {
	return logicalCombine(g, "Or", operands)
}

func logicalCombine(g *graph.Graph, opName string, operands []graph.NodeID) (graph.NodeID, error) {
	if len(operands) < 2 {
		return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: operands, Operator: opName}, "%s requires at least 2 operands", opName)
	}
	broadcasted, shape, err := broadcastAll(g, opName, operands)
	if err != nil {
		return -1, err
	}
	bools, err := castB8All(g, opName, broadcasted)
	if err != nil {
		return -1, err
	}
	l := logicalNAry{OpName: opName, ParentsV: bools, ShapeV: shape}
	return derive(g, l, bools, nil)
}

// comparison is shared by the six ordering/equality predicates.
type comparison struct {
	OpName string
	A, B   graph.NodeID
	ShapeV tshape.Shape
}

func (c comparison) Name() string                                   { return c.OpName }
func (c comparison) Parents() []graph.NodeID                        { return []graph.NodeID{c.A, c.B} }
func (c comparison) Arguments() []graph.NodeID                      { return nil }
func (c comparison) InferShape(g *graph.Graph) (tshape.Shape, error) { return c.ShapeV, nil }
func (c comparison) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.B8, nil }
func (c comparison) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{c.A, c.B})
}
func (c comparison) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient(c.OpName, self)
}
func (c comparison) relocate(remap func(graph.NodeID) graph.NodeID) comparison {
	c.A, c.B = remap(c.A), remap(c.B)
	return c
}

func (c comparison) structurallyEqual(o comparison, commutative bool) bool {
	if o.OpName != c.OpName {
		return false
	}
	if commutative {
		return (o.A == c.A && o.B == c.B) || (o.A == c.B && o.B == c.A)
	}
	return o.A == c.A && o.B == c.B
}

func buildComparison(g *graph.Graph, opName string, commutative bool, a, b graph.NodeID) (graph.NodeID, error) {
	broadcasted, shape, err := broadcastAll(g, opName, []graph.NodeID{a, b})
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, opName, broadcasted)
	if err != nil {
		return -1, err
	}
	typed, err := castAllTo(g, opName, broadcasted, dt)
	if err != nil {
		return -1, err
	}
	c := comparisonVariant{comparison{OpName: opName, A: typed[0], B: typed[1], ShapeV: shape}, commutative}
	return derive(g, c, typed, nil)
}

// comparisonVariant threads the commutative flag through StructurallyEqual
// without widening the shared comparison struct's method set.
type comparisonVariant struct {
	comparison
	commutative bool
}

func (c comparisonVariant) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(comparisonVariant)
	if !ok {
		return false
	}
	return c.comparison.structurallyEqual(o.comparison, c.commutative)
}
func (c comparisonVariant) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	c.comparison = c.comparison.relocate(remap)
	return c
}

// Gt appends the elementwise a > b predicate.
func Gt(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Gt", false, a, b) }

// Ge appends the elementwise a >= b predicate.
func Ge(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Ge", false, a, b) }

// Lt appends the elementwise a < b predicate.
func Lt(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Lt", false, a, b) }

// Le appends the elementwise a <= b predicate.
func Le(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Le", false, a, b) }

// Eq appends the elementwise a == b predicate.
func Eq(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Eq", true, a, b) }

// Neq appends the elementwise a != b predicate.
func Neq(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) { return buildComparison(g, "Neq", true, a, b) }

// ApproxEq appends the elementwise |a-b| <= eps predicate.
type ApproxEqOp struct {
	A, B   graph.NodeID
	Eps    float64
	ShapeV tshape.Shape
}

func (o ApproxEqOp) Name() string                                   { return "ApproxEq" }
func (o ApproxEqOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.A, o.B} }
func (o ApproxEqOp) Arguments() []graph.NodeID                      { return nil }
func (o ApproxEqOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o ApproxEqOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.B8, nil }
func (o ApproxEqOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.A, o.B})
}
func (o ApproxEqOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("ApproxEq", self)
}
func (o ApproxEqOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ApproxEqOp)
	return ok && p.Eps == o.Eps && ((p.A == o.A && p.B == o.B) || (p.A == o.B && p.B == o.A))
}
func (o ApproxEqOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.A, o.B = remap(o.A), remap(o.B)
	return o
}

// ApproxEq appends the elementwise |a-b| <= eps predicate.
func ApproxEq(g *graph.Graph, a, b graph.NodeID, eps float64) (graph.NodeID, error) {
	broadcasted, shape, err := broadcastAll(g, "ApproxEq", []graph.NodeID{a, b})
	if err != nil {
		return -1, err
	}
	dt, err := promoteAll(g, "ApproxEq", broadcasted)
	if err != nil {
		return -1, err
	}
	typed, err := castAllTo(g, "ApproxEq", broadcasted, dt)
	if err != nil {
		return -1, err
	}
	op := ApproxEqOp{A: typed[0], B: typed[1], Eps: eps, ShapeV: shape}
	return derive(g, op, typed, nil)
}

// predicate1 is shared by IsNaN/IsInf.
type predicate1 struct {
	OpName string
	Parent graph.NodeID
	ShapeV tshape.Shape
}

func (p predicate1) Name() string                                   { return p.OpName }
func (p predicate1) Parents() []graph.NodeID                        { return []graph.NodeID{p.Parent} }
func (p predicate1) Arguments() []graph.NodeID                      { return nil }
func (p predicate1) InferShape(g *graph.Graph) (tshape.Shape, error) { return p.ShapeV, nil }
func (p predicate1) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.B8, nil }
func (p predicate1) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{p.Parent})
}
func (p predicate1) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient(p.OpName, self)
}
func (p predicate1) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(predicate1)
	return ok && o.OpName == p.OpName && o.Parent == p.Parent
}
func (p predicate1) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	p.Parent = remap(p.Parent)
	return p
}

// IsNaN appends the elementwise is-not-a-number predicate.
func IsNaN(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	p := predicate1{OpName: "IsNaN", Parent: x, ShapeV: g.MustNode(x).Shape}
	return derive(g, p, []graph.NodeID{x}, nil)
}

// IsInf appends the elementwise is-infinite predicate.
func IsInf(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	p := predicate1{OpName: "IsInf", Parent: x, ShapeV: g.MustNode(x).Shape}
	return derive(g, p, []graph.NodeID{x}, nil)
}

// reduceAll is shared by All/Any: a whole-tensor boolean reduction to a
// scalar b8 node.
type reduceAll struct {
	OpName string
	Parent graph.NodeID
}

func (r reduceAll) Name() string                                   { return r.OpName }
func (r reduceAll) Parents() []graph.NodeID                        { return []graph.NodeID{r.Parent} }
func (r reduceAll) Arguments() []graph.NodeID                       { return nil }
func (r reduceAll) InferShape(g *graph.Graph) (tshape.Shape, error) { return tshape.Scalar(), nil }
func (r reduceAll) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.B8, nil }
func (r reduceAll) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{r.Parent})
}
func (r reduceAll) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient(r.OpName, self)
}
func (r reduceAll) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(reduceAll)
	return ok && o.OpName == r.OpName && o.Parent == r.Parent
}
func (r reduceAll) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	r.Parent = remap(r.Parent)
	return r
}

// All appends a scalar b8 node true iff every element of x (cast to b8) is
// true.
func All(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	bx, err := castB8All(g, "All", []graph.NodeID{x})
	if err != nil {
		return -1, err
	}
	r := reduceAll{OpName: "All", Parent: bx[0]}
	return derive(g, r, bx, nil)
}

// Any appends a scalar b8 node true iff at least one element of x (cast to
// b8) is true.
func Any(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	bx, err := castB8All(g, "Any", []graph.NodeID{x})
	if err != nil {
		return -1, err
	}
	r := reduceAll{OpName: "Any", Parent: bx[0]}
	return derive(g, r, bx, nil)
}
