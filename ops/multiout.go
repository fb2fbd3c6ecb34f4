package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
)

// scatterOp is the shared gradient primitive for every gather-like operator
// in this file (MaxAndArgMax, SortAndArgSort, MultiNodeIndex): it scatters
// Updates back into a zero-filled tensor of TargetShape at the positions
// named by Indices along Axis, all other axes corresponding positionally.
// It is first-order only — differentiating through a scatter itself raises
// KindUnsupportedGradient, matching the engine's single-pass reverse-mode
// design.
type scatterOp struct {
	Updates     graph.NodeID
	Indices     graph.NodeID
	Axis        int
	TargetShape tshape.Shape
	DTypeV      dtype.Type
}

func (o scatterOp) Name() string                                   { return "Scatter" }
func (o scatterOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Updates} }
func (o scatterOp) Arguments() []graph.NodeID                       { return []graph.NodeID{o.Indices} }
func (o scatterOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.TargetShape, nil }
func (o scatterOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o scatterOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Updates})
}
func (o scatterOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return -1, graph.NewError(graph.KindUnsupportedGradient, graph.Detail{NodeIDs: []graph.NodeID{self}, Operator: "Scatter"},
		"Scatter does not support second-order differentiation")
}
func (o scatterOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(scatterOp)
	return ok && p.Updates == o.Updates && p.Indices == o.Indices && p.Axis == o.Axis && p.TargetShape.Eq(o.TargetShape)
}
func (o scatterOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Updates, o.Indices = remap(o.Updates), remap(o.Indices)
	return o
}

func scatterBack(g *graph.Graph, updates, indices graph.NodeID, axis int, target tshape.Shape) (graph.NodeID, error) {
	dt := g.MustNode(updates).DType
	op := scatterOp{Updates: updates, Indices: indices, Axis: axis, TargetShape: target, DTypeV: dt}
	return derive(g, op, []graph.NodeID{updates}, []graph.NodeID{indices})
}

// MaxOp is the value half of MaxAndArgMax: the elementwise maximum of
// Parent along Axis, with the companion ArgMax index node kept alongside
// so the backward pass can scatter through it.
type MaxOp struct {
	Parent  graph.NodeID
	ArgMax  graph.NodeID
	Axis    int
	ShapeV  tshape.Shape
	DTypeV  dtype.Type
}

func (o MaxOp) Name() string                                   { return "Max" }
func (o MaxOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o MaxOp) Arguments() []graph.NodeID                       { return []graph.NodeID{o.ArgMax} }
func (o MaxOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o MaxOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o MaxOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o MaxOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return scatterBack(g, msg, o.ArgMax, o.Axis, g.MustNode(o.Parent).Shape)
}
func (o MaxOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(MaxOp)
	return ok && p.Parent == o.Parent && p.Axis == o.Axis
}
func (o MaxOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent, o.ArgMax = remap(o.Parent), remap(o.ArgMax)
	return o
}

// ArgMaxOp is the index half of MaxAndArgMax: always non-differentiable.
type ArgMaxOp struct {
	Parent graph.NodeID
	Axis   int
	ShapeV tshape.Shape
}

func (o ArgMaxOp) Name() string                                   { return "ArgMax" }
func (o ArgMaxOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o ArgMaxOp) Arguments() []graph.NodeID                       { return nil }
func (o ArgMaxOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o ArgMaxOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.I64, nil }
func (o ArgMaxOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o ArgMaxOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("ArgMax", self)
}
func (o ArgMaxOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ArgMaxOp)
	return ok && p.Parent == o.Parent && p.Axis == o.Axis
}
func (o ArgMaxOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

func reducedShape(s tshape.Shape, axis int) tshape.Shape {
	out := s
	out[axis] = symbolic.One()
	return out
}

// MaxAndArgMax appends the paired (max value, argmax index) reduction of x
// along axis, returning both node ids.
func MaxAndArgMax(g *graph.Graph, x graph.NodeID, axis int) (graph.NodeID, graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, -1, err
	}
	if axis < 0 || axis > 3 {
		return -1, -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "MaxAndArgMax"}, "axis %d out of range", axis)
	}
	shape := reducedShape(n.Shape, axis)
	argmaxID, err := derive(g, ArgMaxOp{Parent: x, Axis: axis, ShapeV: shape}, []graph.NodeID{x}, nil)
	if err != nil {
		return -1, -1, err
	}
	maxID, err := derive(g, MaxOp{Parent: x, ArgMax: argmaxID, Axis: axis, ShapeV: shape, DTypeV: n.DType},
		[]graph.NodeID{x}, []graph.NodeID{argmaxID})
	if err != nil {
		return -1, -1, err
	}
	return maxID, argmaxID, nil
}

// SortOp is the value half of SortAndArgSort.
type SortOp struct {
	Parent  graph.NodeID
	ArgSort graph.NodeID
	Axis    int
	ShapeV  tshape.Shape
	DTypeV  dtype.Type
}

func (o SortOp) Name() string                                   { return "Sort" }
func (o SortOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o SortOp) Arguments() []graph.NodeID                       { return []graph.NodeID{o.ArgSort} }
func (o SortOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o SortOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o SortOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o SortOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return scatterBack(g, msg, o.ArgSort, o.Axis, g.MustNode(o.Parent).Shape)
}
func (o SortOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SortOp)
	return ok && p.Parent == o.Parent && p.Axis == o.Axis
}
func (o SortOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent, o.ArgSort = remap(o.Parent), remap(o.ArgSort)
	return o
}

// ArgSortOp is the index half of SortAndArgSort: always non-differentiable.
type ArgSortOp struct {
	Parent graph.NodeID
	Axis   int
	ShapeV tshape.Shape
}

func (o ArgSortOp) Name() string                                   { return "ArgSort" }
func (o ArgSortOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o ArgSortOp) Arguments() []graph.NodeID                       { return nil }
func (o ArgSortOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o ArgSortOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return dtype.I64, nil }
func (o ArgSortOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o ArgSortOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("ArgSort", self)
}
func (o ArgSortOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ArgSortOp)
	return ok && p.Parent == o.Parent && p.Axis == o.Axis
}
func (o ArgSortOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// SortAndArgSort appends the paired (sorted values, permutation index)
// ordering of x along axis, returning both node ids.
func SortAndArgSort(g *graph.Graph, x graph.NodeID, axis int) (graph.NodeID, graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, -1, err
	}
	if axis < 0 || axis > 3 {
		return -1, -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "SortAndArgSort"}, "axis %d out of range", axis)
	}
	argsortID, err := derive(g, ArgSortOp{Parent: x, Axis: axis, ShapeV: n.Shape}, []graph.NodeID{x}, nil)
	if err != nil {
		return -1, -1, err
	}
	sortID, err := derive(g, SortOp{Parent: x, ArgSort: argsortID, Axis: axis, ShapeV: n.Shape, DTypeV: n.DType},
		[]graph.NodeID{x}, []graph.NodeID{argsortID})
	if err != nil {
		return -1, -1, err
	}
	return sortID, argsortID, nil
}

// MultiNodeIndexOp gathers elements of Parent along axis 0 using Indices.
type MultiNodeIndexOp struct {
	Parent  graph.NodeID
	Indices graph.NodeID
	ShapeV  tshape.Shape
	DTypeV  dtype.Type
}

func (o MultiNodeIndexOp) Name() string                                   { return "MultiNodeIndex" }
func (o MultiNodeIndexOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o MultiNodeIndexOp) Arguments() []graph.NodeID                       { return []graph.NodeID{o.Indices} }
func (o MultiNodeIndexOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o MultiNodeIndexOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o MultiNodeIndexOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o MultiNodeIndexOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return scatterBack(g, msg, o.Indices, 0, g.MustNode(o.Parent).Shape)
}
func (o MultiNodeIndexOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(MultiNodeIndexOp)
	return ok && p.Parent == o.Parent && p.Indices == o.Indices
}
func (o MultiNodeIndexOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent, o.Indices = remap(o.Parent), remap(o.Indices)
	return o
}

// MultiNodeIndex appends a gather of x along axis 0 at positions indices,
// which must carry an integer dtype; the result takes indices' d0 and x's
// trailing axes.
func MultiNodeIndex(g *graph.Graph, x, indices graph.NodeID) (graph.NodeID, error) {
	nx, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	ni, err := g.Node(indices)
	if err != nil {
		return -1, err
	}
	if !ni.DType.IsInt() {
		return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: []graph.NodeID{indices}, Operator: "MultiNodeIndex"}, "indices must carry an integer dtype, got %s", ni.DType)
	}
	shape := tshape.New(ni.Shape[0], nx.Shape[1], nx.Shape[2], nx.Shape[3])
	op := MultiNodeIndexOp{Parent: x, Indices: indices, ShapeV: shape, DTypeV: nx.DType}
	return derive(g, op, []graph.NodeID{x}, []graph.NodeID{indices})
}
