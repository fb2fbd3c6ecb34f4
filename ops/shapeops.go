package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
)

// BroadcastOp stretches Parent's shape up to ShapeV. Every stretched axis
// of Parent's shape must already be 1, the broadcast-compatibility rule
// tshape.AxisEqualOrOne checks.
type BroadcastOp struct {
	Parent graph.NodeID
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (o BroadcastOp) Name() string                                   { return "Broadcast" }
func (o BroadcastOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o BroadcastOp) Arguments() []graph.NodeID                      { return nil }
func (o BroadcastOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o BroadcastOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o BroadcastOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o BroadcastOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return reduceToShape(g, msg, g.MustNode(o.Parent).Shape)
}
func (o BroadcastOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(BroadcastOp)
	return ok && p.Parent == o.Parent && p.ShapeV.Eq(o.ShapeV)
}
func (o BroadcastOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Broadcast appends an explicit stretch of x up to target, failing if any
// non-1 axis of x's shape disagrees with target.
func Broadcast(g *graph.Graph, x graph.NodeID, target tshape.Shape) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if n.Shape.Eq(target) {
		return x, nil
	}
	if !n.Shape.AxisEqualOrOne(target) {
		return -1, graph.NewError(graph.KindIncompatibleShapes,
			graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "Broadcast", Shapes: []tshape.Shape{n.Shape, target}},
			"cannot broadcast %s to %s", n.Shape, target)
	}
	op := BroadcastOp{Parent: x, ShapeV: target, DTypeV: n.DType}
	return derive(g, op, []graph.NodeID{x}, nil)
}

// SumOp reduces Parent along Axes to size 1 (this IR's fixed rank-4 shape
// tuple has no lower-rank representation to squeeze into).
type SumOp struct {
	Parent graph.NodeID
	Axes   []int
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (o SumOp) Name() string                                   { return "Sum" }
func (o SumOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o SumOp) Arguments() []graph.NodeID                       { return nil }
func (o SumOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o SumOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o SumOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o SumOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return Broadcast(g, msg, g.MustNode(o.Parent).Shape)
}
func (o SumOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SumOp)
	return ok && p.Parent == o.Parent && sameAxes(p.Axes, o.Axes)
}
func (o SumOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

func sameAxes(a, b []int) bool {
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

// Sum appends the reduction of x along axes (summing and collapsing each
// to size 1). keepDims is accepted for API parity; the fixed rank-4 shape
// tuple has no lower-rank form to collapse into either way.
func Sum(g *graph.Graph, x graph.NodeID, axes []int, keepDims bool) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	shape := n.Shape
	one := symbolic.One()
	for _, axis := range axes {
		if axis < 0 || axis > 3 {
			return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "Sum"}, "axis %d out of range", axis)
		}
		shape[axis] = one
	}
	op := SumOp{Parent: x, Axes: append([]int(nil), axes...), ShapeV: shape, DTypeV: n.DType}
	return derive(g, op, []graph.NodeID{x}, nil)
}

// ReshapeOp reinterprets Parent's storage under a new shape of equal
// element count.
type ReshapeOp struct {
	Parent   graph.NodeID
	NewShape tshape.Shape
	DTypeV   dtype.Type
}

func (o ReshapeOp) Name() string                                   { return "Reshape" }
func (o ReshapeOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o ReshapeOp) Arguments() []graph.NodeID                       { return nil }
func (o ReshapeOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.NewShape, nil }
func (o ReshapeOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o ReshapeOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o ReshapeOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return Reshape(g, msg, g.MustNode(o.Parent).Shape)
}
func (o ReshapeOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ReshapeOp)
	return ok && p.Parent == o.Parent && p.NewShape.Eq(o.NewShape)
}
func (o ReshapeOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Reshape appends a view of x under newShape, requiring exactly equal
// element counts (checked via exact polynomial equality, not just value
// equality under some assignment).
func Reshape(g *graph.Graph, x graph.NodeID, newShape tshape.Shape) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if n.Shape.Eq(newShape) {
		return x, nil
	}
	if !n.Shape.ElementCount().Eq(newShape.ElementCount()) {
		return -1, graph.NewError(graph.KindIncompatibleShapes,
			graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "Reshape", Shapes: []tshape.Shape{n.Shape, newShape}},
			"reshape changes element count: %s -> %s", n.Shape, newShape)
	}
	op := ReshapeOp{Parent: x, NewShape: newShape, DTypeV: n.DType}
	return derive(g, op, []graph.NodeID{x}, nil)
}

// ReorderOp permutes Parent's four axes according to Perm.
type ReorderOp struct {
	Parent graph.NodeID
	Perm   [4]int
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (o ReorderOp) Name() string                                   { return "Reorder" }
func (o ReorderOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o ReorderOp) Arguments() []graph.NodeID                       { return nil }
func (o ReorderOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o ReorderOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o ReorderOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o ReorderOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	inv := inversePerm(o.Perm)
	return Reorder(g, msg, inv)
}
func (o ReorderOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ReorderOp)
	return ok && p.Parent == o.Parent && p.Perm == o.Perm
}
func (o ReorderOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

func inversePerm(perm [4]int) [4]int {
	var inv [4]int
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Reorder appends a permutation of x's four axes according to perm (a
// permutation of {0,1,2,3}).
func Reorder(g *graph.Graph, x graph.NodeID, perm [4]int) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	var shape tshape.Shape
	for i, p := range perm {
		shape[i] = n.Shape[p]
	}
	op := ReorderOp{Parent: x, Perm: perm, ShapeV: shape, DTypeV: n.DType}
	return derive(g, op, []graph.NodeID{x}, nil)
}

// Transpose is the canonical rank-2 Reorder swapping d0 and d1.
func Transpose(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return Reorder(g, x, [4]int{1, 0, 2, 3})
}

// DiagonalOp extracts the diagonal of a square matrix as a vector, or
// embeds a vector as the diagonal of a square matrix, depending on
// Parent's shape at construction time.
type DiagonalOp struct {
	Parent  graph.NodeID
	ToMatrix bool
	ShapeV  tshape.Shape
	DTypeV  dtype.Type
}

func (o DiagonalOp) Name() string                                   { return "Diagonal" }
func (o DiagonalOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o DiagonalOp) Arguments() []graph.NodeID                       { return nil }
func (o DiagonalOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o DiagonalOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o DiagonalOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o DiagonalOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return Diagonal(g, msg)
}
func (o DiagonalOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(DiagonalOp)
	return ok && p.Parent == o.Parent && p.ToMatrix == o.ToMatrix
}
func (o DiagonalOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Diagonal extracts the diagonal of a strict square matrix as a vector, or
// embeds a vector as the diagonal of a freshly built square matrix.
func Diagonal(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	switch {
	case n.Shape.IsVector():
		d := n.Shape[0]
		shape := tshape.Matrix(d, d)
		op := DiagonalOp{Parent: x, ToMatrix: true, ShapeV: shape, DTypeV: n.DType}
		return derive(g, op, []graph.NodeID{x}, nil)
	case n.Shape.IsStrictMatrix() && n.Shape[0].Eq(n.Shape[1]):
		shape := tshape.Vector(n.Shape[0])
		op := DiagonalOp{Parent: x, ToMatrix: false, ShapeV: shape, DTypeV: n.DType}
		return derive(g, op, []graph.NodeID{x}, nil)
	default:
		return -1, graph.NewError(graph.KindIncompatibleShapes,
			graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "Diagonal", Shapes: []tshape.Shape{n.Shape}},
			"Diagonal requires a vector or a square matrix, got %s", n.Shape)
	}
}
