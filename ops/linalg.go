package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// MatMulOp is strict two-dimensional matrix multiplication: (m,k) x (k,n).
type MatMulOp struct {
	A, B   graph.NodeID
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (o MatMulOp) Name() string                                   { return "MatMul" }
func (o MatMulOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.A, o.B} }
func (o MatMulOp) Arguments() []graph.NodeID                       { return nil }
func (o MatMulOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return o.ShapeV, nil }
func (o MatMulOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o MatMulOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.A, o.B})
}
func (o MatMulOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	switch parentIdx {
	case 0:
		bt, err := Transpose(g, o.B)
		if err != nil {
			return -1, err
		}
		return MatMul(g, msg, bt)
	default:
		at, err := Transpose(g, o.A)
		if err != nil {
			return -1, err
		}
		return MatMul(g, at, msg)
	}
}
func (o MatMulOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(MatMulOp)
	return ok && p.A == o.A && p.B == o.B
}
func (o MatMulOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.A, o.B = remap(o.A), remap(o.B)
	return o
}

// MatMul appends the strict matrix product a @ b, requiring a's second
// axis to equal b's first. A chain product over more than two matrices is
// a left-fold of repeated binary calls (MatMul(MatMul(a, b), c), ...); this
// package does not expose a variadic chain-product node of its own.
func MatMul(g *graph.Graph, a, b graph.NodeID) (graph.NodeID, error) {
	na, err := g.Node(a)
	if err != nil {
		return -1, err
	}
	nb, err := g.Node(b)
	if err != nil {
		return -1, err
	}
	if !na.Shape.IsStrictMatrix() && !na.Shape.IsVector() {
		return -1, graph.NewError(graph.KindIncompatibleShapes, graph.Detail{NodeIDs: []graph.NodeID{a}, Operator: "MatMul", Shapes: []tshape.Shape{na.Shape}}, "MatMul requires a matrix or vector operand")
	}
	if !na.Shape[1].Eq(nb.Shape[0]) {
		return -1, graph.NewError(graph.KindIncompatibleShapes,
			graph.Detail{NodeIDs: []graph.NodeID{a, b}, Operator: "MatMul", Shapes: []tshape.Shape{na.Shape, nb.Shape}},
			"MatMul inner dimension mismatch: %s vs %s", na.Shape, nb.Shape)
	}
	dt, err := promoteAll(g, "MatMul", []graph.NodeID{a, b})
	if err != nil {
		return -1, err
	}
	typed, err := castAllTo(g, "MatMul", []graph.NodeID{a, b}, dt)
	if err != nil {
		return -1, err
	}
	shape := tshape.Matrix(na.Shape[0], nb.Shape[1])
	op := MatMulOp{A: typed[0], B: typed[1], ShapeV: shape, DTypeV: dt}
	return derive(g, op, typed, nil)
}

// MatInvOp is the matrix inverse of a strict square matrix.
type MatInvOp struct{ unaryBase }

func (o MatInvOp) Name() string { return "MatInv" }
func (o MatInvOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// d(A^-1)/dA applied to msg: -A^-T @ msg @ A^-T = -self^T @ msg @ self^T
	st, err := Transpose(g, self)
	if err != nil {
		return -1, err
	}
	left, err := MatMul(g, st, msg)
	if err != nil {
		return -1, err
	}
	prod, err := MatMul(g, left, st)
	if err != nil {
		return -1, err
	}
	return Neg(g, prod)
}
func (o MatInvOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(MatInvOp)
	return ok && p.Parent == o.Parent
}
func (o MatInvOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// MatInv appends the inverse of a strict square matrix.
func MatInv(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if !n.Shape.IsStrictMatrix() || !n.Shape[0].Eq(n.Shape[1]) {
		return -1, graph.NewError(graph.KindIncompatibleShapes, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "MatInv", Shapes: []tshape.Shape{n.Shape}}, "MatInv requires a square matrix")
	}
	return derive(g, MatInvOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

// DetOp is the scalar determinant of a strict square matrix.
type DetOp struct {
	Parent graph.NodeID
	DTypeV dtype.Type
}

func (o DetOp) Name() string                                   { return "Det" }
func (o DetOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o DetOp) Arguments() []graph.NodeID                       { return nil }
func (o DetOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return tshape.Scalar(), nil }
func (o DetOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o DetOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o DetOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// Jacobi's formula: d(det A) = det(A) * tr(A^-1 dA), so the gradient
	// w.r.t. A is msg * det(A) * A^-T.
	inv, err := MatInv(g, o.Parent)
	if err != nil {
		return -1, err
	}
	invT, err := Transpose(g, inv)
	if err != nil {
		return -1, err
	}
	scale, err := SumMul(g, msg, self)
	if err != nil {
		return -1, err
	}
	scaleB, err := Broadcast(g, scale, g.MustNode(invT).Shape)
	if err != nil {
		return -1, err
	}
	return SumMul(g, scaleB, invT)
}
func (o DetOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(DetOp)
	return ok && p.Parent == o.Parent
}
func (o DetOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Det appends the determinant of a strict square matrix.
func Det(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if !n.Shape.IsStrictMatrix() || !n.Shape[0].Eq(n.Shape[1]) {
		return -1, graph.NewError(graph.KindIncompatibleShapes, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "Det", Shapes: []tshape.Shape{n.Shape}}, "Det requires a square matrix")
	}
	return derive(g, DetOp{Parent: x, DTypeV: n.DType}, []graph.NodeID{x}, nil)
}

// LogDetOp is the scalar log-determinant of a strict square matrix.
type LogDetOp struct {
	Parent graph.NodeID
	DTypeV dtype.Type
}

func (o LogDetOp) Name() string                                   { return "LogDet" }
func (o LogDetOp) Parents() []graph.NodeID                        { return []graph.NodeID{o.Parent} }
func (o LogDetOp) Arguments() []graph.NodeID                       { return nil }
func (o LogDetOp) InferShape(g *graph.Graph) (tshape.Shape, error) { return tshape.Scalar(), nil }
func (o LogDetOp) InferDType(g *graph.Graph) (dtype.Type, error)   { return o.DTypeV, nil }
func (o LogDetOp) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{o.Parent})
}
func (o LogDetOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// d(logdet A)/dA = A^-T
	inv, err := MatInv(g, o.Parent)
	if err != nil {
		return -1, err
	}
	invT, err := Transpose(g, inv)
	if err != nil {
		return -1, err
	}
	msgB, err := Broadcast(g, msg, g.MustNode(invT).Shape)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msgB, invT)
}
func (o LogDetOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(LogDetOp)
	return ok && p.Parent == o.Parent
}
func (o LogDetOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// LogDet appends the log-determinant of a strict square matrix.
func LogDet(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	n, err := g.Node(x)
	if err != nil {
		return -1, err
	}
	if !n.Shape.IsStrictMatrix() || !n.Shape[0].Eq(n.Shape[1]) {
		return -1, graph.NewError(graph.KindIncompatibleShapes, graph.Detail{NodeIDs: []graph.NodeID{x}, Operator: "LogDet", Shapes: []tshape.Shape{n.Shape}}, "LogDet requires a square matrix")
	}
	return derive(g, LogDetOp{Parent: x, DTypeV: n.DType}, []graph.NodeID{x}, nil)
}

// Trace appends the sum of the diagonal of a strict square matrix, built
// from Diagonal + Sum so its gradient composes from their local rules.
func Trace(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	diag, err := Diagonal(g, x)
	if err != nil {
		return -1, err
	}
	return Sum(g, diag, []int{0}, true)
}
