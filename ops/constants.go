package ops

import (
	"fmt"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/registry"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
	"github.com/spf13/cast"
)

// Value is a fully-known numeric constant broadcast to a shape, carried as
// a float64 for symbolic bookkeeping (constant folding, structural
// equality) — the core never materializes or executes it.
type Value struct {
	Val    float64
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (v Value) Name() string                                   { return "Value" }
func (v Value) Parents() []graph.NodeID                        { return nil }
func (v Value) Arguments() []graph.NodeID                      { return nil }
func (v Value) InferShape(g *graph.Graph) (tshape.Shape, error) { return v.ShapeV, nil }
func (v Value) InferDType(g *graph.Graph) (dtype.Type, error)   { return v.DTypeV, nil }
func (v Value) InferKind(g *graph.Graph) graph.Kind             { return graph.Constant }
func (v Value) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("Value", self)
}
func (v Value) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Value)
	return ok && o.Val == v.Val && o.ShapeV.Eq(v.ShapeV) && o.DTypeV == v.DTypeV
}
func (v Value) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator { return v }

// Eye is the n x n identity matrix constant.
type Eye struct {
	N      symbolic.Polynomial
	DTypeV dtype.Type
}

func (e Eye) Name() string                                   { return "Eye" }
func (e Eye) Parents() []graph.NodeID                        { return nil }
func (e Eye) Arguments() []graph.NodeID                      { return nil }
func (e Eye) InferShape(g *graph.Graph) (tshape.Shape, error) { return tshape.Matrix(e.N, e.N), nil }
func (e Eye) InferDType(g *graph.Graph) (dtype.Type, error)   { return e.DTypeV, nil }
func (e Eye) InferKind(g *graph.Graph) graph.Kind             { return graph.Constant }
func (e Eye) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("Eye", self)
}
func (e Eye) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Eye)
	return ok && o.N.Eq(e.N) && o.DTypeV == e.DTypeV
}
func (e Eye) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator { return e }

// Sequence is the half-open integer range [A, B) materialized as a vector.
type Sequence struct {
	A, B   int64
	DTypeV dtype.Type
}

func (s Sequence) Name() string      { return "Sequence" }
func (s Sequence) Parents() []graph.NodeID   { return nil }
func (s Sequence) Arguments() []graph.NodeID { return nil }
func (s Sequence) InferShape(g *graph.Graph) (tshape.Shape, error) {
	n := s.B - s.A
	if n < 0 {
		n = 0
	}
	return tshape.Vector(symbolic.Const(n)), nil
}
func (s Sequence) InferDType(g *graph.Graph) (dtype.Type, error) { return s.DTypeV, nil }
func (s Sequence) InferKind(g *graph.Graph) graph.Kind           { return graph.Constant }
func (s Sequence) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("Sequence", self)
}
func (s Sequence) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Sequence)
	return ok && o.A == s.A && o.B == s.B && o.DTypeV == s.DTypeV
}
func (s Sequence) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator { return s }

// MakeConstant is a view over Target that forwards its shape and dtype but
// always reports Constant kind regardless of Target's actual kind,
// deliberately poisoning gradient flow past this point (the one sanctioned
// exception to the "Constant only if all parents Constant" invariant).
type MakeConstant struct {
	Target graph.NodeID
}

func (m MakeConstant) Name() string                 { return "MakeConstant" }
func (m MakeConstant) Parents() []graph.NodeID       { return []graph.NodeID{m.Target} }
func (m MakeConstant) Arguments() []graph.NodeID     { return nil }
func (m MakeConstant) InferShape(g *graph.Graph) (tshape.Shape, error) {
	return g.MustNode(m.Target).Shape, nil
}
func (m MakeConstant) InferDType(g *graph.Graph) (dtype.Type, error) {
	return g.MustNode(m.Target).DType, nil
}
func (m MakeConstant) InferKind(g *graph.Graph) graph.Kind { return graph.Constant }
func (m MakeConstant) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("MakeConstant", self)
}
func (m MakeConstant) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(MakeConstant)
	return ok && o.Target == m.Target
}
func (m MakeConstant) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	return MakeConstant{Target: remap(m.Target)}
}

// Input is a fresh graph parameter: never Constant, never derivable from
// any other node.
type Input struct {
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (in Input) Name() string                                   { return "Input" }
func (in Input) Parents() []graph.NodeID                        { return nil }
func (in Input) Arguments() []graph.NodeID                       { return nil }
func (in Input) InferShape(g *graph.Graph) (tshape.Shape, error) { return in.ShapeV, nil }
func (in Input) InferDType(g *graph.Graph) (dtype.Type, error)   { return in.DTypeV, nil }
func (in Input) InferKind(g *graph.Graph) graph.Kind             { return graph.Input }
func (in Input) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("Input", self)
}
func (in Input) StructurallyEqual(other graph.Operator) bool { return false }
func (in Input) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator { return in }

// Shared is a persistent, registry-backed variable: an Input whose identity
// survives across graphs built against the same registry.
type Shared struct {
	ID     registry.ID
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (s Shared) Name() string                                   { return fmt.Sprintf("Shared[%d]", s.ID) }
func (s Shared) Parents() []graph.NodeID                        { return nil }
func (s Shared) Arguments() []graph.NodeID                      { return nil }
func (s Shared) InferShape(g *graph.Graph) (tshape.Shape, error) { return s.ShapeV, nil }
func (s Shared) InferDType(g *graph.Graph) (dtype.Type, error)   { return s.DTypeV, nil }
func (s Shared) InferKind(g *graph.Graph) graph.Kind             { return graph.Input }
func (s Shared) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return wrongGradient("Shared", self)
}
func (s Shared) StructurallyEqual(other graph.Operator) bool {
	o, ok := other.(Shared)
	return ok && o.ID == s.ID
}
func (s Shared) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator { return s }

// --- graph-level construction factories -----------------------------------

// Tensor4 appends a fresh rank-4 Input node.
func Tensor4(g *graph.Graph, d0, d1, d2, d3 symbolic.Polynomial, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Input{ShapeV: tshape.New(d0, d1, d2, d3), DTypeV: dt}, nil, nil)
}

// Tensor3 appends a fresh rank-3 Input node.
func Tensor3(g *graph.Graph, d0, d1, d2 symbolic.Polynomial, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Input{ShapeV: tshape.New(d0, d1, d2, symbolic.One()), DTypeV: dt}, nil, nil)
}

// Matrix appends a fresh matrix Input node.
func Matrix(g *graph.Graph, d0, d1 symbolic.Polynomial, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Input{ShapeV: tshape.Matrix(d0, d1), DTypeV: dt}, nil, nil)
}

// Vector appends a fresh vector Input node.
func Vector(g *graph.Graph, d0 symbolic.Polynomial, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Input{ShapeV: tshape.Vector(d0), DTypeV: dt}, nil, nil)
}

// Scalar appends a fresh scalar Input node.
func Scalar(g *graph.Graph, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Input{ShapeV: tshape.Scalar(), DTypeV: dt}, nil, nil)
}

// SharedVariable appends a node referencing an existing registry entry.
func SharedVariable(g *graph.Graph, id registry.ID) (graph.NodeID, error) {
	entry, err := g.Registry().Lookup(id)
	if err != nil {
		return -1, graph.NewError(graph.KindMissingRequiredInput, graph.Detail{Operator: "SharedVariable"}, "%v", err)
	}
	return g.Append(Shared{ID: id, ShapeV: entry.Shape, DTypeV: entry.DType}, nil, nil)
}

// inferScalarDType infers a dtype tag for a raw Go numeric/bool value.
func inferScalarDType(v interface{}) dtype.Type {
	switch v.(type) {
	case bool:
		return dtype.B8
	case float32, float64:
		return dtype.F64
	default:
		return dtype.I64
	}
}

// ConstantValue appends a scalar-or-broadcast constant, inferring its dtype
// from v's Go type and clipping it to the graph's configured caps.
func ConstantValue(g *graph.Graph, v interface{}, shape tshape.Shape) (graph.NodeID, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return -1, graph.NewError(graph.KindInvalidArguments, graph.Detail{Operator: "ConstantValue"}, "%v", err)
	}
	raw := inferScalarDType(v)
	dt := dtype.Promote(raw, raw, g.Config().Caps())
	return g.Append(Value{Val: f, ShapeV: shape, DTypeV: dt}, nil, nil)
}

// EyeMatrix appends an n x n identity matrix constant.
func EyeMatrix(g *graph.Graph, n symbolic.Polynomial, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Eye{N: n, DTypeV: dt}, nil, nil)
}

// Zeros appends a constant node broadcasting 0 to shape.
func Zeros(g *graph.Graph, shape tshape.Shape, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Value{Val: 0, ShapeV: shape, DTypeV: dt}, nil, nil)
}

// Ones appends a constant node broadcasting 1 to shape.
func Ones(g *graph.Graph, shape tshape.Shape, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Value{Val: 1, ShapeV: shape, DTypeV: dt}, nil, nil)
}

// Seq appends the half-open integer range [a, b) as a vector constant.
func Seq(g *graph.Graph, a, b int64, dt dtype.Type) (graph.NodeID, error) {
	return g.Append(Sequence{A: a, B: b, DTypeV: dt}, nil, nil)
}

// MakeConst wraps parent in a MakeConstant view, poisoning gradient flow
// past this point regardless of parent's actual kind.
func MakeConst(g *graph.Graph, parent graph.NodeID) (graph.NodeID, error) {
	return derive(g, MakeConstant{Target: parent}, []graph.NodeID{parent}, nil)
}
