package ops

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/tshape"
)

// unaryBase factors the boilerplate every shape-preserving unary elementwise
// operator shares: same shape and dtype as its single parent.
type unaryBase struct {
	Parent graph.NodeID
	ShapeV tshape.Shape
	DTypeV dtype.Type
}

func (u unaryBase) Parents() []graph.NodeID                        { return []graph.NodeID{u.Parent} }
func (u unaryBase) Arguments() []graph.NodeID                      { return nil }
func (u unaryBase) InferShape(g *graph.Graph) (tshape.Shape, error) { return u.ShapeV, nil }
func (u unaryBase) InferDType(g *graph.Graph) (dtype.Type, error)   { return u.DTypeV, nil }
func (u unaryBase) InferKind(g *graph.Graph) graph.Kind {
	return inferKindFromParents(g, []graph.NodeID{u.Parent})
}

func newUnaryBase(g *graph.Graph, x graph.NodeID) unaryBase {
	n := g.MustNode(x)
	return unaryBase{Parent: x, ShapeV: n.Shape, DTypeV: n.DType}
}

// --- Neg -------------------------------------------------------------------

type NegOp struct{ unaryBase }

func (o NegOp) Name() string { return "Neg" }
func (o NegOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return Neg(g, msg)
}
func (o NegOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(NegOp)
	return ok && p.Parent == o.Parent
}
func (o NegOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Neg appends the elementwise additive inverse of x.
func Neg(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, NegOp{b}, []graph.NodeID{x}, nil)
}

// --- Reciprocal (1/x) --------------------------------------------------------

type ReciprocalOp struct{ unaryBase }

func (o ReciprocalOp) Name() string { return "Reciprocal" }
func (o ReciprocalOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	// d/dx (1/x) = -1/x^2 = -self^2
	num, err := SumMul(g, msg, self)
	if err != nil {
		return -1, err
	}
	num, err = SumMul(g, num, self)
	if err != nil {
		return -1, err
	}
	return Neg(g, num)
}
func (o ReciprocalOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ReciprocalOp)
	return ok && p.Parent == o.Parent
}
func (o ReciprocalOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Reciprocal appends 1/x.
func Reciprocal(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, ReciprocalOp{b}, []graph.NodeID{x}, nil)
}

// --- Square ------------------------------------------------------------------

type SquareOp struct{ unaryBase }

func (o SquareOp) Name() string { return "Square" }
func (o SquareOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	two, err := ConstantValue(g, 2.0, g.MustNode(o.Parent).Shape)
	if err != nil {
		return -1, err
	}
	twoX, err := SumMul(g, two, o.Parent)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msg, twoX)
}
func (o SquareOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SquareOp)
	return ok && p.Parent == o.Parent
}
func (o SquareOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Square appends x^2.
func Square(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, SquareOp{b}, []graph.NodeID{x}, nil)
}

// --- Exp -----------------------------------------------------------------

type ExpOp struct{ unaryBase }

func (o ExpOp) Name() string { return "Exp" }
func (o ExpOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	return SumMul(g, msg, self)
}
func (o ExpOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(ExpOp)
	return ok && p.Parent == o.Parent
}
func (o ExpOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Exp appends exp(x).
func Exp(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, ExpOp{b}, []graph.NodeID{x}, nil)
}

// --- Log -------------------------------------------------------------------

type LogOp struct{ unaryBase }

func (o LogOp) Name() string { return "Log" }
func (o LogOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	inv, err := Reciprocal(g, o.Parent)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msg, inv)
}
func (o LogOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(LogOp)
	return ok && p.Parent == o.Parent
}
func (o LogOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Log appends the natural logarithm of x.
func Log(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, LogOp{b}, []graph.NodeID{x}, nil)
}

// --- Log10 -----------------------------------------------------------------

const ln10 = 2.302585092994046

type Log10Op struct{ unaryBase }

func (o Log10Op) Name() string { return "Log10" }
func (o Log10Op) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	scale, err := ConstantValue(g, ln10, g.MustNode(o.Parent).Shape)
	if err != nil {
		return -1, err
	}
	denom, err := SumMul(g, o.Parent, scale)
	if err != nil {
		return -1, err
	}
	inv, err := Reciprocal(g, denom)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msg, inv)
}
func (o Log10Op) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(Log10Op)
	return ok && p.Parent == o.Parent
}
func (o Log10Op) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Log10 appends the base-10 logarithm of x.
func Log10(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, Log10Op{b}, []graph.NodeID{x}, nil)
}

// --- Log1p -----------------------------------------------------------------

type Log1pOp struct{ unaryBase }

func (o Log1pOp) Name() string { return "Log1p" }
func (o Log1pOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	one, err := ConstantValue(g, 1.0, g.MustNode(o.Parent).Shape)
	if err != nil {
		return -1, err
	}
	denom, err := SumAdd(g, one, o.Parent)
	if err != nil {
		return -1, err
	}
	inv, err := Reciprocal(g, denom)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msg, inv)
}
func (o Log1pOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(Log1pOp)
	return ok && p.Parent == o.Parent
}
func (o Log1pOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Log1p appends log(1 + x).
func Log1p(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, Log1pOp{b}, []graph.NodeID{x}, nil)
}

// --- Abs ---------------------------------------------------------------------

type AbsOp struct{ unaryBase }

func (o AbsOp) Name() string { return "Abs" }
func (o AbsOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	zero, err := ConstantValue(g, 0.0, g.MustNode(o.Parent).Shape)
	if err != nil {
		return -1, err
	}
	positive, err := Gt(g, o.Parent, zero)
	if err != nil {
		return -1, err
	}
	negMsg, err := Neg(g, msg)
	if err != nil {
		return -1, err
	}
	return Select(g, positive, msg, negMsg)
}
func (o AbsOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(AbsOp)
	return ok && p.Parent == o.Parent
}
func (o AbsOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Abs appends |x|.
func Abs(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, AbsOp{b}, []graph.NodeID{x}, nil)
}

// --- Softplus (log(1+exp(x))) ------------------------------------------------

type SoftplusOp struct{ unaryBase }

func (o SoftplusOp) Name() string { return "Softplus" }
func (o SoftplusOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	negX, err := Neg(g, o.Parent)
	if err != nil {
		return -1, err
	}
	expNegX, err := Exp(g, negX)
	if err != nil {
		return -1, err
	}
	one, err := ConstantValue(g, 1.0, g.MustNode(o.Parent).Shape)
	if err != nil {
		return -1, err
	}
	denom, err := SumAdd(g, one, expNegX)
	if err != nil {
		return -1, err
	}
	sigmoid, err := Reciprocal(g, denom)
	if err != nil {
		return -1, err
	}
	return SumMul(g, msg, sigmoid)
}
func (o SoftplusOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SoftplusOp)
	return ok && p.Parent == o.Parent
}
func (o SoftplusOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Softplus appends log(1+exp(x)).
func Softplus(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	b := newUnaryBase(g, x)
	return derive(g, SoftplusOp{b}, []graph.NodeID{x}, nil)
}

// --- trigonometric / hyperbolic family ---------------------------------------

// trigGrad builds the shared "msg * f(x)" gradient shape used by every
// trig/hyperbolic operator below, where f is supplied by the caller.
func trigGrad(g *graph.Graph, msg graph.NodeID, factor graph.NodeID) (graph.NodeID, error) {
	return SumMul(g, msg, factor)
}

type SinOp struct{ unaryBase }

func (o SinOp) Name() string { return "Sin" }
func (o SinOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	c, err := Cos(g, o.Parent)
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, c)
}
func (o SinOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SinOp)
	return ok && p.Parent == o.Parent
}
func (o SinOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Sin appends sin(x).
func Sin(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, SinOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type CosOp struct{ unaryBase }

func (o CosOp) Name() string { return "Cos" }
func (o CosOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	s, err := Sin(g, o.Parent)
	if err != nil {
		return -1, err
	}
	prod, err := trigGrad(g, msg, s)
	if err != nil {
		return -1, err
	}
	return Neg(g, prod)
}
func (o CosOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(CosOp)
	return ok && p.Parent == o.Parent
}
func (o CosOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Cos appends cos(x).
func Cos(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, CosOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type TanOp struct{ unaryBase }

func (o TanOp) Name() string { return "Tan" }
func (o TanOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	c, err := Cos(g, o.Parent)
	if err != nil {
		return -1, err
	}
	cSq, err := Square(g, c)
	if err != nil {
		return -1, err
	}
	inv, err := Reciprocal(g, cSq)
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, inv)
}
func (o TanOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(TanOp)
	return ok && p.Parent == o.Parent
}
func (o TanOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Tan appends tan(x).
func Tan(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, TanOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type CotOp struct{ unaryBase }

func (o CotOp) Name() string { return "Cot" }
func (o CotOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	s, err := Sin(g, o.Parent)
	if err != nil {
		return -1, err
	}
	sSq, err := Square(g, s)
	if err != nil {
		return -1, err
	}
	inv, err := Reciprocal(g, sSq)
	if err != nil {
		return -1, err
	}
	prod, err := trigGrad(g, msg, inv)
	if err != nil {
		return -1, err
	}
	return Neg(g, prod)
}
func (o CotOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(CotOp)
	return ok && p.Parent == o.Parent
}
func (o CotOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Cot appends cot(x).
func Cot(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, CotOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type SinhOp struct{ unaryBase }

func (o SinhOp) Name() string { return "Sinh" }
func (o SinhOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	c, err := Cosh(g, o.Parent)
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, c)
}
func (o SinhOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(SinhOp)
	return ok && p.Parent == o.Parent
}
func (o SinhOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Sinh appends sinh(x).
func Sinh(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, SinhOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type CoshOp struct{ unaryBase }

func (o CoshOp) Name() string { return "Cosh" }
func (o CoshOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	s, err := Sinh(g, o.Parent)
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, s)
}
func (o CoshOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(CoshOp)
	return ok && p.Parent == o.Parent
}
func (o CoshOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Cosh appends cosh(x).
func Cosh(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, CoshOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type TanhOp struct{ unaryBase }

func (o TanhOp) Name() string { return "Tanh" }
func (o TanhOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	selfSq, err := Square(g, self)
	if err != nil {
		return -1, err
	}
	one, err := ConstantValue(g, 1.0, o.ShapeV)
	if err != nil {
		return -1, err
	}
	factor, err := SumAdd(g, one, mustNeg(g, selfSq))
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, factor)
}
func (o TanhOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(TanhOp)
	return ok && p.Parent == o.Parent
}
func (o TanhOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Tanh appends tanh(x).
func Tanh(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, TanhOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

type CothOp struct{ unaryBase }

func (o CothOp) Name() string { return "Coth" }
func (o CothOp) Gradient(g *graph.Graph, self, msg graph.NodeID, parentIdx int) (graph.NodeID, error) {
	selfSq, err := Square(g, self)
	if err != nil {
		return -1, err
	}
	one, err := ConstantValue(g, 1.0, o.ShapeV)
	if err != nil {
		return -1, err
	}
	factor, err := SumAdd(g, one, mustNeg(g, selfSq))
	if err != nil {
		return -1, err
	}
	return trigGrad(g, msg, factor)
}
func (o CothOp) StructurallyEqual(other graph.Operator) bool {
	p, ok := other.(CothOp)
	return ok && p.Parent == o.Parent
}
func (o CothOp) Relocate(remap func(graph.NodeID) graph.NodeID) graph.Operator {
	o.Parent = remap(o.Parent)
	return o
}

// Coth appends coth(x).
func Coth(g *graph.Graph, x graph.NodeID) (graph.NodeID, error) {
	return derive(g, CothOp{newUnaryBase(g, x)}, []graph.NodeID{x}, nil)
}

// mustNeg is a Gradient-path convenience that swallows an error by
// returning the original node id in the impossible case Neg fails on an
// already-validated node; used only where Neg cannot fail in practice.
func mustNeg(g *graph.Graph, x graph.NodeID) graph.NodeID {
	id, err := Neg(g, x)
	if err != nil {
		return x
	}
	return id
}
