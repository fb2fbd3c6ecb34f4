// Package symbolic implements polynomial arithmetic over a small set of
// abstract integer variables. It backs tensor shapes: a shape dimension is
// not a fixed number but a polynomial, so that graphs can be built and
// optimized before any concrete size is known.
package symbolic

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/src-d/go-errors.v1"
)

// Var identifies an abstract integer variable by a small index.
type Var int

var (
	// ErrNonIntegerDivision is raised whenever polynomial division would
	// require a fractional coefficient or a negative exponent.
	ErrNonIntegerDivision = errors.NewKind("non-integer division: %s is not exactly divisible by %s")
	// ErrNonConstantEvaluation is raised by Eval when called with no
	// variable assignment on a non-constant polynomial.
	ErrNonConstantEvaluation = errors.NewKind("cannot evaluate non-constant polynomial %s without a variable assignment")
)

// Monomial is a signed integer coefficient paired with a sorted exponent
// vector over variables. A canonical Monomial never carries a variable with
// a zero exponent.
type Monomial struct {
	Coef int64
	Exps map[Var]uint32
}

func newMonomial(coef int64, exps map[Var]uint32) Monomial {
	clean := make(map[Var]uint32, len(exps))
	for v, e := range exps {
		if e != 0 {
			clean[v] = e
		}
	}
	return Monomial{Coef: coef, Exps: clean}
}

func (m Monomial) isZero() bool { return m.Coef == 0 }

func (m Monomial) clone() Monomial {
	exps := make(map[Var]uint32, len(m.Exps))
	for v, e := range m.Exps {
		exps[v] = e
	}
	return Monomial{Coef: m.Coef, Exps: exps}
}

func (m Monomial) sortedVars() []Var {
	vars := make([]Var, 0, len(m.Exps))
	for v := range m.Exps {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// sameExps reports whether two monomials share the same exponent vector.
func sameExps(a, b Monomial) bool {
	if len(a.Exps) != len(b.Exps) {
		return false
	}
	for v, e := range a.Exps {
		if b.Exps[v] != e {
			return false
		}
	}
	return true
}

// monomialLess implements the total order from the package invariants: lowest
// variable index first; within the same variable, higher exponent first;
// ties broken by coefficient, larger first.
func monomialLess(a, b Monomial) bool {
	av, bv := a.sortedVars(), b.sortedVars()
	i, j := 0, 0
	for i < len(av) || j < len(bv) {
		switch {
		case i < len(av) && (j >= len(bv) || av[i] < bv[j]):
			// a carries a variable here that b does not (exponent 0 in b);
			// a positive exponent sorts before an absent (zero) one.
			return true
		case j < len(bv) && (i >= len(av) || bv[j] < av[i]):
			return false
		default:
			va := av[i]
			ea, eb := a.Exps[va], b.Exps[va]
			if ea != eb {
				return ea > eb
			}
			i++
			j++
		}
	}
	return a.Coef > b.Coef
}

func (m Monomial) String() string {
	vars := m.sortedVars()
	if len(vars) == 0 {
		return fmt.Sprintf("%d", m.Coef)
	}
	var parts []string
	if m.Coef != 1 {
		parts = append(parts, fmt.Sprintf("%d", m.Coef))
	}
	for _, v := range vars {
		e := m.Exps[v]
		if e == 1 {
			parts = append(parts, fmt.Sprintf("x%d", v))
		} else {
			parts = append(parts, fmt.Sprintf("x%d^%d", v, e))
		}
	}
	return strings.Join(parts, "*")
}

// Polynomial is an ordered, duplicate-free list of monomials. The empty
// list represents zero.
type Polynomial []Monomial

// Zero returns the zero polynomial.
func Zero() Polynomial { return nil }

// One returns the constant polynomial 1.
func One() Polynomial { return Const(1) }

// Const returns the constant polynomial n.
func Const(n int64) Polynomial {
	if n == 0 {
		return nil
	}
	return Polynomial{newMonomial(n, nil)}
}

// FromVar returns the polynomial consisting of the single variable v.
func FromVar(v Var) Polynomial {
	return Polynomial{newMonomial(1, map[Var]uint32{v: 1})}
}

func normalize(ms []Monomial) Polynomial {
	var live []Monomial
	for _, m := range ms {
		if !m.isZero() {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return monomialLess(live[i], live[j]) })

	var out []Monomial
	for _, m := range live {
		if len(out) > 0 && sameExps(out[len(out)-1], m) {
			out[len(out)-1].Coef += m.Coef
			continue
		}
		out = append(out, m)
	}
	var merged []Monomial
	for _, m := range out {
		if !m.isZero() {
			merged = append(merged, m)
		}
	}
	return merged
}

// IsZero reports whether p is the zero polynomial.
func (p Polynomial) IsZero() bool { return len(p) == 0 }

// IsConstant reports whether p has no variables.
func (p Polynomial) IsConstant() bool {
	return len(p) == 0 || (len(p) == 1 && len(p[0].Exps) == 0)
}

func (p Polynomial) clone() []Monomial {
	out := make([]Monomial, len(p))
	for i, m := range p {
		out[i] = m.clone()
	}
	return out
}

// Add returns p + q.
func (p Polynomial) Add(q Polynomial) Polynomial {
	combined := append(p.clone(), q.clone()...)
	return normalize(combined)
}

// Neg returns -p.
func (p Polynomial) Neg() Polynomial {
	out := p.clone()
	for i := range out {
		out[i].Coef = -out[i].Coef
	}
	return Polynomial(out)
}

// Sub returns p - q.
func (p Polynomial) Sub(q Polynomial) Polynomial {
	return p.Add(q.Neg())
}

func mulMonomial(a, b Monomial) Monomial {
	exps := make(map[Var]uint32, len(a.Exps)+len(b.Exps))
	for v, e := range a.Exps {
		exps[v] = e
	}
	for v, e := range b.Exps {
		exps[v] += e
	}
	return newMonomial(a.Coef*b.Coef, exps)
}

// Mul returns p * q, the cross product of monomials merged and re-sorted.
func (p Polynomial) Mul(q Polynomial) Polynomial {
	var out []Monomial
	for _, a := range p {
		for _, b := range q {
			out = append(out, mulMonomial(a, b))
		}
	}
	return normalize(out)
}

// divideMonomial implements exact monomial-wise division: a / b.
func divideMonomial(a, b Monomial) (Monomial, error) {
	if b.Coef == 0 {
		return Monomial{}, ErrNonIntegerDivision.New(Polynomial{a}.String(), Polynomial{b}.String())
	}
	if a.Coef%b.Coef != 0 {
		return Monomial{}, ErrNonIntegerDivision.New(Polynomial{a}.String(), Polynomial{b}.String())
	}
	exps := make(map[Var]uint32, len(a.Exps))
	for v, e := range a.Exps {
		exps[v] = e
	}
	for v, e := range b.Exps {
		have, ok := exps[v]
		if !ok || have < e {
			return Monomial{}, ErrNonIntegerDivision.New(Polynomial{a}.String(), Polynomial{b}.String())
		}
		exps[v] = have - e
	}
	return newMonomial(a.Coef/b.Coef, exps), nil
}

// Div implements exact polynomial long division: repeatedly cancel the
// leading monomial of the remainder against the leading monomial of the
// divisor. It fails with ErrNonIntegerDivision the moment an exact
// monomial-wise cancellation is impossible.
func (p Polynomial) Div(q Polynomial) (Polynomial, error) {
	if q.IsZero() {
		return nil, ErrNonIntegerDivision.New(p.String(), q.String())
	}
	leadQ := q[0]
	remainder := Polynomial(p.clone())
	var quotient []Monomial

	for !remainder.IsZero() {
		leadR := remainder[0]
		qm, err := divideMonomial(leadR, leadQ)
		if err != nil {
			return nil, err
		}
		quotient = append(quotient, qm)
		remainder = remainder.Sub(Polynomial{qm}.Mul(q))
	}
	return normalize(quotient), nil
}

// Eq reports structural equality.
func (p Polynomial) Eq(q Polynomial) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i].Coef != q[i].Coef || !sameExps(p[i], q[i]) {
			return false
		}
	}
	return true
}

// EqUpToCoef reports whether p and q share the same set of exponent
// vectors, ignoring coefficients.
func (p Polynomial) EqUpToCoef(q Polynomial) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if !sameExps(p[i], q[i]) {
			return false
		}
	}
	return true
}

// Less provides a total order over polynomials, comparing monomial by
// monomial under the package's term order.
func (p Polynomial) Less(q Polynomial) bool {
	for i := 0; i < len(p) && i < len(q); i++ {
		if monomialLess(p[i], q[i]) {
			return true
		}
		if monomialLess(q[i], p[i]) {
			return false
		}
		if p[i].Coef != q[i].Coef {
			return p[i].Coef < q[i].Coef
		}
	}
	return len(p) < len(q)
}

// Subst evaluates p under a full variable assignment.
func (p Polynomial) Subst(assignment map[Var]int64) int64 {
	var total int64
	for _, m := range p {
		term := m.Coef
		for v, e := range m.Exps {
			val := assignment[v]
			for k := uint32(0); k < e; k++ {
				term *= val
			}
		}
		total += term
	}
	return total
}

// Eval evaluates a constant polynomial. It raises ErrNonConstantEvaluation
// if p still carries variables.
func (p Polynomial) Eval() (int64, error) {
	if !p.IsConstant() {
		return 0, ErrNonConstantEvaluation.New(p.String())
	}
	if p.IsZero() {
		return 0, nil
	}
	return p[0].Coef, nil
}

// String renders a human-readable representation, e.g. "2*x0^2 + x1 - 3".
func (p Polynomial) String() string {
	if p.IsZero() {
		return "0"
	}
	var parts []string
	for i, m := range p {
		s := m.String()
		if i > 0 && m.Coef >= 0 {
			parts = append(parts, "+ "+s)
		} else if i > 0 {
			parts = append(parts, "- "+strings.TrimPrefix(s, "-"))
		} else {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
