package graph

import (
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/tshape"
)

// NodeID identifies a node by its arena index. Node identity is the index;
// nodes are never moved except across a compaction, which returns an
// explicit old-to-new NodeID remapping.
type NodeID int

// Kind classifies how a node was derived from its inputs.
type Kind int

const (
	// Constant nodes have only Constant parents (or none).
	Constant Kind = iota
	// ConstantDerived nodes descend only from Constant/ConstantDerived
	// parents but are not themselves foldable leaves.
	ConstantDerived
	// Input nodes are graph parameters or shared variables: never Constant.
	Input
	// InputDerived nodes have at least one Input/InputDerived ancestor.
	InputDerived
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case ConstantDerived:
		return "ConstantDerived"
	case Input:
		return "Input"
	case InputDerived:
		return "InputDerived"
	default:
		return "Unknown"
	}
}

// Meta carries the execution metadata a backend consults: whether the
// node's value should be inlined at its use site rather than materialized,
// whether it can reuse another node's storage in place, and a free-form
// backend tag.
type Meta struct {
	Inlined       bool
	InPlaceTarget NodeID
	HasInPlace    bool
	Tag           string
}

// Operator is the closed interface every operator variant implements. New
// variants are added only inside the ops package — this is a closed tagged
// union dispatched through an interface, not open subclassing (see the
// design notes on a heterogeneous operator family).
type Operator interface {
	// Name is the operator's stable, human-readable tag (e.g. "Add").
	Name() string
	// Parents lists differentiable tensor inputs.
	Parents() []NodeID
	// Arguments lists non-differentiable tensor inputs (e.g. Select's cond).
	Arguments() []NodeID
	// InferShape computes this node's shape from its parents' shapes.
	InferShape(g *Graph) (tshape.Shape, error)
	// InferDType computes this node's dtype from its parents' dtypes.
	InferDType(g *Graph) (dtype.Type, error)
	// InferKind propagates Constant/Input-derivedness from parents.
	InferKind(g *Graph) Kind
	// Gradient returns the local gradient message to propagate to the
	// parent at parentIdx, given the incoming message at node self.
	Gradient(g *Graph, self NodeID, msg NodeID, parentIdx int) (NodeID, error)
	// StructurallyEqual backs common-subexpression discovery. Commutative
	// operators implement multiset-of-parents equality.
	StructurallyEqual(other Operator) bool
	// Relocate rewrites every NodeID the operator carries (parents,
	// arguments, and any operator-specific indices) through remap — the
	// copy-to-another-arena rule used by compaction.
	Relocate(remap func(NodeID) NodeID) Operator
}

// Node is one arena record. The graph exclusively owns all nodes; a *Node
// returned to a caller points at the live record and is read-only by
// convention (callers mutate the graph only through its methods).
type Node struct {
	ID        NodeID
	Name      string
	Group     *Group
	Device    string
	Kind      Kind
	DType     dtype.Type
	Shape     tshape.Shape
	Op        Operator
	Children  []NodeID
	GradLevel int
	Active    bool
	Meta      Meta
}
