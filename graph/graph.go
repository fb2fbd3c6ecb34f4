package graph

import (
	"github.com/metadiff/core/policy"
	"github.com/metadiff/core/registry"
	"github.com/sirupsen/logrus"
)

// Graph is the arena-allocated DAG of operator nodes. It is not safe for
// concurrent mutation — per the concurrency model, a graph is mutable only
// by its owning goroutine.
type Graph struct {
	nodes    []*Node
	root     *Group

	currentGroup *Group
	gradLevel    int
	device       string

	config   Config
	registry *registry.Registry
	observer policy.Observer
	logger   *logrus.Logger

	temporaryConstant []bool

	persistentUpdates []Update
}

// New builds an empty graph against the given configuration and shared
// variable registry.
func New(cfg Config, reg *registry.Registry, opts ...Option) *Graph {
	root := newRootGroup()
	g := &Graph{
		root:         root,
		currentGroup: root,
		device:       cfg.Device,
		config:       cfg,
		registry:     reg,
		observer:     policy.NoopObserver{},
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the graph's configuration.
func (g *Graph) Config() Config { return g.config }

// Registry returns the graph's shared-variable registry.
func (g *Graph) Registry() *registry.Registry { return g.registry }

// Observer returns the graph's policy observer.
func (g *Graph) Observer() policy.Observer { return g.observer }

// Logger returns the graph's diagnostic logger.
func (g *Graph) Logger() *logrus.Logger { return g.logger }

// Len returns the number of nodes ever appended (including inactive ones).
func (g *Graph) Len() int { return len(g.nodes) }

// at validates and returns the node at id.
func (g *Graph) at(id NodeID) (*Node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, NewError(KindInvalidArguments, Detail{NodeIDs: []NodeID{id}}, "node id %d out of range", id)
	}
	return g.nodes[id], nil
}

// Node returns the node at id. The pointer refers to the live arena record,
// not a copy; callers treat it as read-only.
func (g *Graph) Node(id NodeID) (*Node, error) { return g.at(id) }

// MustNode panics if id is invalid; used only where the caller has already
// validated id against the same graph (e.g. inside operator Gradient
// implementations acting on their own parent list).
func (g *Graph) MustNode(id NodeID) *Node {
	n, err := g.at(id)
	if err != nil {
		panic(err)
	}
	return n
}

// ChildrenOf returns the (possibly empty) children back-reference list of
// the node at id.
func (g *Graph) ChildrenOf(id NodeID) []NodeID {
	n, err := g.at(id)
	if err != nil {
		return nil
	}
	return n.Children
}

// EffectiveKind returns the node's Kind, except that a node currently
// poisoned by the differentiation engine's temporary-constant flag is
// reported as Constant — so operator construction during autodiff treats
// out-of-flow nodes as constants without having to special-case every
// InferKind implementation.
func (g *Graph) EffectiveKind(id NodeID) Kind {
	n, err := g.at(id)
	if err != nil {
		return Constant
	}
	if int(id) < len(g.temporaryConstant) && g.temporaryConstant[id] {
		return Constant
	}
	return n.Kind
}

// IsTemporaryConstant reports whether id is currently poisoned.
func (g *Graph) IsTemporaryConstant(id NodeID) bool {
	return int(id) < len(g.temporaryConstant) && g.temporaryConstant[id]
}

// SetTemporaryConstant poisons or unpoisons id for the duration of a
// differentiate() call.
func (g *Graph) SetTemporaryConstant(id NodeID, v bool) {
	for len(g.temporaryConstant) <= int(id) {
		g.temporaryConstant = append(g.temporaryConstant, false)
	}
	g.temporaryConstant[id] = v
}

// ClearTemporaryConstants resets every poisoning flag. It is always called
// on every exit path of autodiff.Differentiate, successful or not.
func (g *Graph) ClearTemporaryConstants() {
	for i := range g.temporaryConstant {
		g.temporaryConstant[i] = false
	}
}

// PushGradLevel increments the graph's current gradient level and returns
// the previous one, so newly appended nodes are tagged one level deeper
// (used by autodiff.Differentiate; nested calls climb further).
func (g *Graph) PushGradLevel() int {
	prev := g.gradLevel
	g.gradLevel++
	return prev
}

// SetGradLevel restores a previously saved gradient level.
func (g *Graph) SetGradLevel(level int) { g.gradLevel = level }

// GradLevel returns the graph's current gradient level.
func (g *Graph) GradLevel() int { return g.gradLevel }

// Append validates and appends a new node built from op, its parents and
// arguments. It performs shape/dtype/kind inference and wires back-
// reference children lists; it never mutates the arena on error. Per the
// design notes, every precondition (including any wrapper nodes such as an
// implicit Cast or Broadcast) must already have been checked and
// constructed by the caller — Append itself only re-validates shape/dtype
// inference, which cannot fail once the caller has honored that contract.
func (g *Graph) Append(op Operator, parents, arguments []NodeID) (NodeID, error) {
	for _, p := range parents {
		if _, err := g.at(p); err != nil {
			return -1, err
		}
	}
	for _, a := range arguments {
		if _, err := g.at(a); err != nil {
			return -1, err
		}
	}

	shape, err := op.InferShape(g)
	if err != nil {
		return -1, err
	}
	dt, err := op.InferDType(g)
	if err != nil {
		return -1, err
	}
	kind := op.InferKind(g)

	id := NodeID(len(g.nodes))
	node := &Node{
		ID:        id,
		Name:      op.Name(),
		Group:     g.currentGroup,
		Device:    g.device,
		Kind:      kind,
		DType:     dt,
		Shape:     shape,
		Op:        op,
		GradLevel: g.gradLevel,
		Active:    true,
	}
	g.nodes = append(g.nodes, node)

	for _, p := range parents {
		g.nodes[p].Children = append(g.nodes[p].Children, id)
	}
	for _, a := range arguments {
		g.nodes[a].Children = append(g.nodes[a].Children, id)
	}
	return id, nil
}

// SetOperator replaces a node's operator in place, used by rewrite passes
// (constant folding, identity elimination, global remap) that need to
// rewrite a node's formula without changing its identity. The caller is
// responsible for the new operator's shape/dtype/kind agreeing with the
// node's existing fields — rewrite passes only ever install operators
// proven equivalent to the one being replaced.
func (g *Graph) SetOperator(id NodeID, op Operator) error {
	n, err := g.at(id)
	if err != nil {
		return err
	}
	n.Op = op
	return nil
}

// SetMeta overwrites a node's execution metadata, used by rewrite passes
// that mark a node inlineable or reusable-in-place for the backend.
func (g *Graph) SetMeta(id NodeID, m Meta) error {
	n, err := g.at(id)
	if err != nil {
		return err
	}
	n.Meta = m
	return nil
}

// IsActive reports whether the node at id is still active.
func (g *Graph) IsActive(id NodeID) bool {
	n, err := g.at(id)
	return err == nil && n.Active
}

// RebuildChildren recomputes every node's Children list from scratch by
// re-scanning every active node's current Parents()/Arguments(). Rewrite
// passes call this after bulk-relocating operators (e.g. a global
// duplicate-elimination remap) rather than hand-patching back-references.
func (g *Graph) RebuildChildren() {
	for _, n := range g.nodes {
		n.Children = nil
	}
	for _, n := range g.nodes {
		if n.Op == nil || !n.Active {
			continue
		}
		for _, p := range n.Op.Parents() {
			if pn, err := g.at(p); err == nil {
				pn.Children = append(pn.Children, n.ID)
			}
		}
		for _, a := range n.Op.Arguments() {
			if an, err := g.at(a); err == nil {
				an.Children = append(an.Children, n.ID)
			}
		}
	}
}

// Relocate builds a fresh, compacted Graph containing only the nodes
// reachable from keep (deduplicated, order-preserving), remapping every
// NodeID they carry. It returns the new graph plus the old-to-new id for
// each entry in keep, in order.
func (g *Graph) Relocate(keep []NodeID) (*Graph, []NodeID, error) {
	live := map[NodeID]bool{}
	var order []NodeID
	var mark func(id NodeID)
	mark = func(id NodeID) {
		if live[id] {
			return
		}
		live[id] = true
		n, err := g.at(id)
		if err != nil {
			return
		}
		if n.Op != nil {
			for _, p := range n.Op.Parents() {
				mark(p)
			}
			for _, a := range n.Op.Arguments() {
				mark(a)
			}
		}
		order = append(order, id)
	}
	for _, id := range keep {
		mark(id)
	}

	remap := make(map[NodeID]NodeID, len(order))
	out := New(g.config, g.registry)
	out.gradLevel = g.gradLevel
	for _, old := range order {
		n, err := g.at(old)
		if err != nil {
			return nil, nil, err
		}
		relocatedOp := n.Op
		if relocatedOp != nil {
			relocatedOp = relocatedOp.Relocate(func(id NodeID) NodeID { return remap[id] })
		}
		newID, err := out.Append(relocatedOp, relocatedOp.Parents(), relocatedOp.Arguments())
		if err != nil {
			return nil, nil, err
		}
		out.nodes[newID].Name = n.Name
		out.nodes[newID].Meta = n.Meta
		remap[old] = newID
	}

	newKeep := make([]NodeID, len(keep))
	for i, id := range keep {
		newKeep[i] = remap[id]
	}
	for _, u := range g.persistentUpdates {
		if ns, ok := remap[u.Shared]; ok {
			if nr, ok2 := remap[u.Replacement]; ok2 {
				out.persistentUpdates = append(out.persistentUpdates, Update{Shared: ns, Replacement: nr})
			}
		}
	}
	return out, newKeep, nil
}

// Rename sets a human-readable name on a node, overriding the operator's
// default Name().
func (g *Graph) Rename(id NodeID, name string) error {
	n, err := g.at(id)
	if err != nil {
		return err
	}
	n.Name = name
	return nil
}

// Deactivate marks a node inactive. Rewrite passes use this to logically
// remove nodes; physical removal happens only at compaction.
func (g *Graph) Deactivate(id NodeID) error {
	n, err := g.at(id)
	if err != nil {
		return err
	}
	n.Active = false
	return nil
}

// Nodes returns every node in arena order, live or not. Callers must treat
// the slice as read-only.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// RemoveChild deletes one occurrence of child from parent's children list
// (used by rewrite passes rewiring a duplicate's children onto its
// survivor).
func (g *Graph) RemoveChild(parent, child NodeID) error {
	n, err := g.at(parent)
	if err != nil {
		return err
	}
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return nil
		}
	}
	return nil
}

// AddChild appends child to parent's children list.
func (g *Graph) AddChild(parent, child NodeID) error {
	n, err := g.at(parent)
	if err != nil {
		return err
	}
	n.Children = append(n.Children, child)
	return nil
}

// IsTopologicallySorted reports whether every node's parents/arguments
// precede it in the arena — the central IR invariant.
func (g *Graph) IsTopologicallySorted() bool {
	for i, n := range g.nodes {
		if n.Op == nil {
			continue
		}
		for _, p := range n.Op.Parents() {
			if int(p) >= i {
				return false
			}
		}
		for _, a := range n.Op.Arguments() {
			if int(a) >= i {
				return false
			}
		}
	}
	return true
}

// ChildrenInvariantHolds reports whether every node's children list exactly
// matches the set of nodes listing it among their parents/arguments.
func (g *Graph) ChildrenInvariantHolds() bool {
	want := make(map[NodeID]map[NodeID]int)
	for _, n := range g.nodes {
		if n.Op == nil {
			continue
		}
		for _, p := range n.Op.Parents() {
			if want[p] == nil {
				want[p] = map[NodeID]int{}
			}
			want[p][n.ID]++
		}
		for _, a := range n.Op.Arguments() {
			if want[a] == nil {
				want[a] = map[NodeID]int{}
			}
			want[a][n.ID]++
		}
	}
	for _, n := range g.nodes {
		got := map[NodeID]int{}
		for _, c := range n.Children {
			got[c]++
		}
		w := want[n.ID]
		if len(w) != len(got) {
			return false
		}
		for id, count := range w {
			if got[id] != count {
				return false
			}
		}
	}
	return true
}
