package graph

import "strings"

// RootGroupName is the name of the group tree's root.
const RootGroupName = "_root"

// GroupSeparator splits a group path into segments.
const GroupSeparator = "/"

// Group is one node in the append-only group namespace tree used to
// organize emission and visualization. Groups never affect semantics.
type Group struct {
	Name     string
	Parent   *Group
	children map[string]*Group
}

func newRootGroup() *Group {
	return &Group{Name: RootGroupName, children: map[string]*Group{}}
}

// Path renders the full "/"-joined path from the root to this group.
func (gr *Group) Path() string {
	if gr.Parent == nil {
		return gr.Name
	}
	return gr.Parent.Path() + GroupSeparator + gr.Name
}

// child returns (creating if absent) the named immediate child of gr.
func (gr *Group) child(name string) *Group {
	if gr.children == nil {
		gr.children = map[string]*Group{}
	}
	c, ok := gr.children[name]
	if !ok {
		c = &Group{Name: name, Parent: gr, children: map[string]*Group{}}
		gr.children[name] = c
	}
	return c
}

// getGroup walks/creates every intermediate segment of a "/"-separated
// path starting at gr.
func (gr *Group) getGroup(path string) *Group {
	path = strings.Trim(path, GroupSeparator)
	if path == "" {
		return gr
	}
	cur := gr
	for _, seg := range strings.Split(path, GroupSeparator) {
		if seg == "" || seg == RootGroupName {
			continue
		}
		cur = cur.child(seg)
	}
	return cur
}

// SetGroup makes the group at path the current group for subsequent
// factories called on g.
func (g *Graph) SetGroup(path string) {
	g.currentGroup = g.root.getGroup(path)
}

// ResetGroup returns the current group to the root.
func (g *Graph) ResetGroup() {
	g.currentGroup = g.root
}

// GetGroup returns the group at path, creating intermediate groups on
// demand, without changing the current group.
func (g *Graph) GetGroup(path string) *Group {
	return g.root.getGroup(path)
}

// CurrentGroup returns the group subsequent factories will be tagged with.
func (g *Graph) CurrentGroup() *Group {
	return g.currentGroup
}
