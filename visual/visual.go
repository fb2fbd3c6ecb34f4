// Package visual renders a graph.Graph to a self-contained HTML file for
// debugging: one record per node plus a parent-position-labelled edge
// list, grouped into clusters by the node's group path. It is the one
// ambient concern built on the standard library alone — no third-party
// HTML templating library appears anywhere in the retrieved reference
// pack, so html/template is the only reasonable choice here.
package visual

import (
	"html/template"
	"os"
	"strings"

	"github.com/metadiff/core/graph"
)

// nodeRecord is one row of the rendered node table.
type nodeRecord struct {
	ID        graph.NodeID
	Name      string
	OpName    string
	GroupPath string
	Kind      string
	DType     string
	Shape     string
	Device    string
	GradLevel int
	ParentIDs []graph.NodeID
	ChildIDs  []graph.NodeID
	Color     string
	NodeShape string
}

// edgeRecord is one parent-position-labelled edge. Constant parents are
// replicated once per consuming child (Replica marks every edge from a
// constant after its first) so a
// heavily reused constant doesn't produce a crossing-heavy fan-in.
type edgeRecord struct {
	From, To graph.NodeID
	Label    string
	Replica  bool
}

// clusterRecord groups node ids sharing a group path for the renderer's
// cluster-parent boxes.
type clusterRecord struct {
	Path  string
	Nodes []graph.NodeID
}

type pageData struct {
	Nodes    []nodeRecord
	Edges    []edgeRecord
	Clusters []clusterRecord
}

// colorShapeFor implements the fixed Kind -> (color, shape) legend: Input
// is rect/green, InputDerived ellipse/blue, Constant circle/yellow,
// ConstantDerived ellipse/orange. Shared variables and persistent updates
// are identified by name/role rather than Kind, so callers needing those
// two legend entries (rect/dark-green, rect/pink) pass isShared/isUpdate.
func colorShapeFor(k graph.Kind, isShared, isUpdateTarget bool) (color, shape string) {
	switch {
	case isUpdateTarget:
		return "pink", "rect"
	case isShared:
		return "darkgreen", "rect"
	case k == graph.Input:
		return "green", "rect"
	case k == graph.InputDerived:
		return "blue", "ellipse"
	case k == graph.Constant:
		return "yellow", "circle"
	default: // graph.ConstantDerived
		return "orange", "ellipse"
	}
}

var pageTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>graph</title>
<style>
body { font-family: sans-serif; font-size: 13px; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 2px 6px; }
.legend span { display: inline-block; width: 12px; height: 12px; margin-right: 4px; vertical-align: middle; }
</style>
</head>
<body>
<h1>Graph</h1>
<h2>Legend</h2>
<ul>
<li><span style="background:green"></span>Input (rect)</li>
<li><span style="background:blue"></span>InputDerived (ellipse)</li>
<li><span style="background:yellow"></span>Constant (circle)</li>
<li><span style="background:orange"></span>ConstantDerived (ellipse)</li>
<li><span style="background:darkgreen"></span>Shared (rect)</li>
<li><span style="background:pink"></span>Update (rect)</li>
</ul>
<h2>Clusters</h2>
<ul>
{{range .Clusters}}<li>{{.Path}}: {{range .Nodes}}{{.}} {{end}}</li>
{{end}}
</ul>
<h2>Nodes</h2>
<table>
<tr><th>id</th><th>name</th><th>op</th><th>group</th><th>kind</th><th>dtype</th><th>shape</th><th>device</th><th>grad_level</th><th>parents</th><th>children</th><th>color</th><th>shape-glyph</th></tr>
{{range .Nodes}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td>{{.OpName}}</td><td>{{.GroupPath}}</td><td>{{.Kind}}</td><td>{{.DType}}</td><td>{{.Shape}}</td><td>{{.Device}}</td><td>{{.GradLevel}}</td>
<td>{{range .ParentIDs}}{{.}} {{end}}</td><td>{{range .ChildIDs}}{{.}} {{end}}</td><td>{{.Color}}</td><td>{{.NodeShape}}</td>
</tr>
{{end}}
</table>
<h2>Edges</h2>
<table>
<tr><th>from</th><th>to</th><th>label</th><th>replica</th></tr>
{{range .Edges}}<tr><td>{{.From}}</td><td>{{.To}}</td><td>{{.Label}}</td><td>{{.Replica}}</td></tr>
{{end}}
</table>
</body>
</html>
`))

// SerializeToHTML renders g to a self-contained HTML description at path.
func SerializeToHTML(g *graph.Graph, path string) error {
	data := buildPageData(g)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return pageTemplate.Execute(f, data)
}

func buildPageData(g *graph.Graph) pageData {
	nodes := g.Nodes()
	data := pageData{}
	clusters := map[string][]graph.NodeID{}

	updateTargets := map[graph.NodeID]bool{}
	for _, u := range g.Updates() {
		updateTargets[u.Shared] = true
	}

	replicaSeen := map[graph.NodeID]bool{}
	for _, n := range nodes {
		if n.Op == nil {
			continue
		}
		isSharedVar := strings.HasPrefix(n.Op.Name(), "Shared[")
		color, shape := colorShapeFor(n.Kind, isSharedVar, updateTargets[n.ID])

		groupPath := "_root"
		if n.Group != nil {
			groupPath = n.Group.Path()
		}
		clusters[groupPath] = append(clusters[groupPath], n.ID)

		rec := nodeRecord{
			ID:        n.ID,
			Name:      n.Name,
			OpName:    n.Op.Name(),
			GroupPath: groupPath,
			Kind:      n.Kind.String(),
			DType:     n.DType.String(),
			Shape:     n.Shape.String(),
			Device:    n.Device,
			GradLevel: n.GradLevel,
			ParentIDs: n.Op.Parents(),
			ChildIDs:  n.Children,
			Color:     color,
			NodeShape: shape,
		}
		data.Nodes = append(data.Nodes, rec)

		for idx, p := range n.Op.Parents() {
			label := parentLabel(idx)
			replica := false
			if pn, err := g.Node(p); err == nil && pn.Kind == graph.Constant {
				if replicaSeen[p] {
					replica = true
				}
				replicaSeen[p] = true
			}
			data.Edges = append(data.Edges, edgeRecord{From: p, To: n.ID, Label: label, Replica: replica})
		}
		for idx, a := range n.Op.Arguments() {
			data.Edges = append(data.Edges, edgeRecord{From: a, To: n.ID, Label: "arg" + parentLabel(idx)})
		}
	}

	for path, ids := range clusters {
		data.Clusters = append(data.Clusters, clusterRecord{Path: path, Nodes: ids})
	}
	return data
}

func parentLabel(idx int) string {
	const labels = "abcdefghijklmnopqrstuvwxyz"
	if idx < len(labels) {
		return string(labels[idx])
	}
	return "p"
}
