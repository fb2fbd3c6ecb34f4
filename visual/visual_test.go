package visual

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/metadiff/core/registry"
	"github.com/metadiff/core/symbolic"
	"github.com/stretchr/testify/require"
)

func TestSerializeToHTMLWritesSelfContainedFile(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), registry.New())
	x, err := ops.Matrix(g, symbolic.Const(2), symbolic.Const(3), dtype.F64)
	require.NoError(t, err)
	y, err := ops.Square(g, x)
	require.NoError(t, err)
	_, err = ops.SumAdd(g, x, y)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.html")
	require.NoError(t, SerializeToHTML(g, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "<html>")
	require.Contains(t, string(raw), "Legend")
}
