package backend

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/metadiff/core/registry"
	"github.com/stretchr/testify/require"
)

func newGraph() *graph.Graph {
	return graph.New(graph.DefaultConfig(), registry.New())
}

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compiled.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCompileCapturesSharedAndInputTable(t *testing.T) {
	reg := registry.New()
	g := graph.New(graph.DefaultConfig(), reg)

	x, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	id := reg.Declare(g.MustNode(x).Shape, dtype.F64)
	sv, err := ops.SharedVariable(g, id)
	require.NoError(t, err)
	y, err := ops.SumAdd(g, x, sv)
	require.NoError(t, err)

	c, err := Compile(g, []graph.NodeID{x}, []graph.NodeID{y}, nil)
	require.NoError(t, err)

	metas, sharedTable, inputIndex := c.Metadata()
	require.Len(t, metas, g.Len())
	require.Equal(t, sv, sharedTable[id])
	require.Equal(t, 0, inputIndex[x])
}

func TestFreezeAndOpenRoundTrip(t *testing.T) {
	g := newGraph()
	x, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	y, err := ops.Square(g, x)
	require.NoError(t, err)

	c, err := Compile(g, []graph.NodeID{x}, []graph.NodeID{y}, nil)
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, c.Freeze(db))

	reopened, err := Open(db, c.CacheKey())
	require.NoError(t, err)
	require.Equal(t, c.Hash, reopened.Hash)
	require.Equal(t, c.Outputs(), reopened.Outputs())

	metas, _, inputIndex := reopened.Metadata()
	require.Len(t, metas, g.Len())
	require.Equal(t, 0, inputIndex[x])
}

func TestCompileRaisesMissingRequiredInput(t *testing.T) {
	g := newGraph()
	x, err := ops.Scalar(g, dtype.F64)
	require.NoError(t, err)
	y, err := ops.Square(g, x)
	require.NoError(t, err)

	_, err = Compile(g, nil, []graph.NodeID{y}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, graph.KindMissingRequiredInput))
}

func TestOpenMissingKeyErrors(t *testing.T) {
	db := openTestDB(t)
	_, err := Open(db, "deadbeefdeadbeef")
	require.Error(t, err)
}
