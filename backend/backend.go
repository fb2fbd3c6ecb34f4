// Package backend defines the compiled handle a concrete execution backend
// consumes: Compile walks an optimized graph once and produces an opaque,
// reusable *Compiled carrying per-node execution hints, the shared-variable
// table, and the input-id-to-positional-index map — adapted from the
// teacher's driver.Driver/driver.Connector/driver.Conn layering (Compile
// plays OpenConnector, *Compiled plays *driver.Conn, Metadata plays
// driver.Stmt). The core never generates or runs code itself; everything
// here is metadata a downstream executor interprets.
package backend

import (
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/metadiff/core/registry"
	"github.com/mitchellh/hashstructure"
	uuid "github.com/satori/go.uuid"
	msgpack "gopkg.in/vmihailenco/msgpack.v2"
)

// NodeMeta mirrors graph.Meta for the subset a backend needs once a graph
// is frozen: whether the node's value is inlined at its use site, whether
// it may reuse another node's storage in place, and a free-form tag.
type NodeMeta struct {
	Inlined       bool
	HasInPlace    bool
	InPlaceTarget graph.NodeID
	Tag           string
}

// frozenPayload is the exact shape persisted to the bolt bucket — kept
// separate from Compiled so the in-memory handle can carry an identity
// (ID, Hash) that a rehydrated one derives differently.
type frozenPayload struct {
	Metas       []NodeMeta
	SharedTable map[registry.ID]graph.NodeID
	InputIndex  map[graph.NodeID]int
	Outputs     []graph.NodeID
	Updates     []graph.Update
}

// Compiled is a bound, reusable handle over one optimized graph, keyed by
// a fresh connection-like id the way driver.Conn is keyed by a connection
// id from the teacher's catalog.
type Compiled struct {
	ID   uuid.UUID
	Hash uint64

	payload frozenPayload
}

var bucketName = []byte("metadiff_compiled")

// Compile walks g once in arena order and produces a Compiled handle. g is
// expected to already have been optimized by rewrite.Optimize — Compile
// itself performs no rewriting, only metadata extraction.
func Compile(g *graph.Graph, inputs, outputs []graph.NodeID, updates []graph.Update) (*Compiled, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("backend: allocating compile id: %w", err)
	}

	metas := make([]NodeMeta, g.Len())
	sharedTable := map[registry.ID]graph.NodeID{}
	signature := make([]string, 0, g.Len())

	for i := 0; i < g.Len(); i++ {
		nid := graph.NodeID(i)
		n, err := g.Node(nid)
		if err != nil {
			return nil, err
		}
		metas[i] = NodeMeta{
			Inlined:       n.Meta.Inlined,
			HasInPlace:    n.Meta.HasInPlace,
			InPlaceTarget: n.Meta.InPlaceTarget,
			Tag:           n.Meta.Tag,
		}
		if n.Op == nil {
			continue
		}
		if shared, ok := n.Op.(ops.Shared); ok {
			sharedTable[shared.ID] = nid
		}
		signature = append(signature, fmt.Sprintf("%d|%s|%v|%v|%v", i, n.Op.Name(), n.Op.Parents(), n.Op.Arguments(), n.Active))
	}

	inputIndex := make(map[graph.NodeID]int, len(inputs))
	for idx, in := range inputs {
		inputIndex[in] = idx
	}

	if missing, err := firstUncoveredLeafInput(g, outputs, updates, inputIndex); err != nil {
		return nil, err
	} else if missing != -1 {
		return nil, graph.NewError(graph.KindMissingRequiredInput,
			graph.Detail{NodeIDs: []graph.NodeID{missing}, Operator: "Compile"},
			"leaf input node %d is reachable from the requested outputs but not covered by the provided inputs", missing)
	}

	hash, err := hashstructure.Hash(signature, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: hashing graph signature: %w", err)
	}

	return &Compiled{
		ID:   id,
		Hash: hash,
		payload: frozenPayload{
			Metas:       metas,
			SharedTable: sharedTable,
			InputIndex:  inputIndex,
			Outputs:     append([]graph.NodeID(nil), outputs...),
			Updates:     append([]graph.Update(nil), updates...),
		},
	}, nil
}

// firstUncoveredLeafInput walks backward from outputs and every update's
// replacement, and reports the id of the first leaf ops.Input node it finds
// that inputIndex does not cover — the MissingRequiredInput condition
// (spec §7 / §6): a leaf Input is unreachable from the caller-supplied
// input set. Shared variables report graph.Input too but are resolved via
// the shared-variable table rather than positional inputs, so only bare
// ops.Input leaves count here. Returns -1 if every reachable leaf input is
// covered.
func firstUncoveredLeafInput(g *graph.Graph, outputs []graph.NodeID, updates []graph.Update, inputIndex map[graph.NodeID]int) (graph.NodeID, error) {
	seen := map[graph.NodeID]bool{}
	var stack []graph.NodeID
	for _, o := range outputs {
		stack = append(stack, o)
	}
	for _, u := range updates {
		stack = append(stack, u.Replacement)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		n, err := g.Node(id)
		if err != nil {
			return -1, err
		}
		if n.Op == nil {
			continue
		}
		if _, ok := n.Op.(ops.Input); ok {
			if _, covered := inputIndex[id]; !covered {
				return id, nil
			}
		}
		for _, p := range n.Op.Parents() {
			if !seen[p] {
				stack = append(stack, p)
			}
		}
		for _, a := range n.Op.Arguments() {
			if !seen[a] {
				stack = append(stack, a)
			}
		}
	}
	return -1, nil
}

// Metadata returns the per-node execution hints, the shared-variable table,
// and the input-id-to-positional-index map, in that order.
func (c *Compiled) Metadata() ([]NodeMeta, map[registry.ID]graph.NodeID, map[graph.NodeID]int) {
	return c.payload.Metas, c.payload.SharedTable, c.payload.InputIndex
}

// Outputs returns the output node ids this handle was compiled against.
func (c *Compiled) Outputs() []graph.NodeID { return c.payload.Outputs }

// Updates returns the persistent updates this handle was compiled against.
func (c *Compiled) Updates() []graph.Update { return c.payload.Updates }

// CacheKey is the bucket key Freeze stores under and Open looks up by —
// the graph's structural hash, hex-encoded.
func (c *Compiled) CacheKey() string { return fmt.Sprintf("%016x", c.Hash) }

// Freeze msgpack-encodes the compiled metadata into db's compile-cache
// bucket, keyed by CacheKey. Calling Freeze twice for the same graph is
// idempotent — it simply overwrites the stored entry.
func (c *Compiled) Freeze(db *bolt.DB) error {
	raw, err := msgpack.Marshal(c.payload)
	if err != nil {
		return fmt.Errorf("backend: encoding compiled metadata: %w", err)
	}
	key := []byte(c.CacheKey())
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	})
}

// Open rehydrates a previously frozen Compiled from db's compile-cache
// bucket under key, returning an error if no entry is stored there. The
// rehydrated handle gets a fresh ID (connection identity is not itself
// persisted) but the same Hash, recovered from key.
func Open(db *bolt.DB, key string) (*Compiled, error) {
	var raw []byte
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("backend: no compiled entry cached under key %q", key)
	}

	var payload frozenPayload
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("backend: decoding compiled metadata: %w", err)
	}

	var hash uint64
	if _, err := fmt.Sscanf(key, "%016x", &hash); err != nil {
		return nil, fmt.Errorf("backend: parsing cache key %q: %w", key, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("backend: allocating rehydrated id: %w", err)
	}

	return &Compiled{ID: id, Hash: hash, payload: payload}, nil
}
