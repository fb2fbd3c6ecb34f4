// Package registry implements the process-wide table of shared variables:
// opaque ids backed only by a shape and a dtype, never a value (the core
// never owns device memory — see the project's Non-goals). It is
// deliberately the only piece of mutable global-ish state in the module,
// isolated behind an explicit *Registry so independent tests (and
// independent graphs within one process) can run against independent
// tables, the way the design notes call for isolating "global mutable
// state... behind a context passed at graph creation."
package registry

import (
	"sync"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/tshape"
	"gopkg.in/src-d/go-errors.v1"
)

// ID is a small nonnegative integer, unique for the lifetime of a Registry.
type ID uint64

// ErrUnknownID is raised when looking up an id the registry never issued.
var ErrUnknownID = errors.NewKind("shared variable %d is not registered")

// ErrAlreadyRegistered is raised when Register is called twice for the same id.
var ErrAlreadyRegistered = errors.NewKind("shared variable %d is already registered")

// Entry describes a shared variable's immutable identity.
type Entry struct {
	ID    ID
	Shape tshape.Shape
	DType dtype.Type
}

// Registry is a concurrency-safe id -> Entry table. Multiple compiled
// graphs may reference the same ids from different goroutines (the core
// only ever reads shape/dtype; it never serializes access to the
// underlying value — that remains the backend's responsibility per the
// Concurrency & Resource Model).
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]Entry
	next    ID
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[ID]Entry)}
}

// Declare allocates and registers a fresh id for a shared variable of the
// given shape and dtype.
func (r *Registry) Declare(shape tshape.Shape, dt dtype.Type) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.entries[id] = Entry{ID: id, Shape: shape, DType: dt}
	return id
}

// Register records an externally-chosen id. It fails if the id is already
// registered, since shape and dtype are immutable for an id's lifetime.
func (r *Registry) Register(id ID, shape tshape.Shape, dt dtype.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return ErrAlreadyRegistered.New(id)
	}
	if id >= r.next {
		r.next = id + 1
	}
	r.entries[id] = Entry{ID: id, Shape: shape, DType: dt}
	return nil
}

// Lookup returns the Entry for id.
func (r *Registry) Lookup(id ID) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrUnknownID.New(id)
	}
	return e, nil
}
