package interpreter

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// registry maps interpreter ids to live interpreters. Scripts hold only the
// id of their owner and resolve it here.
type registry struct {
	mu   sync.RWMutex
	live map[uuid.UUID]*Interpreter
}

var interpreters = &registry{live: make(map[uuid.UUID]*Interpreter)}

func (r *registry) add(in *Interpreter) {
	r.mu.Lock()
	r.live[in.id] = in
	r.mu.Unlock()
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}

func (r *registry) get(id uuid.UUID) (*Interpreter, bool) {
	r.mu.RLock()
	in, ok := r.live[id]
	r.mu.RUnlock()
	return in, ok
}

func (r *registry) list() []*Interpreter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Interpreter, 0, len(r.live))
	for _, in := range r.live {
		out = append(out, in)
	}
	return out
}

// Lookup returns the live interpreter with the given id.
func Lookup(id uuid.UUID) (*Interpreter, bool) {
	return interpreters.get(id)
}

// All returns every interpreter that has not been destroyed.
func All() []*Interpreter {
	return interpreters.list()
}

// DestroyAll destroys every live interpreter in parallel and returns the
// first error.
func DestroyAll() error {
	var g errgroup.Group
	for _, in := range interpreters.list() {
		g.Go(in.Destroy)
	}
	return g.Wait()
}
