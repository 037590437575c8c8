package hostfunc

import (
	"context"
	"sort"
	"sync"
)

// Func is a host function callable from guest code. args is the decoded JSON
// object sent by the guest; the result is encoded back as JSON.
type Func func(ctx context.Context, args map[string]any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a snapshot of the registered functions.
func (r *Registry) All() map[string]Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Func, len(r.funcs))
	for name, fn := range r.funcs {
		out[name] = fn
	}
	return out
}

// RegisterKV exposes kv as kv_get, kv_set, kv_delete and kv_keys.
func (r *Registry) RegisterKV(kv *KV) {
	r.Register("kv_get", kv.Get)
	r.Register("kv_set", kv.Set)
	r.Register("kv_delete", kv.Delete)
	r.Register("kv_keys", kv.Keys)
}
