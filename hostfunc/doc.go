// Package hostfunc provides functions that guest scripts can call on the
// host.
//
// A guest calls a function by writing a framed JSON request on its stderr;
// the engine looks the name up in a [Registry], runs it and writes the JSON
// response to the guest's stdin. The engine/wasm package implements that
// side.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("now", func(ctx context.Context, args map[string]any) (any, error) {
//	    return time.Now().Unix(), nil
//	})
//
// # Key-Value Store
//
// [KV] is an in-memory store bounded by [KVConfig]. It is shared across
// every script an interpreter runs, so scripts can hand state to later ones.
//
//	kv := hostfunc.NewKV(hostfunc.NewKVConfig(hostfunc.WithMaxEntries(100)))
//	registry.RegisterKV(kv)
package hostfunc
