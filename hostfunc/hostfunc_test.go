package hostfunc

import (
	"context"
	"reflect"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["v"], nil
	})

	fn, ok := r.Get("echo")
	if !ok {
		t.Fatal("echo not registered")
	}
	got, err := fn(context.Background(), map[string]any{"v": "hi"})
	if err != nil || got != "hi" {
		t.Errorf("echo returned %v, %v", got, err)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unexpected function")
	}
}

func TestRegistryKV(t *testing.T) {
	r := NewRegistry()
	r.RegisterKV(NewKV(DefaultKVConfig()))

	want := []string{"kv_delete", "kv_get", "kv_keys", "kv_set"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	all := r.All()
	if len(all) != 4 {
		t.Fatalf("expected 4 functions, got %d", len(all))
	}
	ctx := context.Background()
	all["kv_set"](ctx, map[string]any{"key": "k", "value": "v"})
	got, _ := all["kv_get"](ctx, map[string]any{"key": "k"})
	if got != "v" {
		t.Errorf("expected v, got %v", got)
	}

	// The snapshot is detached from the registry.
	delete(all, "kv_get")
	if _, ok := r.Get("kv_get"); !ok {
		t.Error("deleting from All() must not affect the registry")
	}
}
