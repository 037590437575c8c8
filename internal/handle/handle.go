// Package handle tracks the lifetime of an exclusively-owned native resource.
package handle

import (
	"errors"
	"sync"
)

// ErrReleased is returned by Use once the handle has been released.
var ErrReleased = errors.New("handle released")

// Handle owns a value of type T until Release is called. Use and Release are
// mutually exclusive: a release never happens while a Use callback runs.
type Handle[T any] struct {
	mu      sync.RWMutex
	value   T
	live    bool
	release func(T) error
}

// New wraps value. release may be nil when the value holds nothing to free.
func New[T any](value T, release func(T) error) *Handle[T] {
	return &Handle[T]{value: value, live: true, release: release}
}

// Use runs fn with the owned value. It fails with ErrReleased after Release.
func (h *Handle[T]) Use(fn func(T) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.live {
		return ErrReleased
	}
	return fn(h.value)
}

// Live reports whether the handle still owns its value.
func (h *Handle[T]) Live() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Release frees the value exactly once. Later calls return nil and do nothing.
func (h *Handle[T]) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.live {
		return nil
	}
	h.live = false

	var zero T
	value := h.value
	h.value = zero

	if h.release == nil {
		return nil
	}
	return h.release(value)
}
