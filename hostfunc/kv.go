package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrKeyRequired   = errors.New("key required")
	ErrKeyTooLarge   = errors.New("key too large")
	ErrValueTooLarge = errors.New("value too large")
	ErrKVFull        = errors.New("kv store full")
)

// KVConfig bounds a KV store. Zero fields mean no limit.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

// DefaultKVConfig allows 256 byte keys, 64 KiB values and 1000 entries.
func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   256,
		MaxValueSize: 64 * 1024,
		MaxEntries:   1000,
	}
}

type KVOption func(*KVConfig)

func WithMaxKeySize(n int) KVOption {
	return func(c *KVConfig) { c.MaxKeySize = n }
}

func WithMaxValueSize(n int) KVOption {
	return func(c *KVConfig) { c.MaxValueSize = n }
}

func WithMaxEntries(n int) KVOption {
	return func(c *KVConfig) { c.MaxEntries = n }
}

// NewKVConfig applies opts on top of DefaultKVConfig.
func NewKVConfig(opts ...KVOption) KVConfig {
	cfg := DefaultKVConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// KV is an in-memory key-value store shared by every script an interpreter
// runs. Values are any JSON value; their size is measured encoded.
type KV struct {
	cfg  KVConfig
	data map[string]any
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig) *KV {
	return &KV{cfg: cfg, data: make(map[string]any)}
}

func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	var req KVGetRequest
	if err := bind(args, &req); err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, ErrKeyRequired
	}

	s.mu.RLock()
	val, exists := s.data[req.Key]
	s.mu.RUnlock()

	if !exists {
		return req.Default, nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, ErrKeyRequired
	}
	val, ok := args["value"]
	if !ok {
		return nil, errors.New("value required")
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrKeyTooLarge, len(key), s.cfg.MaxKeySize)
	}
	if s.cfg.MaxValueSize > 0 {
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		if len(encoded) > s.cfg.MaxValueSize {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(encoded), s.cfg.MaxValueSize)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrKVFull, len(s.data))
	}
	s.data[key] = val
	return "ok", nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	var req KVDeleteRequest
	if err := bind(args, &req); err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, ErrKeyRequired
	}

	s.mu.Lock()
	delete(s.data, req.Key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys returns every key in sorted order.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of entries.
func (s *KV) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func bind(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}
