package wasm

import (
	"os"
	"path/filepath"

	"github.com/caffeineduck/scriptvm/hostfunc"
)

// DefaultModule is the file name looked up in the executable root.
const DefaultModule = "ruby.wasm"

// Option configures an Engine.
type Option func(*config)

type config struct {
	module           string
	args             []string
	env              map[string]string
	memoryLimitPages uint32 // 0 = wazero default (65536 pages = 4GB)
	diskCache        bool
	cacheDir         string
	registry         *hostfunc.Registry
	kv               *hostfunc.KV
}

func defaultConfig() config {
	return config{
		module: DefaultModule,
		args:   []string{"ruby", "-e"},
		env:    map[string]string{"RUBYLIB": libMount},
	}
}

// WithModule sets the module file name, relative to the executable root, or
// an absolute path.
func WithModule(name string) Option {
	return func(c *config) {
		c.module = name
	}
}

// WithArgs sets the argv prefix. The script source is appended as the last
// argument.
func WithArgs(args ...string) Option {
	return func(c *config) {
		c.args = args
	}
}

// WithEnv adds a guest environment variable.
func WithEnv(key, value string) Option {
	return func(c *config) {
		c.env[key] = value
	}
}

// WithMemoryLimit caps guest memory, in 64KiB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithDiskCache persists compiled modules across processes. An empty dir
// uses $XDG_CACHE_HOME/scriptvm or ~/.cache/scriptvm.
func WithDiskCache(dir string) Option {
	return func(c *config) {
		c.diskCache = true
		c.cacheDir = dir
	}
}

// WithRegistry exposes host functions to guests. Each runtime takes a
// snapshot of r when it opens.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithKV exposes kv to guests as kv_get, kv_set, kv_delete and kv_keys.
func WithKV(kv *hostfunc.KV) Option {
	return func(c *config) {
		c.kv = kv
	}
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "scriptvm")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "scriptvm")
	}
	return filepath.Join(os.TempDir(), "scriptvm-cache")
}
