// Package wasm runs scripts in a WASI build of the interpreter, such as
// ruby.wasm, on the wazero runtime.
//
// The module is compiled once per Interpreter and instantiated fresh for
// every script. The working directory is the guest's root and the library
// path is mounted read-only at /lib.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/scriptvm/hostfunc"
	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

const libMount = "/lib"

// Engine opens wazero runtimes. It is safe to share between interpreters.
type Engine struct {
	cfg config
}

// New returns an Engine configured by opts.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string { return "wasm" }

// Open compiles the module found in the executable root.
func (e *Engine) Open(ctx context.Context, paths interpreter.Paths, sink logsink.Sink) (interpreter.Runtime, error) {
	logger := log.WithFunc("wasm.Open")

	modulePath := e.cfg.module
	if !filepath.IsAbs(modulePath) {
		modulePath = filepath.Join(paths.ExecRoot, modulePath)
	}
	binary, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	var cache wazero.CompilationCache
	if e.cfg.diskCache {
		dir := e.cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		if cache, err = wazero.NewCompilationCacheWithDir(dir); err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if e.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(e.cfg.memoryLimitPages)
	}

	r := &Runtime{
		runtime:  wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cache:    cache,
		paths:    paths,
		cfg:      e.cfg,
		registry: e.registry(),
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
		r.Close(ctx) //nolint:errcheck
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	start := time.Now()
	if r.compiled, err = r.runtime.CompileModule(ctx, binary); err != nil {
		r.Close(ctx) //nolint:errcheck
		return nil, fmt.Errorf("compile %s: %w", filepath.Base(modulePath), err)
	}

	logger.Infof(ctx, "compiled %s in %v", modulePath, time.Since(start))
	return r, nil
}

// registry builds the runtime's own registry: the built-ins, then the KV
// functions, then a snapshot of the configured registry, which may override
// either. The configured registry is never modified.
func (e *Engine) registry() *hostfunc.Registry {
	r := hostfunc.NewRegistry()
	r.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})
	if e.cfg.kv != nil {
		r.RegisterKV(e.cfg.kv)
	}
	if e.cfg.registry != nil {
		for name, fn := range e.cfg.registry.All() {
			r.Register(name, fn)
		}
	}
	return r
}

// Runtime is one compiled module bound to an interpreter's paths.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	paths    interpreter.Paths
	cfg      config
	registry *hostfunc.Registry

	mu     sync.Mutex
	closed bool
}

// Execute instantiates the module with source as its last argument and runs
// it to completion. The exit code is the guest's proc_exit code, or 0 when
// it returns normally.
func (r *Runtime) Execute(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, r.registry, stdinWriter, stderr)

	fsConfig := wazero.NewFSConfig().
		WithDirMount(r.paths.WorkDir, "/").
		WithReadOnlyDirMount(r.paths.LibPath, libMount)

	args := append(append([]string{}, r.cfg.args...), source)
	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs(args...).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")
	for k, v := range r.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, moduleConfig)
	stdinWriter.Close()
	protocol.Flush()
	if mod != nil {
		mod.Close(ctx) //nolint:errcheck
	}

	if err == nil {
		return interpreter.ExitSuccess, nil
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.ExitCode()), nil
	}
	return interpreter.ExitFailure, fmt.Errorf("execute: %w", err)
}

// Close releases the compiled module, the wazero runtime and the cache.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
