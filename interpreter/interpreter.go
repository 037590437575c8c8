package interpreter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/caffeineduck/scriptvm/internal/handle"
	"github.com/caffeineduck/scriptvm/internal/lock"
	"github.com/caffeineduck/scriptvm/logsink"
)

const lockFileName = ".scriptvm.lock"

// Interpreter is one live binding to a native runtime. All executions run on
// a single worker goroutine in FIFO order.
type Interpreter struct {
	id      uuid.UUID
	paths   Paths
	cfg     config
	out     *output
	runtime *handle.Handle[Runtime]
	lock    *lock.Lock

	// ctx is handed to the runtime. It is never cancelled while a script
	// runs: executions are not preemptible.
	ctx context.Context

	queue *queue
	done  chan struct{}
	live  atomic.Bool
	state atomic.Int32

	errMu   sync.Mutex
	lastErr error

	destroyOnce sync.Once
	destroyErr  error
}

// Create acquires a runtime through the configured engine and starts the
// worker. It fails with ErrInitialization when a path does not exist, no
// engine is configured or the engine cannot open; nothing is left running in
// that case.
func Create(workDir, execRoot, libPath string, sink logsink.Sink, opts ...Option) (*Interpreter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	logger := log.WithFunc("interpreter.Create")

	paths, err := resolvePaths(workDir, execRoot, libPath)
	if err != nil {
		return nil, err
	}
	if cfg.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrInitialization)
	}

	in := &Interpreter{
		id:    uuid.New(),
		paths: paths,
		cfg:   cfg,
		out:   newOutput(sink, cfg.stdout, cfg.stderr, cfg.logging),
		ctx:   ctx,
		queue: newQueue(),
		done:  make(chan struct{}),
	}

	if cfg.exclusive {
		in.lock = lock.New(filepath.Join(paths.WorkDir, lockFileName))
		ok, err := in.lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: lock working directory: %w", ErrInitialization, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: working directory %s is in use by another interpreter", ErrInitialization, paths.WorkDir)
		}
	}

	rt, err := cfg.engine.Open(ctx, paths, in.out)
	if err != nil {
		in.unlock()
		return nil, fmt.Errorf("%w: open %s engine: %w", ErrInitialization, cfg.engine.Name(), err)
	}
	in.runtime = handle.New(rt, func(rt Runtime) error {
		return rt.Close(context.Background())
	})

	in.live.Store(true)
	in.state.Store(int32(StateIdle))
	interpreters.add(in)

	go in.run()

	logger.Infof(ctx, "interpreter %s started with %s engine in %s", in.id, cfg.engine.Name(), paths.WorkDir)
	return in, nil
}

func resolvePaths(workDir, execRoot, libPath string) (Paths, error) {
	var paths Paths
	for _, p := range []struct {
		name string
		in   string
		out  *string
	}{
		{"working directory", workDir, &paths.WorkDir},
		{"executable root", execRoot, &paths.ExecRoot},
		{"library path", libPath, &paths.LibPath},
	} {
		if p.in == "" {
			return Paths{}, fmt.Errorf("%w: %s is empty", ErrInitialization, p.name)
		}
		abs, err := filepath.Abs(p.in)
		if err != nil {
			return Paths{}, fmt.Errorf("%w: %s %q: %w", ErrInitialization, p.name, p.in, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return Paths{}, fmt.Errorf("%w: %s: %w", ErrInitialization, p.name, err)
		}
		if !info.IsDir() {
			return Paths{}, fmt.Errorf("%w: %s %s is not a directory", ErrInitialization, p.name, abs)
		}
		*p.out = abs
	}
	return paths, nil
}

// ID returns the interpreter's unique id.
func (in *Interpreter) ID() uuid.UUID { return in.id }

// Paths returns the resolved filesystem roots.
func (in *Interpreter) Paths() Paths { return in.paths }

// State reports what the worker is doing.
func (in *Interpreter) State() State { return State(in.state.Load()) }

// Live reports whether the interpreter still accepts submissions.
func (in *Interpreter) Live() bool { return in.live.Load() }

// Pending returns the number of queued submissions that have not started.
func (in *Interpreter) Pending() int { return in.queue.len() }

// Enqueue appends script to the execution queue and returns immediately.
// onComplete, which may be nil, is called exactly once with the exit code on
// the worker goroutine, unless the submission is discarded by Destroy.
func (in *Interpreter) Enqueue(script *Script, onComplete func(exitCode int)) error {
	return in.enqueue(&submission{script: script, onComplete: onComplete})
}

// Submit enqueues script and returns a channel that receives its exit code
// and is then closed. If the submission is discarded during shutdown the
// channel is closed without a value.
func (in *Interpreter) Submit(script *Script) (<-chan int, error) {
	result := make(chan int, 1)
	err := in.enqueue(&submission{
		script: script,
		onComplete: func(exitCode int) {
			result <- exitCode
			close(result)
		},
		onDrop: func() { close(result) },
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (in *Interpreter) enqueue(sub *submission) error {
	if !in.live.Load() {
		return ErrInvalidState
	}
	if sub.script == nil {
		return fmt.Errorf("%w: nil script", ErrInvalidScript)
	}
	if sub.script.owner != in.id {
		return fmt.Errorf("%w: script %s belongs to another interpreter", ErrInvalidScript, sub.script.id)
	}
	if err := sub.script.acquire(); err != nil {
		return err
	}
	if err := in.queue.push(sub); err != nil {
		sub.script.unpin()
		return err
	}
	return nil
}

// EnableLogging routes runtime output to the sink. This is the default.
func (in *Interpreter) EnableLogging() { in.out.enabled.Store(true) }

// DisableLogging routes runtime output to the passthrough writers instead of
// the sink.
func (in *Interpreter) DisableLogging() { in.out.enabled.Store(false) }

// LastError returns the most recent failure of the runtime itself, or nil.
// Scripts that exit non-zero do not set it.
func (in *Interpreter) LastError() error {
	in.errMu.Lock()
	defer in.errMu.Unlock()
	return in.lastErr
}

// ClearError resets LastError.
func (in *Interpreter) ClearError() {
	in.errMu.Lock()
	in.lastErr = nil
	in.errMu.Unlock()
}

func (in *Interpreter) setLastError(err error) {
	in.errMu.Lock()
	in.lastErr = err
	in.errMu.Unlock()
}

// Destroy stops accepting submissions, applies the drain policy, waits for
// the worker to exit and releases the runtime. Calling it again does nothing
// and returns nil. It must not be called from a completion callback, which
// runs on the worker it waits for; use DestroyAsync there.
func (in *Interpreter) Destroy() error {
	first := false
	in.destroyOnce.Do(func() {
		first = true
		in.destroyErr = in.shutdown()
	})
	if !first {
		return nil
	}
	return in.destroyErr
}

// DestroyAsync runs Destroy on a new goroutine and reports its result.
func (in *Interpreter) DestroyAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- in.Destroy()
	}()
	return errCh
}

func (in *Interpreter) shutdown() error {
	ctx := context.Background()
	logger := log.WithFunc("interpreter.Destroy")

	in.live.Store(false)

	discard := in.cfg.drain == DiscardQueued
	dropped := in.queue.close(discard)
	if discard {
		in.state.Store(int32(StateShuttingDown))
	} else {
		in.state.Store(int32(StateDraining))
	}

	for _, sub := range dropped {
		sub.script.unpin()
		if sub.onDrop != nil {
			sub.onDrop()
		}
	}
	if len(dropped) > 0 {
		logger.Infof(ctx, "interpreter %s discarded %d queued submissions", in.id, len(dropped))
	}

	<-in.done

	var errs []error
	if err := in.runtime.Release(); err != nil {
		errs = append(errs, fmt.Errorf("close runtime: %w", err))
	}
	if err := in.unlock(); err != nil {
		errs = append(errs, err)
	}

	interpreters.remove(in.id)
	in.state.Store(int32(StateDestroyed))

	logger.Infof(ctx, "interpreter %s destroyed", in.id)
	return errors.Join(errs...)
}

func (in *Interpreter) unlock() error {
	if in.lock == nil {
		return nil
	}
	return in.lock.Unlock(context.Background())
}
