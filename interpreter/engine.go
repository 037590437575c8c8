package interpreter

import (
	"context"
	"io"

	"github.com/caffeineduck/scriptvm/logsink"
)

// Paths are the filesystem roots an interpreter is bound to. They are passed
// through to the engine; the coordinator only checks that they exist.
type Paths struct {
	// WorkDir is the working directory scripts run in.
	WorkDir string
	// ExecRoot holds the interpreter executable or module.
	ExecRoot string
	// LibPath is the library search path of the interpreter.
	LibPath string
}

// Engine opens the native runtime an Interpreter drives. Implement it to plug
// a new interpreter backend; see the engine/wasm and engine/process packages.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string
	// Open acquires the runtime. sink receives output the runtime produces
	// outside of any execution.
	Open(ctx context.Context, paths Paths, sink logsink.Sink) (Runtime, error)
}

// Runtime is one live native interpreter. It is only ever used from the
// interpreter's worker goroutine, one Execute at a time.
type Runtime interface {
	// Execute runs source to completion. Output must be fully written to
	// stdout and stderr before Execute returns. A script failure is a
	// non-zero exitCode with a nil error; err is reserved for failures of
	// the runtime itself.
	Execute(ctx context.Context, source string, stdout, stderr io.Writer) (exitCode int, err error)
	// Close releases the runtime.
	Close(ctx context.Context) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, paths Paths, sink logsink.Sink) (Runtime, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Open(ctx context.Context, paths Paths, sink logsink.Sink) (Runtime, error) {
	return f(ctx, paths, sink)
}

// RuntimeFunc adapts a function to Runtime. Close does nothing.
type RuntimeFunc func(ctx context.Context, source string, stdout, stderr io.Writer) (int, error)

func (f RuntimeFunc) Execute(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
	return f(ctx, source, stdout, stderr)
}

func (f RuntimeFunc) Close(context.Context) error { return nil }
