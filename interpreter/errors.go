package interpreter

import "errors"

var (
	// ErrInitialization means the runtime could not be acquired by Create.
	ErrInitialization = errors.New("interpreter initialization failed")
	// ErrInvalidState means the interpreter has been destroyed.
	ErrInvalidState = errors.New("interpreter destroyed")
	// ErrInvalidScript means the script is released, malformed or belongs to
	// another interpreter.
	ErrInvalidScript = errors.New("invalid script")
	// ErrUseAfterRelease means a released handle was used.
	ErrUseAfterRelease = errors.New("use after release")
	// ErrScriptBusy means a script still has queued or running executions.
	ErrScriptBusy = errors.New("script has pending executions")
)

// Exit codes reported by the coordinator itself.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// MaxScriptSize is the largest script source accepted, in bytes.
const MaxScriptSize = 10_000_000
