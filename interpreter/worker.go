package interpreter

import (
	"errors"
	"fmt"
	"io"

	"github.com/projecteru2/core/log"

	"github.com/caffeineduck/scriptvm/internal/handle"
	"github.com/caffeineduck/scriptvm/logsink"
)

// run is the worker loop. It is the only goroutine that touches the runtime.
func (in *Interpreter) run() {
	defer close(in.done)

	for {
		sub, ok := in.queue.next()
		if !ok {
			return
		}
		in.dispatch(sub)
	}
}

func (in *Interpreter) dispatch(sub *submission) {
	in.state.CompareAndSwap(int32(StateIdle), int32(StateDispatching))

	exitCode := in.execute(sub)
	sub.script.unpin()

	// Output is flushed by execute, so the callback is the last event of
	// this submission.
	in.complete(sub, exitCode)

	in.state.CompareAndSwap(int32(StateDispatching), int32(StateIdle))
}

func (in *Interpreter) execute(sub *submission) int {
	logger := log.WithFunc("interpreter.execute")

	source, err := sub.script.Source()
	if err != nil {
		in.out.OnError(err.Error())
		return ExitFailure
	}

	stdout := logsink.StdoutWriter(in.out)
	stderr := logsink.StderrWriter(in.out)

	var exitCode int
	var execErr error
	err = in.runtime.Use(func(rt Runtime) error {
		exitCode, execErr = rt.Execute(in.ctx, source, stdout, stderr)
		return nil
	})

	flush(stdout, stderr)

	if errors.Is(err, handle.ErrReleased) {
		execErr = fmt.Errorf("runtime: %w", ErrUseAfterRelease)
	}
	if execErr != nil {
		in.setLastError(execErr)
		logger.Warnf(in.ctx, "interpreter %s: submission %d (%s) failed in runtime: %v", in.id, sub.seq, sub.script.name, execErr)
		if exitCode == ExitSuccess {
			exitCode = ExitFailure
		}
	}
	return exitCode
}

// complete runs the callback, keeping the worker alive if it panics.
func (in *Interpreter) complete(sub *submission, exitCode int) {
	if sub.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithFunc("interpreter.complete").Warnf(in.ctx, "interpreter %s: completion callback for submission %d panicked: %v", in.id, sub.seq, r)
		}
	}()
	sub.onComplete(exitCode)
}

func flush(writers ...io.Closer) {
	for _, w := range writers {
		w.Close() //nolint:errcheck
	}
}
