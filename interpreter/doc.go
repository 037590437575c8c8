// Package interpreter coordinates asynchronous script execution against a
// single embedded interpreter runtime.
//
// # Overview
//
// An [Interpreter] binds one underlying runtime (see [Engine]) to three
// filesystem roots and a [logsink.Sink]. Scripts are submitted with
// [Interpreter.Enqueue] and run one at a time, in submission order, on a
// dedicated worker goroutine. Enqueue never blocks on execution; completion is
// reported through a callback carrying the script's exit code.
//
// # Basic Usage
//
//	in, err := interpreter.Create(workDir, execRoot, libPath, sink,
//	    interpreter.WithEngine(wasm.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer in.Destroy()
//
//	script, _ := in.NewScript(`puts "hello"`)
//	in.Enqueue(script, func(exitCode int) {
//	    fmt.Println("finished with", exitCode)
//	    script.Release()
//	})
//
// # Ordering and Delivery
//
// Submissions execute strictly FIFO. Output lines reach the sink while the
// script runs; the completion callback is always the last event for a
// submission and runs on the worker goroutine, never on the submitter's.
// A script that never returns delays everything queued behind it.
//
// # Shutdown
//
// [Interpreter.Destroy] stops accepting work and waits for the worker to
// exit. With [DrainQueued] (the default) every queued submission still runs
// and reports; with [DiscardQueued] submissions that have not started are
// dropped and their callbacks never fire.
//
// # Errors
//
// Script failures are data: they arrive as a non-zero exit code. Misuse of
// the API returns one of [ErrInitialization], [ErrInvalidState],
// [ErrInvalidScript], [ErrUseAfterRelease] or [ErrScriptBusy], checkable with
// errors.Is.
package interpreter
