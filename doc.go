// Package scriptvm runs scripts on an embedded interpreter from any number of
// goroutines.
//
// # Overview
//
// An interpreter.Interpreter owns one native runtime and one worker
// goroutine. Callers create scripts and enqueue them; the worker runs them
// one at a time, in the order they were accepted, and reports each exit code
// to a completion callback. Output is split into lines and delivered to a
// logsink.Sink before the callback fires.
//
// # Basic Usage
//
//	in, err := interpreter.Create(workDir, execRoot, libPath, sink,
//	    interpreter.WithEngine(wasm.New()))
//	if err != nil {
//	    return err
//	}
//	defer in.Destroy()
//
//	script, _ := in.NewScript(`puts "hello"`)
//	in.Enqueue(script, func(exitCode int) {
//	    fmt.Println("done:", exitCode)
//	})
//
// Submit returns a channel instead of taking a callback:
//
//	ch, _ := in.Submit(script)
//	code := <-ch
//
// # Engines
//
// The runtime behind an interpreter is pluggable:
//   - engine/wasm runs a WASI build such as ruby.wasm on wazero
//   - engine/process drives a long-lived interpreter child process
//
// # Shutdown
//
// Destroy stops accepting work, then either drains or discards the queue
// depending on interpreter.DrainPolicy, waits for the worker and releases
// the runtime. Scripts outlive their interpreter and are released
// separately.
package scriptvm
