package main

import (
	"fmt"
	"io"

	"github.com/caffeineduck/scriptvm/config"
	"github.com/caffeineduck/scriptvm/engine/process"
	"github.com/caffeineduck/scriptvm/engine/wasm"
	"github.com/caffeineduck/scriptvm/hostfunc"
	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

func buildEngine(conf *config.Config) (interpreter.Engine, error) {
	switch conf.Engine {
	case config.EngineWasm:
		opts := []wasm.Option{
			wasm.WithModule(conf.Module),
			wasm.WithKV(hostfunc.NewKV(hostfunc.DefaultKVConfig())),
		}
		pages, err := conf.MemoryLimitPages()
		if err != nil {
			return nil, err
		}
		if pages > 0 {
			opts = append(opts, wasm.WithMemoryLimit(pages))
		}
		if conf.DiskCache {
			opts = append(opts, wasm.WithDiskCache(""))
		}
		return wasm.New(opts...), nil

	case config.EngineProcess:
		opts := []process.Option{process.WithShutdownTimeout(conf.ShutdownTimeout)}
		if len(conf.Command) > 0 {
			opts = append(opts, process.WithCommand(conf.Command[0], conf.Command[1:]...))
		}
		return process.New(opts...), nil

	default:
		return nil, fmt.Errorf("unknown engine %q", conf.Engine)
	}
}

// consoleSink prints runtime lines to stdout and stderr.
func consoleSink(stdout, stderr io.Writer) logsink.Sink {
	return logsink.Funcs{
		Log:   func(line string) { fmt.Fprintln(stdout, line) },
		Error: func(line string) { fmt.Fprintln(stderr, line) },
	}
}

// newInterpreter creates an interpreter from conf. stdout and stderr receive
// output while logging is disabled.
func newInterpreter(conf *config.Config, sink logsink.Sink, stdout, stderr io.Writer) (*interpreter.Interpreter, error) {
	engine, err := buildEngine(conf)
	if err != nil {
		return nil, err
	}
	drain, err := conf.Drain()
	if err != nil {
		return nil, err
	}

	opts := []interpreter.Option{
		interpreter.WithEngine(engine),
		interpreter.WithDrainPolicy(drain),
		interpreter.WithPassthrough(stdout, stderr),
	}
	if conf.Exclusive {
		opts = append(opts, interpreter.WithExclusiveLock())
	}

	return interpreter.Create(conf.WorkDir, conf.ExecRoot, conf.LibPath, sink, opts...)
}
