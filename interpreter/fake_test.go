package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/scriptvm/logsink"
)

// fakeRuntime understands a tiny statement language, separated by ';':
//
//	puts X   write X to stdout
//	warn X   write X to stderr
//	print X  write X to stdout without a newline
//	exit N   stop with exit code N
//	block    wait until the gate is opened
//	crash    fail in the runtime itself
type fakeRuntime struct {
	mu       sync.Mutex
	executed []string

	started chan string
	gate    chan struct{}
	closed  atomic.Int32
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		started: make(chan string, 64),
		gate:    make(chan struct{}),
	}
}

func (f *fakeRuntime) Execute(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
	f.mu.Lock()
	f.executed = append(f.executed, source)
	f.mu.Unlock()

	select {
	case f.started <- source:
	default:
	}

	for _, stmt := range strings.Split(source, ";") {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(stmt), " ")
		switch cmd {
		case "puts":
			fmt.Fprintln(stdout, arg)
		case "warn":
			fmt.Fprintln(stderr, arg)
		case "print":
			fmt.Fprint(stdout, arg)
		case "exit":
			code, err := strconv.Atoi(arg)
			if err != nil {
				return ExitFailure, nil
			}
			return code, nil
		case "block":
			<-f.gate
		case "crash":
			return 0, errors.New("runtime crashed")
		}
	}
	return ExitSuccess, nil
}

func (f *fakeRuntime) Close(context.Context) error {
	f.closed.Add(1)
	return nil
}

func (f *fakeRuntime) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}

// waitStarted blocks until the runtime begins executing source.
func (f *fakeRuntime) waitStarted(t *testing.T, source string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == source {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q to start", source)
		}
	}
}

type fakeEngine struct {
	rt      *fakeRuntime
	openErr error
	opened  atomic.Int32
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Open(ctx context.Context, paths Paths, sink logsink.Sink) (Runtime, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opened.Add(1)
	return e.rt, nil
}

type testDirs struct {
	work, exec, lib string
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	return testDirs{work: t.TempDir(), exec: t.TempDir(), lib: t.TempDir()}
}

func newTestInterpreter(t *testing.T, sink logsink.Sink, opts ...Option) (*Interpreter, *fakeRuntime) {
	t.Helper()
	rt := newFakeRuntime()
	dirs := newTestDirs(t)

	opts = append([]Option{WithEngine(&fakeEngine{rt: rt})}, opts...)
	in, err := Create(dirs.work, dirs.exec, dirs.lib, sink, opts...)
	if err != nil {
		t.Fatalf("failed to create interpreter: %v", err)
	}
	t.Cleanup(func() {
		// Never leave a worker parked on a closed gate.
		select {
		case <-rt.gate:
		default:
			close(rt.gate)
		}
		in.Destroy()
	})
	return in, rt
}

func mustScript(t *testing.T, in *Interpreter, content string) *Script {
	t.Helper()
	s, err := in.NewScript(content)
	if err != nil {
		t.Fatalf("failed to create script %q: %v", content, err)
	}
	return s
}

func waitCode(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code, ok := <-ch:
		if !ok {
			t.Fatal("submission was dropped")
		}
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	return -1
}
