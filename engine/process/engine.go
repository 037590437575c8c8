// Package process runs scripts in a long-lived interpreter child process.
//
// The child is started once per Interpreter, so global state survives from
// one script to the next as it would in an embedded interpreter. Scripts
// are sent on its stdin and exit codes come back on fd 3; stdout and stderr
// stay free for the scripts themselves.
package process

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

//go:embed driver.rb
var driverSource string

// ErrExited is returned once the child process has gone away.
var ErrExited = errors.New("interpreter process exited")

// Engine runs scripts in a long-lived interpreter child process.
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

func (e *Engine) Name() string { return "process" }

// Open starts the child in the working directory with RUBYLIB set to the
// library path. Output it produces between scripts goes to sink.
func (e *Engine) Open(ctx context.Context, paths interpreter.Paths, sink logsink.Sink) (interpreter.Runtime, error) {
	logger := log.WithFunc("process.Open")

	argv := e.cfg.command
	if len(argv) == 0 {
		argv = []string{filepath.Join(paths.ExecRoot, "bin", "ruby"), "-e", driverSource}
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = paths.WorkDir
	cmd.Env = append(os.Environ(), "RUBYLIB="+paths.LibPath)
	for k, v := range e.cfg.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("reply pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{replyW}

	if err := cmd.Start(); err != nil {
		replyR.Close()
		replyW.Close()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	// The child holds its own copy; ours would keep replies open after exit.
	replyW.Close()

	r := &Runtime{
		cmd:     cmd,
		stdin:   stdin,
		replies: bufio.NewReader(replyR),
		replyR:  replyR,
		sink:    logsink.Serialized(sink),
		timeout: e.cfg.shutdownTimeout,
		exited:  make(chan struct{}),

		markerTimeout: e.cfg.markerTimeout,
	}
	r.pumps.Add(2)
	go r.pump(stdout, false)
	go r.pump(stderr, true)
	go func() {
		r.pumps.Wait()
		close(r.exited)
	}()

	logger.Infof(ctx, "started %s (pid %d) in %s", argv[0], cmd.Process.Pid, paths.WorkDir)
	return r, nil
}

// execution is where output of the running script goes.
type execution struct {
	stdout, stderr io.Writer
	done           chan struct{}
}

// Runtime is one running child. Execute must not be called concurrently.
type Runtime struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies *bufio.Reader
	replyR  *os.File
	sink    logsink.Sink
	timeout time.Duration

	markerTimeout time.Duration

	mu  sync.Mutex
	cur *execution

	pumps  sync.WaitGroup
	exited chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Execute sends source to the child and waits for its exit code and for the
// done marker on both output streams. Scripts over maxScriptSize bytes are
// refused with ExitFailure.
func (r *Runtime) Execute(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
	select {
	case <-r.exited:
		return interpreter.ExitFailure, ErrExited
	default:
	}

	if len(source) > maxScriptSize {
		fmt.Fprintf(stderr, "script is %d bytes, limit is %d\n", len(source), maxScriptSize) //nolint:errcheck
		return interpreter.ExitFailure, nil
	}

	run := &execution{stdout: stdout, stderr: stderr, done: make(chan struct{}, 2)}
	r.mu.Lock()
	r.cur = run
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cur = nil
		r.mu.Unlock()
	}()

	if err := writeRequest(r.stdin, source); err != nil {
		return interpreter.ExitFailure, errors.Join(ErrExited, err)
	}
	code, err := readReply(r.replies)
	if err != nil {
		return interpreter.ExitFailure, errors.Join(ErrExited, err)
	}

	// The markers precede the reply, so they are at most a pipe buffer
	// behind it; wait for them only up to markerTimeout.
	grace := time.NewTimer(r.markerTimeout)
	defer grace.Stop()
	for range 2 {
		select {
		case <-run.done:
		case <-r.exited:
			return code, ErrExited
		case <-grace.C:
			log.WithFunc("process.Execute").Warnf(ctx, "pid %d: done marker missing %v after exit code %d", r.cmd.Process.Pid, r.markerTimeout, code)
			return code, nil
		}
	}
	return code, nil
}

// pump copies one output stream line by line to the running script, or to
// the sink between scripts.
func (r *Runtime) pump(src io.Reader, isErr bool) {
	defer r.pumps.Done()

	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			r.route(line, isErr)
		}
		if err != nil {
			return
		}
	}
}

func (r *Runtime) route(line string, isErr bool) {
	prefix, done := splitMarker(line)

	r.mu.Lock()
	run := r.cur
	r.mu.Unlock()

	if run == nil {
		text := strings.TrimRight(prefix, "\r\n")
		if done || text == "" {
			return
		}
		if isErr {
			r.sink.OnError(text)
		} else {
			r.sink.OnLog(text)
		}
		return
	}

	w := run.stdout
	if isErr {
		w = run.stderr
	}
	if prefix != "" {
		io.WriteString(w, prefix) //nolint:errcheck
	}
	if done {
		run.done <- struct{}{}
	}
}

// Close ends the child by closing its stdin, killing it if it has not
// exited within the shutdown timeout.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.closeErr = r.shutdown(ctx)
	})
	return r.closeErr
}

func (r *Runtime) shutdown(ctx context.Context) error {
	logger := log.WithFunc("process.Close")

	r.stdin.Close() //nolint:errcheck

	waitErr := make(chan error, 1)
	go func() {
		<-r.exited
		waitErr <- r.cmd.Wait()
	}()

	var err error
	select {
	case err = <-waitErr:
	case <-time.After(r.timeout):
		logger.Warnf(ctx, "pid %d did not exit within %v, killing", r.cmd.Process.Pid, r.timeout)
		r.cmd.Process.Kill() //nolint:errcheck
		<-waitErr
	}
	r.replyR.Close() //nolint:errcheck

	if err != nil {
		return fmt.Errorf("interpreter process: %w", err)
	}
	return nil
}
