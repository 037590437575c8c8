package interpreter

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/scriptvm/logsink"
)

// output routes runtime lines either to the sink or, while logging is
// disabled, to the passthrough writers. Calls are serialized so a sink never
// sees two lines at once even when a runtime reads stdout and stderr on
// separate goroutines.
type output struct {
	mu      sync.Mutex
	sink    logsink.Sink
	stdout  io.Writer
	stderr  io.Writer
	enabled atomic.Bool
}

func newOutput(sink logsink.Sink, stdout, stderr io.Writer, enabled bool) *output {
	if sink == nil {
		sink = logsink.Discard
	}
	o := &output{sink: sink, stdout: stdout, stderr: stderr}
	o.enabled.Store(enabled)
	return o
}

func (o *output) OnLog(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.enabled.Load() {
		o.sink.OnLog(line)
		return
	}
	fmt.Fprintln(o.stdout, line)
}

func (o *output) OnError(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.enabled.Load() {
		o.sink.OnError(line)
		return
	}
	fmt.Fprintln(o.stderr, line)
}
