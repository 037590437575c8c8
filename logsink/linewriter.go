package logsink

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that splits its input on '\n' and hands every
// complete line to emit as soon as it is written. A trailing line without a
// newline is held until the next Write or Flush.
type LineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(string)
}

// NewLineWriter returns a LineWriter calling emit for each line.
func NewLineWriter(emit func(line string)) *LineWriter {
	return &LineWriter{emit: emit}
}

// StdoutWriter returns a LineWriter feeding s.OnLog.
func StdoutWriter(s Sink) *LineWriter {
	return NewLineWriter(s.OnLog)
}

// StderrWriter returns a LineWriter feeding s.OnError.
func StderrWriter(s Sink) *LineWriter {
	return NewLineWriter(s.OnError)
}

func (w *LineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(data)
	w.buf.Write(data)

	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx == -1 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emitLine(line[:idx])
	}

	return n, nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.emitLine(line)
}

// Close flushes the writer. It always returns nil.
func (w *LineWriter) Close() error {
	w.Flush()
	return nil
}

func (w *LineWriter) emitLine(line string) {
	if w.emit != nil {
		w.emit(strings.TrimSuffix(line, "\r"))
	}
}
