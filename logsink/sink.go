// Package logsink delivers interpreter output, one line at a time, to a caller
// supplied Sink.
//
// A Sink has two channels: OnLog receives lines the runtime wrote to standard
// output, OnError receives lines written to standard error. Lines are passed
// verbatim without the trailing newline.
//
//	sink := logsink.Funcs{
//	    Log:   func(line string) { fmt.Println("[vm]", line) },
//	    Error: func(line string) { fmt.Println("[vm error]", line) },
//	}
package logsink

import "sync"

// Sink receives runtime output lines.
type Sink interface {
	OnLog(line string)
	OnError(line string)
}

// Funcs adapts two functions to a Sink. Nil functions drop their lines.
type Funcs struct {
	Log   func(line string)
	Error func(line string)
}

func (f Funcs) OnLog(line string) {
	if f.Log != nil {
		f.Log(line)
	}
}

func (f Funcs) OnError(line string) {
	if f.Error != nil {
		f.Error(line)
	}
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) OnLog(string)   {}
func (discard) OnError(string) {}

// Serialized returns a Sink that never calls s from two goroutines at once.
func Serialized(s Sink) Sink {
	if s == nil {
		s = Discard
	}
	return &serialized{sink: s}
}

type serialized struct {
	mu   sync.Mutex
	sink Sink
}

func (s *serialized) OnLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnLog(line)
}

func (s *serialized) OnError(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnError(line)
}
