package logsink

import "sync"

// Kind identifies the channel an Event arrived on.
type Kind int

const (
	KindLog Kind = iota
	KindError
	// KindNote marks events added by the test itself through Note.
	KindNote
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindError:
		return "error"
	case KindNote:
		return "note"
	default:
		return "unknown"
	}
}

// Event is one recorded line.
type Event struct {
	Kind Kind
	Line string
}

// Recorder is a Sink that keeps every line in arrival order. It is meant for
// tests that need to check what an interpreter printed and when.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnLog(line string)   { r.add(KindLog, line) }
func (r *Recorder) OnError(line string) { r.add(KindError, line) }

// Note appends a caller-defined marker, e.g. a completion, to the timeline.
func (r *Recorder) Note(line string) { r.add(KindNote, line) }

func (r *Recorder) add(kind Kind, line string) {
	r.mu.Lock()
	r.events = append(r.events, Event{Kind: kind, Line: line})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Lines returns the recorded lines of one kind.
func (r *Recorder) Lines(kind Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Line)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
