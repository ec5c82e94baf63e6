package proc

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event is one audited tool invocation.
type Event struct {
	Time        time.Time
	Args        []string
	ExitCode    int
	Duration    time.Duration
	StderrBytes int
}

// Sink receives audit events. Implementations must be inert: Record must
// not panic and must not fail the tool run it observes.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event and guarantees inertness even if the sink is
// buggy. It intentionally swallows panics.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory sink, used in tests and to
// surface recent invocations for diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all recorded events.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// FileSink appends one NDJSON line per event to a log file. Write errors
// are dropped; auditing never affects execution.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink appending to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Record(event Event) {
	if s == nil || s.path == "" {
		return
	}
	type line struct {
		TS          string   `json:"ts"`
		Argv        []string `json:"argv"`
		Exit        int      `json:"exit"`
		MS          int64    `json:"ms"`
		StderrBytes int      `json:"stderr_bytes"`
	}
	b, err := json.Marshal(line{
		TS:          event.Time.UTC().Format(time.RFC3339Nano),
		Argv:        event.Args,
		Exit:        event.ExitCode,
		MS:          event.Duration.Milliseconds(),
		StderrBytes: event.StderrBytes,
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(b, '\n'))
}
