package session

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// DefaultEventHistorySize bounds the per-stream replay ring.
const DefaultEventHistorySize = 100

// ErrStreamClosed is returned by WriteEvent after Close.
var ErrStreamClosed = errors.New("stream closed")

// Event is one entry in a stream's replay history.
type Event struct {
	ID      uint64
	Payload []byte
}

// Stream is one outbound SSE connection. Writes frame the payload per
// the SSE wire format and flush immediately. When constructed with a
// history size, events written with an id are recorded in a bounded
// ring for Last-Event-ID replay; the oldest entry is dropped on
// overflow.
//
// POST-originated streams carry no ring; GET streams carry one when
// resumability is enabled.
type Stream struct {
	id string

	mu          sync.Mutex
	w           io.Writer
	flusher     http.Flusher
	closed      bool
	done        chan struct{}
	history     []Event
	historySize int
}

// NewStream wraps a response writer as an SSE stream. historySize 0
// disables the replay ring.
func NewStream(w io.Writer, flusher http.Flusher, historySize int) *Stream {
	return &Stream{
		id:          ulid.Make().String(),
		w:           w,
		flusher:     flusher,
		done:        make(chan struct{}),
		historySize: historySize,
	}
}

// ID returns the server-generated stream id.
func (s *Stream) ID() string {
	return s.id
}

// WriteEvent frames one message as an SSE event and flushes it. The
// id line is written only when withID is set; the data field is split
// on newlines so multi-line payloads stay valid SSE.
func (s *Stream) WriteEvent(id uint64, withID bool, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	if withID {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "event: message\n"); err != nil {
		return err
	}
	for _, line := range strings.Split(string(payload), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}

	if withID && s.historySize > 0 {
		s.record(Event{ID: id, Payload: append([]byte(nil), payload...)})
	}
	return nil
}

// record appends to the ring, dropping the oldest entry at capacity.
// Caller holds s.mu.
func (s *Stream) record(ev Event) {
	if len(s.history) >= s.historySize {
		s.history = s.history[1:]
	}
	s.history = append(s.history, ev)
}

// Events returns a snapshot of the replay ring in write order.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.history...)
}

// Active reports whether the stream can still accept writes.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Detach marks the stream closed for writes but keeps the replay ring,
// for client disconnects where a later reconnect may replay the ring
// via Last-Event-ID. Idempotent.
func (s *Stream) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Close marks the stream closed and signals Done. Idempotent; the
// replay ring is released.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Done is closed when the stream ends, either by Close or by session
// termination. HTTP handlers block on it to keep the connection open.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}
