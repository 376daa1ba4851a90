package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the session lifecycle phase.
type State int

const (
	// StateUninitialized is the phase before any initialize request.
	StateUninitialized State = iota
	// StateInitializing runs from the initialize request until the
	// notifications/initialized notification arrives.
	StateInitializing
	// StateInitialized is the normal operating phase.
	StateInitialized
	// StateTerminated is terminal: DELETE, TTL expiry, or transport close.
	StateTerminated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the runtime aggregate for one logical client: lifecycle
// state, negotiated protocol version, live SSE streams, in-flight
// requests, and the monotonic event-id counter that feeds SSE id
// fields. In stateless mode a Session lives for one HTTP request; in
// stateful mode it persists until termination.
type Session struct {
	id    string
	clock clockwork.Clock

	// eventID is strictly increasing across the session's lifetime; an
	// event id never repeats regardless of which stream it lands on.
	eventID atomic.Uint64

	mu              sync.RWMutex
	state           State
	protocolVersion string
	createdAt       time.Time
	lastActivity    time.Time
	streams         map[string]*Stream
	pending         map[string]*PendingRequest
}

// NewSession creates an uninitialized session.
func NewSession(id string, clock clockwork.Clock) *Session {
	now := clock.Now()
	return &Session{
		id:           id,
		clock:        clock,
		state:        StateUninitialized,
		createdAt:    now,
		lastActivity: now,
		streams:      make(map[string]*Stream),
		pending:      make(map[string]*PendingRequest),
	}
}

// Restore rebuilds a runtime session from stored data, used when a
// stateful lookup hits the store but not the in-memory registry (for
// example after a process restart). The restored session is
// initialized and starts with fresh stream and pending registries.
func Restore(data *Data, clock clockwork.Clock) *Session {
	s := NewSession(data.ID, clock)
	s.state = StateInitialized
	s.protocolVersion = data.ProtocolVersion
	s.createdAt = data.CreatedAt
	s.lastActivity = clock.Now()
	return s
}

// ID returns the stable session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Terminated reports whether the session reached its terminal state.
func (s *Session) Terminated() bool {
	return s.State() == StateTerminated
}

// Initialized reports whether the session completed initialization.
func (s *Session) Initialized() bool {
	return s.State() == StateInitialized
}

// BeginInitialize moves the session to Initializing and records the
// version requested by the client's initialize params.
func (s *Session) BeginInitialize(protocolVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return
	}
	s.state = StateInitializing
	s.protocolVersion = protocolVersion
	s.lastActivity = s.clock.Now()
}

// CompleteInitialize flips the session to Initialized on receipt of the
// notifications/initialized notification.
func (s *Session) CompleteInitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return
	}
	s.state = StateInitialized
	s.lastActivity = s.clock.Now()
}

// MarkInitialized forces the Initialized state, used for the ephemeral
// sessions synthesized per request in stateless mode.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return
	}
	s.state = StateInitialized
}

// ProtocolVersion returns the negotiated protocol revision.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// SetProtocolVersion records the revision supplied on a request header.
func (s *Session) SetProtocolVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = version
}

// Touch refreshes the activity timestamp; every inbound message calls
// it, which drives the idle-expiry sweep.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.clock.Now()
}

// LastActivity returns the time of the most recent inbound message.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// NextEventID returns the next SSE event id. Ids are assigned in the
// order sends reach the transport and never repeat within a session.
func (s *Session) NextEventID() uint64 {
	return s.eventID.Add(1)
}

// AddStream registers a live SSE stream. Terminated sessions refuse
// new streams.
func (s *Session) AddStream(st *Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return false
	}
	s.streams[st.ID()] = st
	return true
}

// RemoveStream deregisters a stream by id.
func (s *Session) RemoveStream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, id)
}

// Streams returns a snapshot of the live stream registry.
func (s *Session) Streams() []*Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streams := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	return streams
}

// StreamCount returns the number of registered streams.
func (s *Session) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// RegisterPending tracks an in-flight request under its id key. A
// duplicate id in flight or a terminated session is refused.
func (s *Session) RegisterPending(key string, pr *PendingRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return false
	}
	if _, exists := s.pending[key]; exists {
		return false
	}
	s.pending[key] = pr
	return true
}

// TakePending removes and returns the pending request for key, or nil.
func (s *Session) TakePending(key string) *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.pending[key]
	if !ok {
		return nil
	}
	delete(s.pending, key)
	return pr
}

// PendingCount returns the number of in-flight requests.
func (s *Session) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// EventsAfter merges the replay rings of every live stream and returns
// the events with id greater than lastID in ascending id order.
// Events replayed onto multiple streams are deduplicated by id.
func (s *Session) EventsAfter(lastID uint64) []Event {
	seen := make(map[uint64]struct{})
	var events []Event
	for _, st := range s.Streams() {
		for _, ev := range st.Events() {
			if ev.ID <= lastID {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events
}

// Terminate moves the session to its terminal state exactly once:
// every in-flight request resolves with the session-terminated error
// (carrying its original id), every stream closes, and replay
// histories are released. Safe to call repeatedly.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated

	pending := make([]*PendingRequest, 0, len(s.pending))
	for key, pr := range s.pending {
		pending = append(pending, pr)
		delete(s.pending, key)
	}
	streams := make([]*Stream, 0, len(s.streams))
	for id, st := range s.streams {
		streams = append(streams, st)
		delete(s.streams, id)
	}
	s.mu.Unlock()

	// Resolve outside the lock: resolution writes to streams, which
	// must not happen while holding session state.
	for _, pr := range pending {
		pr.ResolveTerminated()
	}
	for _, st := range streams {
		st.Close()
	}
}

// Snapshot returns the persistable projection of the session.
func (s *Session) Snapshot() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Data{
		ID:              s.id,
		ProtocolVersion: s.protocolVersion,
		Initialized:     s.state == StateInitialized,
		CreatedAt:       s.createdAt,
		LastActivity:    s.lastActivity,
	}
}
