package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSessionLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("sess-1", clock)

	if got := s.State(); got != StateUninitialized {
		t.Fatalf("new session state = %v, want %v", got, StateUninitialized)
	}

	s.BeginInitialize("2025-06-18")
	if got := s.State(); got != StateInitializing {
		t.Errorf("state after BeginInitialize = %v, want %v", got, StateInitializing)
	}
	if got := s.ProtocolVersion(); got != "2025-06-18" {
		t.Errorf("protocol version = %q, want %q", got, "2025-06-18")
	}

	s.CompleteInitialize()
	if !s.Initialized() {
		t.Error("session not initialized after CompleteInitialize")
	}

	s.Terminate()
	if !s.Terminated() {
		t.Error("session not terminated after Terminate")
	}

	// Terminal state refuses re-entry.
	s.CompleteInitialize()
	if got := s.State(); got != StateTerminated {
		t.Errorf("state after CompleteInitialize on terminated session = %v, want %v", got, StateTerminated)
	}
}

func TestSessionEventIDsMonotonic(t *testing.T) {
	s := NewSession("sess-1", clockwork.NewFakeClock())

	const goroutines = 8
	const perGoroutine = 250

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := s.NextEventID()
				mu.Lock()
				if seen[id] {
					t.Errorf("event id %d issued twice", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Errorf("issued %d distinct ids, want %d", len(seen), goroutines*perGoroutine)
	}
}

func TestSessionPendingRegistry(t *testing.T) {
	s := NewSession("sess-1", clockwork.NewFakeClock())

	pr := NewPendingRequest(float64(1), s.ID())
	if !s.RegisterPending("n:1", pr) {
		t.Fatal("RegisterPending() refused a fresh id")
	}
	if s.RegisterPending("n:1", NewPendingRequest(float64(1), s.ID())) {
		t.Error("RegisterPending() accepted a duplicate in-flight id")
	}

	if got := s.TakePending("n:1"); got != pr {
		t.Errorf("TakePending() = %v, want registered request", got)
	}
	if got := s.TakePending("n:1"); got != nil {
		t.Errorf("TakePending() after removal = %v, want nil", got)
	}

	// The id is reusable once the first request resolved.
	if !s.RegisterPending("n:1", NewPendingRequest(float64(1), s.ID())) {
		t.Error("RegisterPending() refused a reusable id")
	}
}

func TestSessionEventsAfter(t *testing.T) {
	s := NewSession("sess-1", clockwork.NewFakeClock())

	var buf1, buf2 bytes.Buffer
	st1 := NewStream(&buf1, nil, 10)
	st2 := NewStream(&buf2, nil, 10)
	s.AddStream(st1)
	s.AddStream(st2)

	// Interleave ids across streams; EventsAfter must merge ascending.
	writes := []struct {
		st *Stream
		id uint64
	}{
		{st1, 1}, {st2, 2}, {st1, 3}, {st2, 4}, {st1, 5},
	}
	for _, w := range writes {
		if err := w.st.WriteEvent(w.id, true, []byte("msg")); err != nil {
			t.Fatalf("WriteEvent(%d) error = %v", w.id, err)
		}
	}
	// A replayed duplicate on the second stream must not surface twice.
	if err := st2.WriteEvent(3, true, []byte("msg")); err != nil {
		t.Fatalf("WriteEvent(dup) error = %v", err)
	}

	events := s.EventsAfter(2)
	wantIDs := []uint64{3, 4, 5}
	if len(events) != len(wantIDs) {
		t.Fatalf("EventsAfter(2) returned %d events, want %d", len(events), len(wantIDs))
	}
	for i, want := range wantIDs {
		if events[i].ID != want {
			t.Errorf("EventsAfter(2)[%d].ID = %d, want %d", i, events[i].ID, want)
		}
	}

	if got := s.EventsAfter(5); len(got) != 0 {
		t.Errorf("EventsAfter(5) returned %d events, want 0", len(got))
	}
}

func TestSessionTerminateCascade(t *testing.T) {
	s := NewSession("sess-1", clockwork.NewFakeClock())

	var buf bytes.Buffer
	st := NewStream(&buf, nil, 10)
	s.AddStream(st)

	pr := NewPendingRequest(float64(5), s.ID())
	waiter := pr.BindWaiter()
	s.RegisterPending("n:5", pr)

	s.Terminate()
	s.Terminate() // idempotent

	select {
	case res := <-waiter:
		if !bytes.Contains(res.Payload, []byte("Session terminated")) {
			t.Errorf("pending resolved with %s, want session-terminated error", res.Payload)
		}
	default:
		t.Error("pending request not resolved by Terminate")
	}

	if st.Active() {
		t.Error("stream still active after Terminate")
	}
	if got := s.StreamCount(); got != 0 {
		t.Errorf("StreamCount() = %d after Terminate, want 0", got)
	}
	if got := s.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after Terminate, want 0", got)
	}

	// Terminated sessions refuse new registrations.
	if s.AddStream(NewStream(&buf, nil, 0)) {
		t.Error("AddStream() accepted on terminated session")
	}
	if s.RegisterPending("n:6", NewPendingRequest(float64(6), s.ID())) {
		t.Error("RegisterPending() accepted on terminated session")
	}
}

func TestSessionTouchAndActivity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("sess-1", clock)

	first := s.LastActivity()
	clock.Advance(5 * time.Minute)
	s.Touch()

	if got := s.LastActivity(); !got.After(first) {
		t.Errorf("LastActivity() = %v not after %v", got, first)
	}
}

func TestSessionSnapshotRestore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("sess-1", clock)
	s.BeginInitialize("2024-11-05")
	s.CompleteInitialize()

	data := s.Snapshot()
	if data.ID != "sess-1" || !data.Initialized || data.ProtocolVersion != "2024-11-05" {
		t.Fatalf("Snapshot() = %+v, want initialized sess-1 at 2024-11-05", data)
	}

	restored := Restore(data, clock)
	if !restored.Initialized() {
		t.Error("restored session not initialized")
	}
	if got := restored.ProtocolVersion(); got != "2024-11-05" {
		t.Errorf("restored protocol version = %q, want %q", got, "2024-11-05")
	}
	if got := restored.StreamCount(); got != 0 {
		t.Errorf("restored session has %d streams, want 0", got)
	}
}
