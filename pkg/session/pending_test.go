package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func decodeEventData(t *testing.T, frame string) map[string]interface{} {
	t.Helper()

	var data []byte
	for _, line := range bytes.Split([]byte(frame), []byte("\n")) {
		if bytes.HasPrefix(line, []byte("data: ")) {
			data = append(data, bytes.TrimPrefix(line, []byte("data: "))...)
		}
	}
	if len(data) == 0 {
		t.Fatalf("no data line in frame %q", frame)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decoding event data %q: %v", data, err)
	}
	return decoded
}

func TestPendingRequestResolveJSON(t *testing.T) {
	pr := NewPendingRequest(float64(1), "sess-1")
	waiter := pr.BindWaiter()

	payload := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	if !pr.Resolve(payload) {
		t.Fatal("Resolve() = false on first resolution")
	}

	res := <-waiter
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want %d", res.Status, http.StatusOK)
	}
	if !bytes.Equal(res.Payload, payload) {
		t.Errorf("Payload = %s, want %s", res.Payload, payload)
	}
}

func TestPendingRequestResolveStream(t *testing.T) {
	var buf bytes.Buffer
	st := NewStream(&buf, nil, 0)

	var nextID uint64
	pr := NewPendingRequest(float64(2), "sess-1")
	pr.BindStream(st, true, func() uint64 { nextID++; return nextID })

	payload := []byte(`{"jsonrpc":"2.0","id":2,"result":{"ok":true}}`)
	if !pr.Resolve(payload) {
		t.Fatal("Resolve() = false on first resolution")
	}

	if st.Active() {
		t.Error("stream still active after response delivery")
	}
	frame := buf.String()
	if want := "id: 1\n"; !bytes.HasPrefix(buf.Bytes(), []byte(want)) {
		t.Errorf("frame %q does not start with %q", frame, want)
	}
	decoded := decodeEventData(t, frame)
	if decoded["id"] != float64(2) {
		t.Errorf("event id field = %v, want 2", decoded["id"])
	}
}

func TestPendingRequestResolveTimeout(t *testing.T) {
	t.Run("json mode", func(t *testing.T) {
		pr := NewPendingRequest(float64(7), "sess-1")
		waiter := pr.BindWaiter()

		if !pr.ResolveTimeout() {
			t.Fatal("ResolveTimeout() = false on first resolution")
		}

		res := <-waiter
		if res.Status != http.StatusRequestTimeout {
			t.Errorf("Status = %d, want %d", res.Status, http.StatusRequestTimeout)
		}

		var resp struct {
			ID    float64 `json:"id"`
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(res.Payload, &resp); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if resp.ID != 7 {
			t.Errorf("id = %v, want 7", resp.ID)
		}
		if resp.Error.Code != -32001 {
			t.Errorf("code = %d, want -32001", resp.Error.Code)
		}
		if resp.Error.Message != "Request timed out" {
			t.Errorf("message = %q, want %q", resp.Error.Message, "Request timed out")
		}
	})

	t.Run("sse mode", func(t *testing.T) {
		var buf bytes.Buffer
		st := NewStream(&buf, nil, 0)

		pr := NewPendingRequest(float64(7), "sess-1")
		pr.BindStream(st, false, nil)

		if !pr.ResolveTimeout() {
			t.Fatal("ResolveTimeout() = false on first resolution")
		}
		if st.Active() {
			t.Error("stream still active after timeout delivery")
		}
		decoded := decodeEventData(t, buf.String())
		errObj := decoded["error"].(map[string]interface{})
		if errObj["code"] != float64(-32001) {
			t.Errorf("code = %v, want -32001", errObj["code"])
		}
	})
}

func TestPendingRequestResolveTerminated(t *testing.T) {
	pr := NewPendingRequest("req-9", "sess-1")
	waiter := pr.BindWaiter()

	if !pr.ResolveTerminated() {
		t.Fatal("ResolveTerminated() = false on first resolution")
	}

	res := <-waiter
	var resp struct {
		ID    string `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(res.Payload, &resp); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if resp.ID != "req-9" {
		t.Errorf("id = %q, want %q", resp.ID, "req-9")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("code = %d, want -32000", resp.Error.Code)
	}
	if resp.Error.Message != "Session terminated" {
		t.Errorf("message = %q, want %q", resp.Error.Message, "Session terminated")
	}
}

func TestPendingRequestResolvesExactlyOnce(t *testing.T) {
	pr := NewPendingRequest(float64(1), "sess-1")
	waiter := pr.BindWaiter()

	// Race response, timeout, and termination; exactly one must win.
	var wg sync.WaitGroup
	wins := make(chan string, 3)
	start := make(chan struct{})
	for name, fn := range map[string]func() bool{
		"resolve":    func() bool { return pr.Resolve([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)) },
		"timeout":    pr.ResolveTimeout,
		"terminated": pr.ResolveTerminated,
	} {
		wg.Add(1)
		go func(name string, fn func() bool) {
			defer wg.Done()
			<-start
			if fn() {
				wins <- name
			}
		}(name, fn)
	}
	close(start)
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winners (%v), want exactly 1", len(winners), winners)
	}
	if len(waiter) != 1 {
		t.Errorf("waiter received %d results, want 1", len(waiter))
	}
	if !pr.Resolved() {
		t.Error("Resolved() = false after resolution")
	}
}

func TestPendingRequestAbandon(t *testing.T) {
	pr := NewPendingRequest(float64(3), "sess-1")
	waiter := pr.BindWaiter()

	if !pr.Abandon() {
		t.Fatal("Abandon() = false on unresolved request")
	}
	if pr.Resolve([]byte(`{}`)) {
		t.Error("Resolve() succeeded after Abandon()")
	}
	if len(waiter) != 0 {
		t.Error("abandoned request delivered a result")
	}
}

func TestPendingRequestTimerStoppedOnResolution(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := false

	pr := NewPendingRequest(float64(4), "sess-1")
	pr.BindWaiter()
	pr.SetTimer(clock.AfterFunc(30*time.Second, func() { fired = true }))

	pr.Resolve([]byte(`{}`))
	clock.Advance(time.Minute)

	if fired {
		t.Error("timeout timer fired after resolution")
	}
}
