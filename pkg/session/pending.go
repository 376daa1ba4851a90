package session

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
)

// Result is the terminal outcome of a JSON-mode pending request: the
// response body and the HTTP status to send it with.
type Result struct {
	Payload []byte
	Status  int
}

// PendingRequest tracks one in-flight client request until the handler
// responds, the request times out, or the session terminates. Exactly
// one of those resolves it; later resolutions are no-ops.
//
// Delivery is bound to either a JSON waiter (the blocked POST goroutine
// receives the body) or an SSE stream (the response is the final event
// and closes the stream).
type PendingRequest struct {
	requestID interface{}
	sessionID string

	mu       sync.Mutex
	resolved bool
	timer    clockwork.Timer

	// JSON mode
	waiter chan Result

	// SSE mode
	stream      *Stream
	withEventID bool
	nextEventID func() uint64
}

// NewPendingRequest creates an unbound pending request for the given
// JSON-RPC id.
func NewPendingRequest(requestID interface{}, sessionID string) *PendingRequest {
	return &PendingRequest{
		requestID: requestID,
		sessionID: sessionID,
	}
}

// RequestID returns the original JSON-RPC id.
func (p *PendingRequest) RequestID() interface{} {
	return p.requestID
}

// SessionID returns the owning session's id.
func (p *PendingRequest) SessionID() string {
	return p.sessionID
}

// BindWaiter switches the request to JSON delivery and returns the
// channel the HTTP goroutine blocks on. The channel is buffered so
// resolution never blocks the transport.
func (p *PendingRequest) BindWaiter() <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.waiter = make(chan Result, 1)
	return p.waiter
}

// BindStream switches the request to SSE delivery. nextEventID is the
// owning session's event-id source; it is consumed only when the final
// event is written with withEventID set.
func (p *PendingRequest) BindStream(st *Stream, withEventID bool, nextEventID func() uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stream = st
	p.withEventID = withEventID
	p.nextEventID = nextEventID
}

// SetTimer attaches the request-timeout timer; resolution stops it.
func (p *PendingRequest) SetTimer(t clockwork.Timer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		t.Stop()
		return
	}
	p.timer = t
}

// Resolved reports whether a terminal event was already delivered.
func (p *PendingRequest) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

// Resolve delivers the handler's response. Returns false when the
// request already resolved.
func (p *PendingRequest) Resolve(payload []byte) bool {
	return p.finish(payload, http.StatusOK)
}

// ResolveTimeout delivers a synthetic -32001 error with the original
// request id. JSON mode replies 408; SSE mode writes the error as the
// final event.
func (p *PendingRequest) ResolveTimeout() bool {
	payload := p.errorPayload(protocol.RequestTimeout, "Request timed out")
	return p.finish(payload, http.StatusRequestTimeout)
}

// ResolveTerminated delivers the -32000 "Session terminated" error used
// when the owning session ends with this request still in flight.
func (p *PendingRequest) ResolveTerminated() bool {
	payload := p.errorPayload(protocol.TransportError, "Session terminated")
	return p.finish(payload, http.StatusOK)
}

// Abandon marks the request resolved without delivering anything, for
// client disconnects where nobody is left to read the response.
func (p *PendingRequest) Abandon() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return false
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

func (p *PendingRequest) finish(payload []byte, status int) bool {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return false
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	waiter := p.waiter
	stream := p.stream
	withEventID := p.withEventID
	nextEventID := p.nextEventID
	p.mu.Unlock()

	switch {
	case waiter != nil:
		waiter <- Result{Payload: payload, Status: status}
	case stream != nil:
		var eventID uint64
		if withEventID && nextEventID != nil {
			eventID = nextEventID()
		}
		// Write failures mean the peer went away; the stream closes
		// either way and there is nobody to report to.
		_ = stream.WriteEvent(eventID, withEventID, payload)
		stream.Close()
	}
	return true
}

func (p *PendingRequest) errorPayload(code protocol.ErrorCode, message string) []byte {
	resp := protocol.NewErrorResponse(p.requestID, code, message, nil)
	payload, err := json.Marshal(resp)
	if err != nil {
		// The response shape is static; marshaling cannot fail for it.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"},"id":null}`)
	}
	return payload
}
