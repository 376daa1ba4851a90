package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MessageKind identifies the JSON-RPC class of an inbound message.
type MessageKind int

const (
	// KindRequest is a request carrying an id; the client expects a response.
	KindRequest MessageKind = iota
	// KindNotification is a method call without an id.
	KindNotification
	// KindResponse is a client reply to a server-initiated request.
	KindResponse
)

// String returns the kind name for logging.
func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Classification failures. The error text doubles as the wire message,
// so it is written the way it appears in JSON-RPC error bodies.
var (
	// ErrBatchNotSupported rejects JSON arrays; batching is not part of
	// any Streamable HTTP revision.
	ErrBatchNotSupported = errors.New("Batch requests are not supported")

	// ErrInvalidMessage rejects payloads that parse as JSON but do not
	// form a JSON-RPC 2.0 request, notification, or response.
	ErrInvalidMessage = errors.New("Not a valid JSON-RPC message")
)

// Message is the result of classifying one inbound payload. Exactly one
// of Request, Notification, Response is populated according to Kind.
// Raw keeps the original bytes for pass-through dispatch.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Notification *Notification
	Response     *Response
	Raw          json.RawMessage
}

// IsInitialize reports whether the message is an initialize request.
func (m *Message) IsInitialize() bool {
	return m.Kind == KindRequest && m.Request != nil && m.Request.Method == MethodInitialize
}

// ID returns the JSON-RPC id for requests and responses, nil otherwise.
func (m *Message) ID() interface{} {
	switch m.Kind {
	case KindRequest:
		return m.Request.ID
	case KindResponse:
		return m.Response.ID
	default:
		return nil
	}
}

// Method returns the method name for requests and notifications.
func (m *Message) Method() string {
	switch m.Kind {
	case KindRequest:
		return m.Request.Method
	case KindNotification:
		return m.Notification.Method
	default:
		return ""
	}
}

// ParseMessage classifies one JSON-RPC payload. It returns a
// json.SyntaxError (or json.UnmarshalTypeError) for malformed JSON,
// ErrBatchNotSupported for arrays, and ErrInvalidMessage for valid JSON
// that is not a JSON-RPC 2.0 message. An id of JSON null is treated as
// absent, so a method with a null id classifies as a notification.
func ParseMessage(data []byte) (*Message, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, ErrBatchNotSupported
	}

	var probe struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.JSONRPC != JSONRPCVersion {
		return nil, ErrInvalidMessage
	}

	msg := &Message{Raw: append(json.RawMessage(nil), data...)}
	switch {
	case probe.Method != "" && probe.ID != nil:
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		msg.Kind = KindRequest
		msg.Request = &req
	case probe.Method != "":
		var note Notification
		if err := json.Unmarshal(data, &note); err != nil {
			return nil, err
		}
		msg.Kind = KindNotification
		msg.Notification = &note
	case probe.Result != nil || probe.Error != nil:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		msg.Kind = KindResponse
		msg.Response = &resp
	default:
		return nil, ErrInvalidMessage
	}
	return msg, nil
}

// IDKey returns the canonical map key for a JSON-RPC id. String and
// numeric ids that render identically must not collide, so keys carry a
// type prefix: "s:" for strings, "n:" for numbers. A nil id maps to "".
func IDKey(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return "s:" + v
	case json.Number:
		return "n:" + v.String()
	case float64:
		return "n:" + strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return "n:" + strconv.Itoa(v)
	case int64:
		return "n:" + strconv.FormatInt(v, 10)
	case uint64:
		return "n:" + strconv.FormatUint(v, 10)
	default:
		return fmt.Sprintf("x:%v", v)
	}
}
