package errors

import (
	"fmt"
)

// SessionErrorData carries the session an error refers to
type SessionErrorData struct {
	SessionID string `json:"sessionId,omitempty"`
}

// PayloadErrorData carries body-size information for oversized uploads
type PayloadErrorData struct {
	Size  int64 `json:"size,omitempty"`
	Limit int64 `json:"limit"`
}

// VersionErrorData carries version negotiation failures
type VersionErrorData struct {
	Requested string   `json:"requested"`
	Supported []string `json:"supported"`
}

// ScopeErrorData carries the scopes a rejected caller was missing
type ScopeErrorData struct {
	Required []string `json:"required"`
	Missing  []string `json:"missing,omitempty"`
}

// TimeoutErrorData carries the deadline that expired, in milliseconds
type TimeoutErrorData struct {
	Timeout int64 `json:"timeout"`
}

// NotAcceptable rejects a POST whose Accept header lacks one of the two
// required media types
func NotAcceptable() MCPError {
	return NewError(
		CodeTransportError,
		"Not Acceptable: Client must accept both application/json and text/event-stream",
		CategoryValidation,
		SeverityWarning,
	)
}

// NotAcceptableEventStream rejects a GET whose Accept header lacks
// text/event-stream
func NotAcceptableEventStream() MCPError {
	return NewError(
		CodeTransportError,
		"Not Acceptable: Client must accept text/event-stream",
		CategoryValidation,
		SeverityWarning,
	)
}

// UnsupportedMediaType rejects a POST without a JSON content type
func UnsupportedMediaType() MCPError {
	return NewError(
		CodeTransportError,
		"Unsupported Media Type: Content-Type must be application/json",
		CategoryValidation,
		SeverityWarning,
	)
}

// PayloadTooLarge rejects a body exceeding the configured limit
func PayloadTooLarge(size, limit int64) MCPError {
	return NewError(
		CodeTransportError,
		"Payload Too Large: request body exceeds maximum size",
		CategoryValidation,
		SeverityWarning,
	).WithData(&PayloadErrorData{Size: size, Limit: limit})
}

// ParseFailed rejects a body that is not valid JSON
func ParseFailed(cause error) MCPError {
	err := WrapError(cause, CodeParseError, "Parse error", CategoryProtocol, SeverityWarning)
	if cause != nil {
		err = err.WithDetail(cause.Error())
	}
	return err
}

// InvalidMessage rejects valid JSON that is not a JSON-RPC 2.0 message
func InvalidMessage(detail string) MCPError {
	err := NewError(CodeInvalidRequest, "Not a valid JSON-RPC message", CategoryProtocol, SeverityWarning)
	if detail != "" {
		err = err.WithDetail(detail)
	}
	return err
}

// BatchNotSupported rejects JSON array payloads
func BatchNotSupported() MCPError {
	return NewError(
		CodeInvalidRequest,
		"Batch requests are not supported",
		CategoryProtocol,
		SeverityWarning,
	)
}

// DuplicateRequestID rejects a request whose id is already in flight on
// the same session
func DuplicateRequestID(id interface{}) MCPError {
	return NewErrorf(
		CodeInvalidRequest,
		CategoryProtocol,
		SeverityWarning,
		"Invalid Request: request id %v is already in flight", id,
	)
}

// SessionHeaderRequired rejects stateful traffic without an
// Mcp-Session-Id header
func SessionHeaderRequired() MCPError {
	return NewError(
		CodeTransportError,
		"Bad Request: Mcp-Session-Id header is required",
		CategorySession,
		SeverityWarning,
	)
}

// SessionNotFound reports an unknown or expired session id
func SessionNotFound(sessionID string) MCPError {
	return NewError(
		CodeTransportError,
		"Session not found",
		CategoryNotFound,
		SeverityWarning,
	).WithData(&SessionErrorData{SessionID: sessionID})
}

// SessionTerminated reports traffic addressed to a terminated session,
// and resolves the session's in-flight requests during teardown
func SessionTerminated(sessionID string) MCPError {
	return NewError(
		CodeTransportError,
		"Session terminated",
		CategorySession,
		SeverityWarning,
	).WithData(&SessionErrorData{SessionID: sessionID})
}

// OriginForbidden rejects a request from a disallowed Origin
func OriginForbidden(origin string) MCPError {
	return NewError(
		CodeTransportError,
		"Forbidden: Origin not allowed",
		CategoryAuth,
		SeverityWarning,
	).WithDetail(fmt.Sprintf("origin %q is not in the allowed set", origin))
}

// MethodNotAllowed rejects HTTP methods other than POST, GET, DELETE
func MethodNotAllowed(method string) MCPError {
	return NewErrorf(
		CodeTransportError,
		CategoryValidation,
		SeverityWarning,
		"Method Not Allowed: %s", method,
	)
}

// UnsupportedProtocolVersion rejects an unrecognized MCP-Protocol-Version header
func UnsupportedProtocolVersion(requested string, supported []string) MCPError {
	return NewErrorf(
		CodeTransportError,
		CategoryValidation,
		SeverityWarning,
		"Bad Request: Unsupported protocol version %q", requested,
	).WithData(&VersionErrorData{Requested: requested, Supported: supported})
}

// InvalidLastEventID rejects a Last-Event-ID header that does not parse
// as an event id issued by this transport
func InvalidLastEventID(value string) MCPError {
	return NewErrorf(
		CodeTransportError,
		CategoryValidation,
		SeverityWarning,
		"Bad Request: Invalid Last-Event-ID %q", value,
	)
}

// RequestTimedOut reports a request that outlived the per-request deadline
func RequestTimedOut(timeoutMs int64) MCPError {
	return NewError(
		CodeRequestTimeout,
		"Request timed out",
		CategoryTimeout,
		SeverityWarning,
	).WithData(&TimeoutErrorData{Timeout: timeoutMs})
}

// Unauthorized rejects a request without acceptable credentials
func Unauthorized(detail string) MCPError {
	err := NewError(
		CodeTransportError,
		"Unauthorized",
		CategoryAuth,
		SeverityWarning,
	)
	if detail != "" {
		err = err.WithDetail(detail)
	}
	return err
}

// ScopeForbidden rejects credentials that verify but lack required scopes
func ScopeForbidden(required, missing []string) MCPError {
	return NewError(
		CodeForbidden,
		"Forbidden: insufficient scope",
		CategoryAuth,
		SeverityWarning,
	).WithData(&ScopeErrorData{Required: required, Missing: missing})
}

// TooManyRequests rejects a sender that exceeded the configured rate limit
func TooManyRequests(retryAfterSeconds int) MCPError {
	return NewErrorf(
		CodeTransportError,
		CategoryTransport,
		SeverityWarning,
		"Too Many Requests: retry after %ds", retryAfterSeconds,
	)
}

// StreamClosed reports a write against a stream that already ended
func StreamClosed(streamID string) MCPError {
	return NewError(
		CodeTransportError,
		"SSE stream closed",
		CategoryTransport,
		SeverityInfo,
	).WithContext(&Context{StreamID: streamID})
}
