// Package errors provides structured error handling for the Streamable
// HTTP transport. It defines custom error types that map to JSON-RPC
// error codes and provide rich context for debugging and programmatic
// error handling.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category represents the type/category of an error for classification and handling
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryNotFound   Category = "not_found"
	CategoryTransport  Category = "transport"
	CategorySession    Category = "session"
	CategoryInternal   Category = "internal"
	CategoryTimeout    Category = "timeout"
	CategoryCancelled  Category = "cancelled"
	CategoryProtocol   Category = "protocol"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context provides additional context about where and when an error occurred
type Context struct {
	RequestID  string                 `json:"request_id,omitempty"`
	Method     string                 `json:"method,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	StreamID   string                 `json:"stream_id,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Component  string                 `json:"component,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
}

// MCPError defines the interface for all transport errors
type MCPError interface {
	error

	// Code returns the JSON-RPC error code
	Code() int

	// Message returns a human-readable error message
	Message() string

	// Details returns detailed technical description for debugging
	Details() string

	// Data returns structured data attached to the error, serialized
	// into the JSON-RPC error's data field
	Data() interface{}

	// Category returns the error category for programmatic handling
	Category() Category

	// Severity returns how critical the error is
	Severity() Severity

	// Context returns contextual information about the error
	Context() *Context

	// WithContext returns a copy of the error with added context
	WithContext(ctx *Context) MCPError

	// WithDetail returns a copy of the error with added detail
	WithDetail(detail string) MCPError

	// WithData returns a copy of the error with attached data
	WithData(data interface{}) MCPError

	// Unwrap returns the underlying cause, if any
	Unwrap() error

	// ToJSON returns a map suitable for structured logging
	ToJSON() map[string]interface{}
}

// baseError is the canonical MCPError implementation
type baseError struct {
	code     int
	message  string
	details  string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

// NewError creates a new MCPError with the given properties
func NewError(code int, message string, category Category, severity Severity) MCPError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// NewErrorf creates a new MCPError with a formatted message
func NewErrorf(code int, category Category, severity Severity, format string, args ...interface{}) MCPError {
	return NewError(code, fmt.Sprintf(format, args...), category, severity)
}

// WrapError wraps an existing error with MCP error semantics
func WrapError(cause error, code int, message string, category Category, severity Severity) MCPError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
		cause:    cause,
	}
}

// WrapErrorf wraps an existing error with a formatted message
func WrapErrorf(cause error, code int, category Category, severity Severity, format string, args ...interface{}) MCPError {
	return WrapError(cause, code, fmt.Sprintf(format, args...), category, severity)
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Code() int           { return e.code }
func (e *baseError) Message() string     { return e.message }
func (e *baseError) Details() string     { return e.details }
func (e *baseError) Data() interface{}   { return e.data }
func (e *baseError) Category() Category  { return e.category }
func (e *baseError) Severity() Severity  { return e.severity }
func (e *baseError) Context() *Context   { return e.context }
func (e *baseError) Unwrap() error       { return e.cause }

func (e *baseError) WithContext(ctx *Context) MCPError {
	clone := *e
	if ctx != nil {
		merged := *ctx
		if merged.Timestamp.IsZero() && e.context != nil {
			merged.Timestamp = e.context.Timestamp
		}
		clone.context = &merged
	}
	return &clone
}

func (e *baseError) WithDetail(detail string) MCPError {
	clone := *e
	clone.details = detail
	return &clone
}

func (e *baseError) WithData(data interface{}) MCPError {
	clone := *e
	clone.data = data
	return &clone
}

// ToJSON returns a map representation for structured logging
func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}
	if e.details != "" {
		result["details"] = e.details
	}
	if e.data != nil {
		result["data"] = e.data
	}
	if e.context != nil {
		result["context"] = e.context
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}
	return result
}

// MarshalJSON implements json.Marshaler
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// AsMCPError extracts an MCPError from an error chain
func AsMCPError(err error) (MCPError, bool) {
	for err != nil {
		if mcpErr, ok := err.(MCPError); ok {
			return mcpErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// IsMCPError reports whether the error chain contains an MCPError
func IsMCPError(err error) bool {
	_, ok := AsMCPError(err)
	return ok
}

// IsCategory reports whether the error belongs to the given category
func IsCategory(err error, category Category) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Category() == category
	}
	return false
}

// IsCode reports whether the error carries the given JSON-RPC code
func IsCode(err error, code int) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Code() == code
	}
	return false
}
