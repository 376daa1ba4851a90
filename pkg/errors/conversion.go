package errors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
)

// ToJSONRPCResponse converts any error to a JSON-RPC error response for
// the given request id. Non-MCP errors become internal errors.
func ToJSONRPCResponse(err error, requestID interface{}) *protocol.Response {
	if mcpErr, ok := AsMCPError(err); ok {
		return protocol.NewErrorResponse(requestID, protocol.ErrorCode(mcpErr.Code()), mcpErr.Message(), mcpErr.Data())
	}
	return protocol.NewErrorResponse(requestID, protocol.InternalError, "Internal error", nil)
}

// ToJSONRPCError converts any error to a JSON-RPC error object
func ToJSONRPCError(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	if mcpErr, ok := AsMCPError(err); ok {
		return &protocol.Error{
			Code:    protocol.ErrorCode(mcpErr.Code()),
			Message: mcpErr.Message(),
			Data:    mcpErr.Data(),
		}
	}
	return &protocol.Error{
		Code:    protocol.InternalError,
		Message: err.Error(),
	}
}

// FromJSONRPCError converts a JSON-RPC error object to an MCPError
func FromJSONRPCError(jsonrpcErr *protocol.Error) MCPError {
	if jsonrpcErr == nil {
		return nil
	}
	code := int(jsonrpcErr.Code)
	err := NewError(code, jsonrpcErr.Message, GetErrorCodeCategory(code), GetErrorCodeSeverity(code))
	if jsonrpcErr.Data != nil {
		err = err.WithData(jsonrpcErr.Data)
	}
	return err
}

// ConvertStandardError converts common Go errors to appropriate MCP errors
func ConvertStandardError(err error) MCPError {
	if err == nil {
		return nil
	}
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr
	}

	switch {
	case err == context.Canceled:
		return WrapError(err, CodeInternalError, "Request cancelled", CategoryCancelled, SeverityInfo)
	case err == context.DeadlineExceeded:
		return WrapError(err, CodeRequestTimeout, "Request timed out", CategoryTimeout, SeverityWarning)
	}

	if _, ok := err.(*json.SyntaxError); ok {
		return ParseFailed(err)
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return WrapError(err, CodeInvalidParams, "Invalid parameter type", CategoryValidation, SeverityWarning)
	}

	return WrapError(err, CodeInternalError, "Internal error", CategoryInternal, SeverityError)
}

// CreateMethodNotFoundError creates a standardized method not found error
func CreateMethodNotFoundError(method string, requestID interface{}) MCPError {
	return NewErrorf(
		CodeMethodNotFound,
		CategoryProtocol,
		SeverityWarning,
		"Method not found: %s", method,
	).WithContext(&Context{
		Method:    method,
		RequestID: fmt.Sprintf("%v", requestID),
	})
}

// CreateInvalidParamsError creates a standardized invalid params error
func CreateInvalidParamsError(method string, requestID interface{}, details string) MCPError {
	message := "Invalid method parameters"
	if details != "" {
		message = fmt.Sprintf("Invalid method parameters: %s", details)
	}
	return NewError(
		CodeInvalidParams,
		message,
		CategoryValidation,
		SeverityWarning,
	).WithContext(&Context{
		Method:    method,
		RequestID: fmt.Sprintf("%v", requestID),
	})
}

// CreateInternalError creates a standardized internal error with optional operation context
func CreateInternalError(operation string, cause error) MCPError {
	message := "Internal error"
	if operation != "" {
		message = fmt.Sprintf("Internal error during %s", operation)
	}
	err := WrapError(cause, CodeInternalError, message, CategoryInternal, SeverityError)
	if operation != "" {
		err = err.WithContext(&Context{Operation: operation})
	}
	return err
}
