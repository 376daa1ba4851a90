package errors

// JSON-RPC 2.0 Standard Error Codes
// These map to the existing protocol error codes
const (
	// CodeParseError indicates invalid JSON was received by the server
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the JSON sent is not a valid Request
	// object; batch arrays are reported under this code as well
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist / is not available
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// CodeInternalError indicates an internal JSON-RPC error
	CodeInternalError int = -32603
)

// MCP Transport Error Codes
// The Streamable HTTP transport keeps its wire surface to three codes
const (
	// CodeTransportError is the generic transport/session failure code:
	// content negotiation, payload limits, origin rejection, unknown or
	// terminated sessions, unsupported protocol versions
	CodeTransportError int = -32000

	// CodeRequestTimeout indicates a request exceeded the per-request
	// deadline before the handler produced a response
	CodeRequestTimeout int = -32001

	// CodeForbidden indicates the caller's credentials lack a required scope
	CodeForbidden int = -32002
)

// ErrorCodeInfo provides metadata about an error code
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their metadata
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError: {
		Code:        CodeParseError,
		Name:        "ParseError",
		Description: "Invalid JSON was received by the server",
		Category:    CategoryProtocol,
		Severity:    SeverityError,
	},
	CodeInvalidRequest: {
		Code:        CodeInvalidRequest,
		Name:        "InvalidRequest",
		Description: "The JSON sent is not a valid JSON-RPC message, or is a batch",
		Category:    CategoryProtocol,
		Severity:    SeverityError,
	},
	CodeMethodNotFound: {
		Code:        CodeMethodNotFound,
		Name:        "MethodNotFound",
		Description: "The method does not exist or is not available",
		Category:    CategoryProtocol,
		Severity:    SeverityError,
	},
	CodeInvalidParams: {
		Code:        CodeInvalidParams,
		Name:        "InvalidParams",
		Description: "Invalid method parameters",
		Category:    CategoryValidation,
		Severity:    SeverityError,
	},
	CodeInternalError: {
		Code:        CodeInternalError,
		Name:        "InternalError",
		Description: "Internal JSON-RPC error",
		Category:    CategoryInternal,
		Severity:    SeverityCritical,
	},
	CodeTransportError: {
		Code:        CodeTransportError,
		Name:        "TransportError",
		Description: "Transport or session failure",
		Category:    CategoryTransport,
		Severity:    SeverityError,
	},
	CodeRequestTimeout: {
		Code:        CodeRequestTimeout,
		Name:        "RequestTimeout",
		Description: "The request exceeded the configured timeout",
		Category:    CategoryTimeout,
		Severity:    SeverityWarning,
	},
	CodeForbidden: {
		Code:        CodeForbidden,
		Name:        "Forbidden",
		Description: "The credentials lack a required scope",
		Category:    CategoryAuth,
		Severity:    SeverityWarning,
	},
}

// GetErrorCodeInfo returns metadata for an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name for an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeDescription returns the description for an error code
func GetErrorCodeDescription(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Description
	}
	return "Unknown error code"
}

// GetErrorCodeCategory returns the category for an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity for an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}

// ListErrorCodes returns all registered error codes
func ListErrorCodes() []ErrorCodeInfo {
	codes := make([]ErrorCodeInfo, 0, len(errorCodeRegistry))
	for _, info := range errorCodeRegistry {
		codes = append(codes, info)
	}
	return codes
}

// IsStandardJSONRPCCode reports whether the code is a standard JSON-RPC 2.0 code
func IsStandardJSONRPCCode(code int) bool {
	switch code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams, CodeInternalError:
		return true
	}
	return false
}

// IsMCPSpecificCode reports whether the code is MCP transport specific
func IsMCPSpecificCode(code int) bool {
	switch code {
	case CodeTransportError, CodeRequestTimeout, CodeForbidden:
		return true
	}
	return false
}
