// Package protocol implements the JSON-RPC 2.0 message layer of the
// Model Context Protocol as used by the Streamable HTTP transport.
//
// # Package Organization
//
//   - jsonrpc.go: JSON-RPC 2.0 message types, constructors, and error codes
//   - message.go: single-pass classification of inbound payloads and id keying
//   - version.go: protocol revisions and negotiation
//   - mcp.go: method names and the MCP payloads the server engine handles
//
// # Message Classification
//
// Every HTTP POST body is classified by ParseMessage into exactly one of
// four classes before the transport decides how to respond:
//
//   - initialize request: method "initialize" with an id
//   - other request: any method with a non-null id
//   - notification: a method without an id (or with a null id)
//   - response: an id with a result or error and no method
//
// JSON arrays are rejected outright; no revision of the Streamable HTTP
// transport accepts batches.
//
// # Error Codes
//
// Alongside the standard JSON-RPC 2.0 codes, the transport uses three MCP
// codes on the wire: -32000 for transport and session failures, -32001
// for request timeouts, and -32002 for insufficient scope.
package protocol
