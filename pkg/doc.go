// Package pkg groups the sub-packages of the Streamable HTTP MCP
// server implementation.
//
// The transport lives in pkg/transport; session state and stores in
// pkg/session; wire types in pkg/protocol; the runnable server facade
// in pkg/server. Authentication, observability, logging, and the error
// taxonomy each have their own package. See the module root for an
// overview and usage examples.
package pkg
