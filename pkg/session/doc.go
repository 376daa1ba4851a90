// Package session holds the per-session runtime state of the Streamable
// HTTP transport: the session lifecycle state machine, live SSE streams
// with their replay histories, in-flight request tracking, and the
// pluggable stores that persist session data across requests.
package session
