package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Data is the persistable projection of a session. It carries no
// streams, pending requests, or timers, so it can round-trip through
// any key-value store.
type Data struct {
	ID              string            `json:"id"`
	ProtocolVersion string            `json:"protocolVersion"`
	Initialized     bool              `json:"initialized"`
	CreatedAt       time.Time         `json:"createdAt"`
	LastActivity    time.Time         `json:"lastActivity"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Store persists session data with a TTL. Implementations must treat
// Set as an upsert that resets the TTL, and must return ErrNotFound
// from Get once the TTL has elapsed. Delete is idempotent.
type Store interface {
	Get(ctx context.Context, id string) (*Data, error)
	Set(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}
