package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// DefaultRedisKeyPrefix namespaces session keys in a shared Redis.
const DefaultRedisKeyPrefix = "mcp:session:"

// RedisStoreOption customizes a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the key prefix used for session records.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// RedisStore persists session data in Redis with native TTLs (SET PX),
// so expiry survives process restarts and is shared across replicas.
// Event histories are not stored; resumability stays per-process.
type RedisStore struct {
	client rueidis.Client
	prefix string
}

// NewRedisStore wraps an existing rueidis client. The caller owns the
// client lifecycle unless Close is used.
func NewRedisStore(client rueidis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads and decodes a session record. A Redis nil reply maps to
// ErrNotFound, which covers both unknown ids and elapsed TTLs.
func (s *RedisStore) Get(ctx context.Context, id string) (*Data, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.key(id)).Build())
	raw, err := resp.AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get session %s: %w", id, err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &data, nil
}

// Set stores the JSON-encoded record with a millisecond TTL. Redis
// resets the TTL on every SET, matching the refresh-on-activity
// contract.
func (s *RedisStore) Set(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}

	cmd := s.client.B().Set().Key(s.key(id)).Value(string(raw)).PxMilliseconds(ttl.Milliseconds()).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set session %s: %w", id, err)
	}
	return nil
}

// Delete removes the record. DEL of a missing key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	s.client.Close()
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
