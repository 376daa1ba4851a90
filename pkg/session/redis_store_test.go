package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("connecting rueidis to miniredis: %v", err)
	}

	store := NewRedisStore(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreSetGet(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	data := &Data{
		ID:              "sess-1",
		ProtocolVersion: "2025-06-18",
		Initialized:     true,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Set(ctx, "sess-1", data, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != data.ID || got.ProtocolVersion != data.ProtocolVersion || !got.Initialized {
		t.Errorf("Get() = %+v, want %+v", got, data)
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	store, _ := newRedisStore(t)

	if _, err := store.Get(context.Background(), "unknown"); err != ErrNotFound {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "sess-1", &Data{ID: "sess-1"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	mr.FastForward(30 * time.Second)
	if _, err := store.Get(ctx, "sess-1"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	mr.FastForward(time.Minute)
	if _, err := store.Get(ctx, "sess-1"); err != ErrNotFound {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "sess-1", &Data{ID: "sess-1"}, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Errorf("Delete() of missing id error = %v, want nil", err)
	}
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("connecting rueidis to miniredis: %v", err)
	}
	store := NewRedisStore(client, WithKeyPrefix("custom:"))
	defer store.Close()

	if err := store.Set(context.Background(), "sess-1", &Data{ID: "sess-1"}, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("custom:sess-1") {
		t.Error("record not stored under the custom prefix")
	}
	if mr.Exists(DefaultRedisKeyPrefix + "sess-1") {
		t.Error("record stored under the default prefix despite override")
	}
}
