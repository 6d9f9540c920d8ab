package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisKVClient struct {
	values  map[string]interface{}
	sets    map[string][]string
	lastTTL time.Duration
	setErr  error
}

func newMockRedisKVClient() *mockRedisKVClient {
	return &mockRedisKVClient{
		values: make(map[string]interface{}),
		sets:   make(map[string][]string),
	}
}

func (m *mockRedisKVClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	m.values[key] = value
	m.lastTTL = expiration
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKVClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (m *mockRedisKVClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
		if _, ok := m.sets[k]; ok {
			delete(m.sets, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (m *mockRedisKVClient) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	for _, member := range members {
		m.sets[key] = append(m.sets[key], member.(string))
	}
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (m *mockRedisKVClient) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(m.sets[key])
	return cmd
}

func (m *mockRedisKVClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestMemoryRefreshTokenStore_ExpiryAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Store(ctx, "short", "a@example.com", 30*time.Millisecond); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := store.Store(ctx, "j1", "a@example.com", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := store.Store(ctx, "j2", "b@example.com", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if ok, _ := store.Exists(ctx, "short"); ok {
		t.Fatalf("expected short-lived token to expire")
	}

	if err := store.RevokeAll(ctx, "a@example.com"); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, "j1"); ok {
		t.Fatalf("expected j1 revoked")
	}
	if ok, _ := store.Exists(ctx, "j2"); !ok {
		t.Fatalf("expected other email's token to survive")
	}
}

func TestRedisRefreshTokenStore_StoreRevokeAll(t *testing.T) {
	ctx := context.Background()
	mock := newMockRedisKVClient()
	store := &redisRefreshTokenStore{client: mock, prefix: "auth:refresh:", timeout: time.Second}

	if err := store.Store(ctx, " j1 ", "Node@Example.com", 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if mock.lastTTL <= 0 {
		t.Fatalf("expected positive TTL fallback, got %v", mock.lastTTL)
	}
	if err := store.Store(ctx, "j2", "node@example.com", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if members := mock.sets["auth:refresh:email:node@example.com"]; len(members) != 2 {
		t.Fatalf("expected both jtis indexed by email, got %+v", members)
	}

	ok, err := store.Exists(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("expected j1 to exist, got %v,%v", ok, err)
	}

	if err := store.RevokeAll(ctx, "node@example.com"); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	for _, jti := range []string{"j1", "j2"} {
		if ok, _ := store.Exists(ctx, jti); ok {
			t.Fatalf("expected %s revoked", jti)
		}
	}
}

func TestRedisRefreshTokenStore_EmptyJTIAndErrors(t *testing.T) {
	ctx := context.Background()
	mock := newMockRedisKVClient()
	mock.setErr = errors.New("set failed")
	store := &redisRefreshTokenStore{client: mock, prefix: "auth:refresh:", timeout: time.Second}

	if err := store.Store(ctx, "", "a@example.com", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	if ok, err := store.Exists(ctx, ""); err != nil || ok {
		t.Fatalf("empty jti exists should be false,nil; got %v,%v", ok, err)
	}
	if err := store.Store(ctx, "j1", "a@example.com", time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
}
