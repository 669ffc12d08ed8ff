package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AdminSessionKey(sessionID string) string {
	return fmt.Sprintf("sess:%s", sessionID)
}

func newTestManager(t *testing.T, store *mockStore) *Manager {
	t.Helper()
	m, err := NewManager(store, config.JWTConfig{Secret: "secret", Issuer: "wdir-license", SessionTTLHours: 168})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestManagerCreateVerifyRevoke(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(t, store)
	ctx := context.Background()

	token, principal, err := manager.Create(ctx, "Ops@WDIRApp.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := store.AdminSessionKey(principal.SessionID)
	if store.data[key] != "ops@wdirapp.com" {
		t.Fatalf("expected session stored under %s, got %q", key, store.data[key])
	}
	if store.ttls[key] != 168*time.Hour {
		t.Fatalf("expected 7 day ttl, got %v", store.ttls[key])
	}

	verified, err := manager.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Email != "ops@wdirapp.com" || verified.SessionID != principal.SessionID {
		t.Fatalf("unexpected principal %+v", verified)
	}

	if err := manager.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := manager.Verify(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session after revoke, got %v", err)
	}
}

func TestManagerVerifyRejectsGarbage(t *testing.T) {
	manager := newTestManager(t, newMockStore())
	if _, err := manager.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session, got %v", err)
	}
	if err := manager.Revoke(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session on revoke, got %v", err)
	}
}

func TestManagerVerifyRejectsSwappedSession(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(t, store)
	ctx := context.Background()

	token, principal, err := manager.Create(ctx, "ops@wdirapp.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.data[store.AdminSessionKey(principal.SessionID)] = "someone@else.com"

	if _, err := manager.Verify(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected mismatch to be rejected, got %v", err)
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager(nil, config.JWTConfig{Secret: "s", SessionTTLHours: 1}); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(newMockStore(), config.JWTConfig{Secret: "s"}); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := NewManager(newMockStore(), config.JWTConfig{SessionTTLHours: 1}); err == nil {
		t.Fatal("expected secret error")
	}
}
