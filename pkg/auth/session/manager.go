package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/auth"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	redisclient "github.com/angelmondragon/wdir-license-backend/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

var ErrInvalidSession = errors.New("invalid admin session")

// Principal is the authenticated admin behind a session token.
type Principal struct {
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// Manager issues admin session tokens and keeps the live session ids in Redis
// so a token can be revoked before it expires.
type Manager struct {
	store redisclient.SessionStore
	cfg   config.JWTConfig
	now   func() time.Time
}

// Verifier is the read-only surface needed by middleware.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(store redisclient.SessionStore, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.SessionTTL() <= 0 {
		return nil, fmt.Errorf("admin session ttl must be positive")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}, nil
}

// Create starts a session for email and returns the bearer token.
func (m *Manager) Create(ctx context.Context, email string) (string, *Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, fmt.Errorf("email is required")
	}

	sessionID := uuid.NewString()
	token, claims, err := auth.MintAdminToken(m.cfg, m.now(), email, sessionID)
	if err != nil {
		return "", nil, err
	}
	if err := m.store.Set(ctx, m.store.AdminSessionKey(sessionID), email, m.cfg.SessionTTL()); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return token, &Principal{Email: email, SessionID: sessionID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the token signature and that its session is still live.
func (m *Manager) Verify(ctx context.Context, token string) (*Principal, error) {
	claims, err := auth.ParseAdminToken(m.cfg, strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidSession
	}

	stored, err := m.store.Get(ctx, m.store.AdminSessionKey(claims.ID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !strings.EqualFold(stored, claims.Email) {
		return nil, ErrInvalidSession
	}

	return &Principal{Email: claims.Email, SessionID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke ends the session tied to the token. Unknown sessions are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := auth.ParseAdminToken(m.cfg, strings.TrimSpace(token))
	if err != nil {
		return ErrInvalidSession
	}
	return m.store.Del(ctx, m.store.AdminSessionKey(claims.ID))
}
