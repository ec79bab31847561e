// Package session keeps the server side of login sessions in Redis so a
// logout takes effect before the access token expires.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/locallink/locallink-backend/pkg/config"
	redisclient "github.com/locallink/locallink-backend/pkg/redis"
)

// ErrNoSession means the access id was never issued, expired or was revoked.
var ErrNoSession = errors.New("session not found")

var errBlankID = errors.New("access id is required")

// AccessSessionChecker is what the auth middleware needs: is this token's
// session still open, and does it belong to the actor the token names.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID, actorID string) (bool, error)
}

// Session is the record kept per access token.
type Session struct {
	ActorID   string    `json:"actorId"`
	StartedAt time.Time `json:"startedAt"`
}

type backend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Manager stores one Session per access id for as long as the token lives.
type Manager struct {
	kv  backend
	ttl time.Duration
}

// NewManager builds a manager whose sessions expire with the access token.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newManager(client, cfg.TokenTTL())
}

func newManager(kv backend, ttl time.Duration) (*Manager, error) {
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Manager{kv: kv, ttl: ttl}, nil
}

// NewAccessID mints the id shared by the JWT jti and the session key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", errBlankID
	}
	return m.kv.AccessSessionKey(accessID), nil
}

// Start opens the session for accessID on behalf of actorID.
func (m *Manager) Start(ctx context.Context, accessID, actorID string, startedAt time.Time) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	if actorID == "" {
		return errors.New("actor id is required")
	}
	raw, err := json.Marshal(Session{ActorID: actorID, StartedAt: startedAt.UTC()})
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, key, string(raw), m.ttl)
}

// Lookup returns the open session for accessID or ErrNoSession.
func (m *Manager) Lookup(ctx context.Context, accessID string) (Session, error) {
	key, err := m.key(accessID)
	if err != nil {
		return Session{}, err
	}
	raw, err := m.kv.Get(ctx, key)
	switch {
	case errors.Is(err, redislib.Nil):
		return Session{}, ErrNoSession
	case err != nil:
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.ActorID == "" {
		return Session{}, fmt.Errorf("session %s: unreadable record", accessID)
	}
	return s, nil
}

// HasSession reports whether accessID is open and was started by actorID.
func (m *Manager) HasSession(ctx context.Context, accessID, actorID string) (bool, error) {
	s, err := m.Lookup(ctx, accessID)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.ActorID == actorID, nil
}

// Revoke closes the session. Revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.kv.Del(ctx, key)
}
