package middleware

import (
	"context"
	"time"

	"github.com/locallink/locallink-backend/pkg/enums"
)

type identityKey struct{}

// Identity is what Auth learned from the bearer token.
type Identity struct {
	ActorID      string
	Role         enums.ActorRole
	AccessID     string
	SessionStart time.Time
}

// WithIdentity stores id on ctx. Auth calls it once per request; tests use it
// to skip token minting.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext reports false for requests that did not pass Auth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func ActorIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.ActorID
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// AccessIDFromContext returns the token's session id, used by logout.
func AccessIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.AccessID
}

// SessionStartFromContext returns the login time carried by the token.
func SessionStartFromContext(ctx context.Context) time.Time {
	id, _ := IdentityFromContext(ctx)
	return id.SessionStart
}
