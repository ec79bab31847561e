package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/locallink/locallink-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID string
	Role    enums.ActorRole
	JTI     string
	// SessionStart is the login time; the market stream suppresses
	// signals for anything created before it.
	SessionStart time.Time
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	ActorID      string          `json:"actor_id"`
	Role         enums.ActorRole `json:"role"`
	SessionStart int64           `json:"session_start"`
	jwt.RegisteredClaims
}

// SessionStartTime returns the login time carried by the token.
func (c AccessTokenClaims) SessionStartTime() time.Time {
	if c.SessionStart > 0 {
		return time.UnixMilli(c.SessionStart).UTC()
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time.UTC()
	}
	return time.Time{}
}
