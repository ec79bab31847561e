package auth

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/locallink/locallink-backend/pkg/config"
)

// Audience is stamped on every access token; tokens minted for anything else
// are refused.
const Audience = "locallink-app"

// clockSkew tolerated between API instances when checking exp and iat.
const clockSkew = 30 * time.Second

var (
	// ErrTokenExpired means the token was valid but its lifetime is over.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid covers every other rejection.
	ErrTokenInvalid = errors.New("access token invalid")
)

var signingMethod = jwt.SigningMethodHS256

func signingKey(cfg config.JWTConfig) ([]byte, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	}
	return []byte(cfg.Secret), nil
}

// MintAccessToken signs a token for payload that lives for the configured
// TTL from now. An empty JTI gets a fresh one; a zero SessionStart means the
// session starts now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return "", err
	}
	ttl := cfg.TokenTTL()
	if ttl <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	actor := strings.TrimSpace(payload.ActorID)
	if actor == "" {
		return "", errors.New("actor id is required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", payload.Role)
	}

	jti := cmp.Or(strings.TrimSpace(payload.JTI), uuid.NewString())
	start := payload.SessionStart
	if start.IsZero() || start.After(now) {
		start = now
	}

	claims := AccessTokenClaims{
		ActorID:      actor,
		Role:         payload.Role,
		SessionStart: start.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   actor,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer, audience and lifetime and
// returns the claims. Failures wrap ErrTokenExpired or ErrTokenInvalid.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)

	claims := &AccessTokenClaims{}
	_, err = parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case claims.ID == "" || claims.ActorID == "" || claims.ActorID != claims.Subject:
		return nil, fmt.Errorf("%w: missing identity claims", ErrTokenInvalid)
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
