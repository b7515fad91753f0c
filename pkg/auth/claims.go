package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT claims structure issued by the gateway.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, ...)
// and adds the role list the engine uses for permission checks.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Role returns the strongest role carried by the claims, defaulting to
// standard when no recognized role is present.
func (c *Claims) Role() Role {
	role := RoleStandard
	for _, raw := range c.Roles {
		parsed, err := ParseRole(raw)
		if err != nil {
			continue
		}
		switch {
		case parsed == RoleAdmin:
			return RoleAdmin
		case parsed == RolePremium && role == RoleStandard:
			role = RolePremium
		}
	}
	return role
}

// ActorID returns the caller UUID from the subject claim.
func (c *Claims) ActorID() (uuid.UUID, error) {
	if c.Subject == "" {
		return uuid.Nil, fmt.Errorf("missing subject in claims")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject format: %w", err)
	}
	return id, nil
}

// ParseToken validates an HMAC-signed token and returns its claims.
func ParseToken(tokenString, signingKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
