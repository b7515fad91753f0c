// Package auth maps caller identity to oracle engine roles. Token issuance
// and session management live in the outer gateway; this package only
// resolves the role claims the engine needs for permission checks.
package auth

import (
	"strings"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
)

// Role is the privilege level of a caller.
type Role string

const (
	// RoleStandard is the default privilege level. Standard callers never
	// see item weights, oracle filter definitions, or internal metadata.
	RoleStandard Role = "standard"
	// RolePremium unlocks premium oracles and full draw payloads.
	RolePremium Role = "premium"
	// RoleAdmin carries premium access plus import/rollback rights.
	RoleAdmin Role = "admin"
)

// ParseRole converts a claim string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStandard:
		return RoleStandard, nil
	case RolePremium:
		return RolePremium, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", apperrors.ErrInvalidRole
	}
}

// CanAccessPremium reports whether the role may draw from premium oracles.
func (r Role) CanAccessPremium() bool {
	return r == RolePremium || r == RoleAdmin
}

// CanViewWeights reports whether draw results keep their weight fields.
func (r Role) CanViewWeights() bool {
	return r == RolePremium || r == RoleAdmin
}

// IsAdmin reports whether the role may run imports and rollbacks.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
