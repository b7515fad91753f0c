package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/auth"
)

// Caller is the resolved identity of a request.
type Caller struct {
	ID   uuid.UUID // uuid.Nil for anonymous callers
	Role auth.Role
}

// RequestAuth resolves bearer tokens to caller roles. Requests without a
// valid token are treated as anonymous standard callers; role enforcement
// itself happens in the service layer.
type RequestAuth struct {
	signingKey string
	logger     *zap.Logger
}

// NewRequestAuth creates a RequestAuth. An empty signing key disables token
// parsing entirely, leaving every caller standard.
func NewRequestAuth(signingKey string, logger *zap.Logger) *RequestAuth {
	return &RequestAuth{signingKey: signingKey, logger: logger.Named("request-auth")}
}

// Caller resolves the request's bearer token.
func (a *RequestAuth) Caller(r *http.Request) Caller {
	anonymous := Caller{Role: auth.RoleStandard}

	if a.signingKey == "" {
		return anonymous
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return anonymous
	}

	claims, err := auth.ParseToken(token, a.signingKey)
	if err != nil {
		a.logger.Debug("rejecting bearer token", zap.Error(err))
		return anonymous
	}

	caller := Caller{Role: claims.Role()}
	if id, err := claims.ActorID(); err == nil {
		caller.ID = id
	}
	return caller
}
