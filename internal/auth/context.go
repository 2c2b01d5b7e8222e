// Package auth carries the authenticated user through request contexts.
//
// Both middleware and handler import it, so it must not import either.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

// GetUser retrieves the authenticated user from the context.
// Returns nil if no user is authenticated.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest is GetUser on the request's context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// UserID returns the authenticated user's ID, or false when there is none.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	user := GetUser(ctx)
	if user == nil {
		return uuid.Nil, false
	}
	return user.ID, true
}

// SetUser stores a user in the context.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
