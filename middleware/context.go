package middleware

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/upb/sessionauth/models"
)

// Context key type to avoid collisions
type contextKey string

// UserKey is the context key for the authenticated principal
const UserKey contextKey = "user"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// GetUserFromContext retrieves the authenticated principal from context
func GetUserFromContext(ctx context.Context) *models.User {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*models.User); ok {
			return user
		}
	}
	return nil
}

// WithUser adds the authenticated principal to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
