package middleware

import (
	"context"
	"net/http"

	"github.com/upb/sessionauth/auth"
	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/services"
	"github.com/upb/sessionauth/utils"
	"go.uber.org/zap"
)

// Authenticator verifies an access token and resolves its principal
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	authenticator Authenticator
	transport     *auth.Transport
	logger        *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authenticator Authenticator, transport *auth.Transport, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		transport:     transport,
		logger:        logger,
	}
}

// RequireAuth rejects requests without a valid access token bound to an active session
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		user, err := m.authenticator.Authenticate(ctx, m.transport.AccessToken(r))
		if err != nil {
			m.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.String("code", services.GetErrorCode(err)),
				zap.Error(err))
			writeAuthFailure(w, err)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.Int64("user_id", user.ID))

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

// RequireAdmin must run after RequireAuth
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		user := GetUserFromContext(ctx)
		if user == nil {
			m.logger.Error("user not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		if !user.IsAdmin {
			m.logger.Warn("insufficient permissions",
				zap.String("request_id", requestID),
				zap.Int64("user_id", user.ID))
			_ = utils.WriteForbidden(w, "Admin privileges required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeAuthFailure keeps the distinct failure code visible to the caller
func writeAuthFailure(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	message := "Authentication required"
	switch {
	case services.IsUnavailableError(err):
		status = http.StatusServiceUnavailable
		message = "Session store unavailable"
	case !services.IsUnauthorizedError(err):
		status = http.StatusInternalServerError
		message = "An internal error occurred"
	}

	var details map[string]interface{}
	if code := services.GetErrorCode(err); code != "" {
		details = map[string]interface{}{"code": code}
	}
	_ = utils.WriteError(w, status, message, details)
}
