package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/sessionauth/auth"
	"github.com/upb/sessionauth/middleware"
	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/services"
	"github.com/upb/sessionauth/utils"
	"go.uber.org/zap"
)

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
}

// SessionResponse describes the session a token pair is bound to. Tokens travel in cookies and headers only.
type SessionResponse struct {
	User             *models.User `json:"user,omitempty"`
	SessionID        string       `json:"session_id"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

// RevokeResponse is returned by the admin revoke endpoint
type RevokeResponse struct {
	TelegramID int64 `json:"telegram_id"`
	Revoked    int   `json:"revoked"`
}

// AuthHandler handles the session lifecycle endpoints
type AuthHandler struct {
	service   *services.AuthService
	transport *auth.Transport
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service *services.AuthService, transport *auth.Transport, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		transport: transport,
		logger:    logger,
	}
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.TelegramID, r.UserAgent())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.transport.SetTokens(w, pair)
	h.writeSession(w, user, pair)
}

// Refresh handles GET|POST /v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.service.Refresh(r.Context(), h.transport.RefreshToken(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.transport.SetTokens(w, pair)
	h.writeSession(w, nil, pair)
}

// Logout handles POST /v1/auth/logout. Cookies are cleared even when the token is unusable.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.service.Logout(r.Context(), h.transport.AccessToken(r))
	h.transport.ClearTokens(w)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "Logged out"}); err != nil {
		h.logger.Error("failed to write logout response", zap.Error(err))
	}
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	if err := utils.WriteOK(w, user); err != nil {
		h.logger.Error("failed to write user response", zap.Error(err))
	}
}

// RevokeUserSessions handles POST /v1/admin/users/{telegram_id}/sessions/revoke
func (h *AuthHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	telegramID, err := utils.ParsePositiveID(chi.URLParam(r, "telegram_id"), "telegram_id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	count, err := h.service.RevokeAll(r.Context(), telegramID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if admin := middleware.GetUserFromContext(r.Context()); admin != nil {
		h.logger.Info("admin revoked user sessions",
			zap.Int64("admin_id", admin.ID),
			zap.Int64("telegram_id", telegramID),
			zap.Int("revoked", count))
	}
	if err := utils.WriteOK(w, RevokeResponse{TelegramID: telegramID, Revoked: count}); err != nil {
		h.logger.Error("failed to write revoke response", zap.Error(err))
	}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, user *models.User, pair *services.TokenPair) {
	resp := SessionResponse{
		User:             user,
		SessionID:        pair.SessionID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write session response", zap.Error(err))
	}
}
