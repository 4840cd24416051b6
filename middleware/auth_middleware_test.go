package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/sessionauth/auth"
	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/services"
	"github.com/upb/sessionauth/utils"
)

// MockAuthenticator is a mock implementation of Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newMiddleware(a Authenticator) *AuthMiddleware {
	transport := auth.NewTransport(config.AuthConfig{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	return NewAuthMiddleware(a, transport, zap.NewNop())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRequireAuth(t *testing.T) {
	user := &models.User{ID: 1, TelegramID: 42}

	t.Run("access token header allows request", func(t *testing.T) {
		authenticator := new(MockAuthenticator)
		authenticator.On("Authenticate", mock.Anything, "header-token").Return(user, nil)

		handler := newMiddleware(authenticator).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetUserFromContext(r.Context())
			require.NotNil(t, got)
			assert.Equal(t, int64(42), got.TelegramID)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(auth.AccessHeader, "header-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		authenticator.AssertExpectations(t)
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		authenticator := new(MockAuthenticator)
		authenticator.On("Authenticate", mock.Anything, "cookie-token").Return(user, nil)

		handler := newMiddleware(authenticator).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "cookie-token"})
		req.Header.Set(auth.AccessHeader, "header-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		authenticator.AssertExpectations(t)
	})

	failures := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"absent token", services.ErrTokenAbsent, http.StatusUnauthorized, "token_absent"},
		{"revoked session", services.ErrSessionRevoked.Wrap(nil), http.StatusUnauthorized, "session_revoked"},
		{"expired token", services.ErrTokenExpired.Wrap(errors.New("exp")), http.StatusUnauthorized, "token_expired"},
		{"store down", services.ErrStoreUnavailable.Wrap(errors.New("timeout")), http.StatusServiceUnavailable, "store_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := new(MockAuthenticator)
			authenticator.On("Authenticate", mock.Anything, "").Return(nil, tt.err)

			handler := newMiddleware(authenticator).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			if tt.wantCode == "" {
				assert.Nil(t, body.Details)
			} else {
				assert.Equal(t, tt.wantCode, body.Details["code"])
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		user       *models.User
		wantStatus int
	}{
		{"admin passes", &models.User{ID: 1, IsAdmin: true}, http.StatusOK},
		{"non-admin is forbidden", &models.User{ID: 2}, http.StatusForbidden},
		{"no user in context", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMiddleware(new(MockAuthenticator))
			handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequestIDFromChi(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestIDFromContext(r.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.Empty(t, GetRequestIDFromContext(context.Background()))
}

func TestUserContext(t *testing.T) {
	assert.Nil(t, GetUserFromContext(context.Background()))
	ctx := WithUser(context.Background(), &models.User{ID: 9})
	assert.Equal(t, int64(9), GetUserFromContext(ctx).ID)
}
