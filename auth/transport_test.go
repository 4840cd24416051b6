package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/services"
)

func newTestTransport() *Transport {
	return NewTransport(config.AuthConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
}

func TestTransport_Extract(t *testing.T) {
	tests := []struct {
		name        string
		cookies     map[string]string
		headers     map[string]string
		wantAccess  string
		wantRefresh string
	}{
		{
			name:        "cookies only",
			cookies:     map[string]string{AccessCookieName: "a-cookie", RefreshCookieName: "r-cookie"},
			wantAccess:  "a-cookie",
			wantRefresh: "r-cookie",
		},
		{
			name:        "headers only",
			headers:     map[string]string{AccessHeader: "a-header", RefreshHeader: "r-header"},
			wantAccess:  "a-header",
			wantRefresh: "r-header",
		},
		{
			name:        "cookie wins over header",
			cookies:     map[string]string{AccessCookieName: "a-cookie"},
			headers:     map[string]string{AccessHeader: "a-header", RefreshHeader: "r-header"},
			wantAccess:  "a-cookie",
			wantRefresh: "r-header",
		},
		{
			name:        "empty cookie falls back to header",
			cookies:     map[string]string{AccessCookieName: ""},
			headers:     map[string]string{AccessHeader: "a-header"},
			wantAccess:  "a-header",
			wantRefresh: "",
		},
		{
			name: "nothing presented",
		},
	}

	tr := newTestTransport()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.cookies {
				r.AddCookie(&http.Cookie{Name: k, Value: v})
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.wantAccess, tr.AccessToken(r))
			assert.Equal(t, tt.wantRefresh, tr.RefreshToken(r))
		})
	}
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestTransport_SetTokens(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestTransport().SetTokens(rec, &services.TokenPair{
		AccessToken:  "acc",
		RefreshToken: "ref",
		SessionID:    "sid-1",
	})

	assert.Equal(t, "acc", rec.Header().Get(AccessHeader))
	assert.Equal(t, "ref", rec.Header().Get(RefreshHeader))
	assert.Equal(t, "sid-1", rec.Header().Get(SessionHeader))

	cookies := cookiesByName(rec)
	require.Len(t, cookies, 2)

	access := cookies[AccessCookieName]
	require.NotNil(t, access)
	assert.Equal(t, "acc", access.Value)
	assert.Equal(t, 900, access.MaxAge)

	refresh := cookies[RefreshCookieName]
	require.NotNil(t, refresh)
	assert.Equal(t, "ref", refresh.Value)
	assert.Equal(t, 30*24*3600, refresh.MaxAge)

	for _, c := range cookies {
		assert.True(t, c.HttpOnly, c.Name)
		assert.True(t, c.Secure, c.Name)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite, c.Name)
		assert.Equal(t, "/", c.Path, c.Name)
	}
}

func TestTransport_ClearTokens(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestTransport().ClearTokens(rec)

	cookies := cookiesByName(rec)
	require.Len(t, cookies, 2)
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := cookies[name]
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
	}
}
