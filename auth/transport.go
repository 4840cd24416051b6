// Package auth moves tokens between HTTP requests/responses and the auth service.
package auth

import (
	"net/http"
	"time"

	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/services"
)

const (
	// AccessCookieName carries the access token
	AccessCookieName = "access_token"
	// RefreshCookieName carries the refresh token
	RefreshCookieName = "refresh_token"

	// AccessHeader carries the access token for non-cookie clients
	AccessHeader = "X-Access-Token"
	// RefreshHeader carries the refresh token for non-cookie clients
	RefreshHeader = "X-Refresh-Token"
	// SessionHeader reports the session id on issue and rotation
	SessionHeader = "X-Session-ID"
)

// Transport reads and writes the token pair. Cookies win over headers on read;
// both are written on issue.
type Transport struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTransport sizes cookie lifetimes from the token policy
func NewTransport(cfg config.AuthConfig) *Transport {
	return &Transport{accessTTL: cfg.AccessTokenTTL, refreshTTL: cfg.RefreshTokenTTL}
}

// AccessToken returns the access token presented with r, or "" when there is none
func (t *Transport) AccessToken(r *http.Request) string {
	return extract(r, AccessCookieName, AccessHeader)
}

// RefreshToken returns the refresh token presented with r, or "" when there is none
func (t *Transport) RefreshToken(r *http.Request) string {
	return extract(r, RefreshCookieName, RefreshHeader)
}

func extract(r *http.Request, cookieName, header string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get(header)
}

// SetTokens delivers a freshly issued pair as cookies and response headers
func (t *Transport) SetTokens(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, tokenCookie(AccessCookieName, pair.AccessToken, int(t.accessTTL.Seconds())))
	http.SetCookie(w, tokenCookie(RefreshCookieName, pair.RefreshToken, int(t.refreshTTL.Seconds())))

	h := w.Header()
	h.Set(AccessHeader, pair.AccessToken)
	h.Set(RefreshHeader, pair.RefreshToken)
	h.Set(SessionHeader, pair.SessionID)
}

// ClearTokens expires both cookies on the client
func (t *Transport) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, tokenCookie(AccessCookieName, "", -1))
	http.SetCookie(w, tokenCookie(RefreshCookieName, "", -1))
}

func tokenCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
