package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "user_not_found", "user not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "user_not_found", domainErr.Code)
	assert.Equal(t, "user not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "error with wrapped error",
			err:     ErrStoreUnavailable.Wrap(errors.New("dial tcp: refused")),
			wantMsg: "store_unavailable: session store unavailable (dial tcp: refused)",
		},
		{
			name:    "error without wrapped error",
			err:     ErrSessionRevoked,
			wantMsg: "session_revoked: session has been revoked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := ErrInternal.Wrap(baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
	assert.ErrorIs(t, domainErr, baseErr)
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same code", ErrSessionRevoked.Wrap(errors.New("cause")), ErrSessionRevoked, true},
		{"same type different code", ErrSessionRevoked, ErrSessionExpired, false},
		{"wrapped in fmt", fmt.Errorf("refresh: %w", ErrTokenExpired), ErrTokenExpired, true},
		{"not a domain error", ErrSessionRevoked, errors.New("regular error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestTaxonomyCodesAreDistinct(t *testing.T) {
	all := []*DomainError{
		ErrTokenAbsent, ErrTokenMalformed, ErrTokenExpired, ErrInvalidClaims,
		ErrSessionNotFound, ErrSessionRevoked, ErrSessionExpired, ErrSessionMismatch,
		ErrPrincipalNotFound, ErrStoreUnavailable,
	}
	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
		for _, other := range all {
			assert.Equal(t, e == other, errors.Is(e, other), "%s vs %s", e.Code, other.Code)
		}
	}
}

func TestDomainError_WrapLeavesSentinelUntouched(t *testing.T) {
	wrapped := ErrSessionMismatch.Wrap(errors.New("cause")).WithDetail("session_id", "s1")

	assert.Equal(t, "s1", wrapped.Details["session_id"])
	assert.Nil(t, ErrSessionMismatch.Err)
	assert.Empty(t, ErrSessionMismatch.Details)
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "invalid_input", "validation error", nil)

	err.WithDetail("field", "telegram_id").WithDetail("value", -1)

	assert.Equal(t, "telegram_id", err.Details["field"])
	assert.Equal(t, -1, err.Details["value"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", ErrUserNotFound, IsNotFoundError, true},
		{"wrapped not found", fmt.Errorf("wrapped: %w", ErrUserNotFound), IsNotFoundError, true},
		{"session not found is unauthorized", ErrSessionNotFound, IsNotFoundError, false},
		{"validation", ErrInvalidInput, IsValidationError, true},
		{"unauthorized", ErrTokenAbsent, IsUnauthorizedError, true},
		{"principal not found is unauthorized", ErrPrincipalNotFound, IsUnauthorizedError, true},
		{"forbidden", ErrForbidden, IsForbiddenError, true},
		{"unavailable", ErrStoreUnavailable.Wrap(errors.New("timeout")), IsUnavailableError, true},
		{"internal", WrapInternal("boom", errors.New("x")), IsInternalError, true},
		{"regular error", errors.New("regular"), IsUnauthorizedError, false},
		{"nil error", nil, IsNotFoundError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorAccessors(t *testing.T) {
	err := fmt.Errorf("ctx: %w", ErrSessionExpired.Wrap(nil).WithDetail("session_id", "abc"))

	assert.Equal(t, ErrorTypeUnauthorized, GetErrorType(err))
	assert.Equal(t, "session_expired", GetErrorCode(err))
	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "abc", details["session_id"])

	plain := errors.New("plain")
	assert.Equal(t, ErrorType(""), GetErrorType(plain))
	assert.Equal(t, "", GetErrorCode(plain))
	assert.Nil(t, GetErrorDetails(plain))
}
