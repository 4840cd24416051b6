package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an error. Handlers map it to a status code.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Code names the exact condition; several codes share one Type.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause. Sentinels are never mutated.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	cp.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	return &cp
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Token errors
	ErrTokenAbsent    = NewDomainError(ErrorTypeUnauthorized, "token_absent", "no token presented", nil)
	ErrTokenMalformed = NewDomainError(ErrorTypeUnauthorized, "token_malformed", "token is malformed or has a bad signature", nil)
	ErrTokenExpired   = NewDomainError(ErrorTypeUnauthorized, "token_expired", "token has expired", nil)
	ErrInvalidClaims  = NewDomainError(ErrorTypeUnauthorized, "invalid_claims", "token claims are invalid", nil)

	// Session errors
	ErrSessionNotFound = NewDomainError(ErrorTypeUnauthorized, "session_not_found", "session not found", nil)
	ErrSessionRevoked  = NewDomainError(ErrorTypeUnauthorized, "session_revoked", "session has been revoked", nil)
	ErrSessionExpired  = NewDomainError(ErrorTypeUnauthorized, "session_expired", "session has expired", nil)
	ErrSessionMismatch = NewDomainError(ErrorTypeUnauthorized, "session_mismatch", "session does not belong to the token subject", nil)

	ErrPrincipalNotFound = NewDomainError(ErrorTypeUnauthorized, "principal_not_found", "principal not found", nil)
	ErrUserNotFound      = NewDomainError(ErrorTypeNotFound, "user_not_found", "user not found", nil)

	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid_input", "invalid input", nil)
	ErrForbidden    = NewDomainError(ErrorTypeForbidden, "forbidden", "access forbidden", nil)

	ErrStoreUnavailable = NewDomainError(ErrorTypeUnavailable, "store_unavailable", "session store unavailable", nil)
	ErrInternal         = NewDomainError(ErrorTypeInternal, "internal", "internal server error", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsUnavailableError checks if an error is a backing store failure
func IsUnavailableError(err error) bool { return hasType(err, ErrorTypeUnavailable) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the code of a domain error, or empty string if not a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, ErrInternal.Code, message, err)
}
