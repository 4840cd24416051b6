package tokens

import (
	"fmt"
	"time"
)

// ClaimValidator checks the semantics of decoded claims.
type ClaimValidator struct {
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// NewClaimValidator returns a validator for the given issuer, audience and iat skew tolerance.
func NewClaimValidator(issuer, audience string, skew time.Duration, now func() time.Time) *ClaimValidator {
	if now == nil {
		now = time.Now
	}
	return &ClaimValidator{issuer: issuer, audience: audience, skew: skew, now: now}
}

// Validate runs the checks in order and stops at the first failure.
func (v *ClaimValidator) Validate(claims *Claims, expected Kind) (*Claims, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: no claims", ErrInvalidClaims)
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: sid and sub are required", ErrInvalidClaims)
	}
	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidClaims, expected, claims.Kind)
	}
	if claims.Issuer != v.issuer || claims.Audience != v.audience {
		return nil, fmt.Errorf("%w: issuer or audience mismatch", ErrInvalidClaims)
	}

	now := v.now()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: iat is required", ErrInvalidClaims)
	}
	if claims.IssuedAt.Time.After(now.Add(v.skew)) {
		return nil, ErrClockSkew
	}
	return claims, nil
}
