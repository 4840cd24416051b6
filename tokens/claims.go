package tokens

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the signature, encoding or payload shape is invalid
	ErrMalformed = errors.New("token malformed")

	// ErrExpired is returned when the exp claim is missing or has passed
	ErrExpired = errors.New("token expired")

	// ErrInvalidClaims is returned when a semantic claim check fails
	ErrInvalidClaims = errors.New("invalid token claims")

	// ErrClockSkew is returned for tokens issued further in the future than the skew tolerance.
	// It matches ErrInvalidClaims under errors.Is.
	ErrClockSkew = fmt.Errorf("%w: issued in the future", ErrInvalidClaims)
)

// Kind distinguishes the two tokens of a pair
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the complete signed payload. Any other member in the JSON payload is rejected.
type Claims struct {
	Subject   string           `json:"sub"`
	SessionID string           `json:"sid"`
	Issuer    string           `json:"iss"`
	Audience  string           `json:"aud"`
	Kind      Kind             `json:"type"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
}

// UnmarshalJSON decodes strictly so that unknown claims never reach validation.
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("decode claims: %w", err)
	}
	*c = Claims(p)
	return nil
}

// GetExpirationTime implements jwt.Claims
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }

// GetIssuedAt implements jwt.Claims
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) { return c.IssuedAt, nil }

// GetNotBefore implements jwt.Claims; nbf is not part of the schema.
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

// GetIssuer implements jwt.Claims
func (c *Claims) GetIssuer() (string, error) { return c.Issuer, nil }

// GetSubject implements jwt.Claims
func (c *Claims) GetSubject() (string, error) { return c.Subject, nil }

// GetAudience implements jwt.Claims
func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}
