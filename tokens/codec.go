package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/sessionauth/config"
)

// Codec signs and verifies bearer tokens with one process-wide HMAC secret.
type Codec struct {
	secret   []byte
	method   jwt.SigningMethod
	issuer   string
	audience string
	now      func() time.Time
	strict   *jwt.Parser
	lenient  *jwt.Parser
}

// NewCodec builds a codec from the auth policy. now may be nil to use time.Now.
func NewCodec(cfg config.AuthConfig, now func() time.Time) (*Codec, error) {
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("signing secret is required")
	}
	if now == nil {
		now = time.Now
	}

	methods := []string{method.Alg()}
	return &Codec{
		secret:   []byte(cfg.SecretKey),
		method:   method,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      now,
		strict:   jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithTimeFunc(now)),
		lenient:  jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithoutClaimsValidation()),
	}, nil
}

// Encode issues a signed token of the given kind for subject bound to sessionID.
func (c *Codec) Encode(subject, sessionID string, kind Kind, ttl time.Duration) (string, error) {
	now := c.now()
	claims := &Claims{
		Subject:   subject,
		SessionID: sessionID,
		Issuer:    c.issuer,
		Audience:  c.audience,
		Kind:      kind,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Decode verifies signature and structure and rejects tokens whose exp has passed.
func (c *Codec) Decode(token string) (*Claims, error) {
	return c.parse(c.strict, token)
}

// DecodeIgnoringExpiry verifies signature and structure only.
func (c *Codec) DecodeIgnoringExpiry(token string) (*Claims, error) {
	return c.parse(c.lenient, token)
}

func (c *Codec) parse(parser *jwt.Parser, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}
