// Package jwttoken issues and verifies the HS256 bearer tokens whose address
// claim becomes the caller identity.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// Claims is the access token payload. Subject mirrors Address.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Signer holds the shared HMAC key and the issuer/audience pair every token
// must carry.
type Signer struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

type Option func(*Signer)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func NewSigner(key, issuer, audience string, opts ...Option) *Signer {
	s := &Signer{
		key:      []byte(key),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for addr that expires after ttl.
func (s *Signer) Issue(addr id.Address, ttl time.Duration) (string, error) {
	if addr.IsNil() {
		return "", dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: addr.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and expiry, and requires a
// well-formed address claim.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if _, err := id.ParseAddress(claims.Address); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateToken lets the auth middleware use a Signer directly.
func (s *Signer) ValidateToken(raw string) (*middleware.JWTClaims, error) {
	claims, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{Address: claims.Address, JTI: claims.ID}, nil
}
