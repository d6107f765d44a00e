package testutil

import (
	"errors"
	"net/http"

	"custodia/internal/platform/middleware"
)

// NameValidator accepts any non-empty bearer token and treats it as the name
// of a test identity, so "Bearer alice" authenticates as Address("alice").
type NameValidator struct{}

func (NameValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	return &middleware.JWTClaims{Address: Address(token).String()}, nil
}

// Authorize sets a bearer token understood by NameValidator.
func Authorize(req *http.Request, name string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+name)
	return req
}
