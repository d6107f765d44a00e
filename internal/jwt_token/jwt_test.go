package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/testutil"
)

var _ middleware.JWTValidator = (*Signer)(nil)

func newSigner(opts ...Option) *Signer {
	return NewSigner("test-signing-key", "test-issuer", "test-audience", opts...)
}

func TestIssueAndParse(t *testing.T) {
	alice := testutil.Address("alice")
	signer := newSigner()

	token, err := signer.Issue(alice, time.Hour)
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, alice.String(), claims.Address)
	assert.Equal(t, alice.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	mw, err := signer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, alice.String(), mw.Address)
	assert.Equal(t, claims.ID, mw.JTI)
}

func TestIssueRequiresAddress(t *testing.T) {
	_, err := newSigner().Issue(id.Address{}, time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestParseRejects(t *testing.T) {
	alice := testutil.Address("alice")
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	expired, err := newSigner(WithClock(func() time.Time { return issued })).Issue(alice, time.Minute)
	require.NoError(t, err)
	otherAudience, err := NewSigner("test-signing-key", "test-issuer", "elsewhere").Issue(alice, time.Hour)
	require.NoError(t, err)
	otherKey, err := NewSigner("another-key", "test-issuer", "test-audience").Issue(alice, time.Hour)
	require.NoError(t, err)
	noAddress, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: alice.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "test-issuer",
			Audience: jwt.ClaimStrings{"test-audience"},
		},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":        "invalid-token-string",
		"expired":        expired,
		"wrong audience": otherAudience,
		"wrong key":      otherKey,
		"no address":     noAddress,
		"no expiry":      noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newSigner().Parse(token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}

	_, err = newSigner().Parse(expired)
	assert.Contains(t, err.Error(), "token has expired")
}
