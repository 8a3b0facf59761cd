package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestParseToken_RoundTrip(t *testing.T) {
	token, err := IssueToken("user-1", "SuperAdmin", secret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "SuperAdmin", claims.Role)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken("user-1", "Viewer", secret, -time.Minute)
	require.NoError(t, err)

	noRole, err := IssueToken("user-1", "", secret, time.Minute)
	require.NoError(t, err)

	noSubject, err := IssueToken("", "Viewer", secret, time.Minute)
	require.NoError(t, err)

	otherKey, err := IssueToken("user-1", "Viewer", "other-secret", time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Role:             "SuperAdmin",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := map[string]string{
		"expired":      expired,
		"missing role": noRole,
		"missing sub":  noSubject,
		"wrong key":    otherKey,
		"alg none":     none,
		"garbage":      "not-a-token",
	}
	for name, token := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(token, secret)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}
