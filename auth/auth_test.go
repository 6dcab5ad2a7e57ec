package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/auth"
)

func TestIssueAndParse_RoundTrip(t *testing.T) {
	// GIVEN: An issuer with a known secret
	// WHEN: Minting a pair and parsing the access token
	// THEN: The claims round-trip intact

	issuer := auth.NewIssuer("test-secret", 15*time.Minute)

	pair, err := issuer.Issue("alice@example.com", "Alice", "USER", 42)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int((15 * time.Minute).Seconds()), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := issuer.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, int64(42), claims.UID)
}

func TestParse_RefreshTokenOutlivesAccessToken(t *testing.T) {
	// GIVEN: An access TTL already in the past
	// WHEN: Parsing both tokens
	// THEN: The access token is expired but the refresh token still works

	issuer := auth.NewIssuer("test-secret", -1*time.Minute)

	pair, err := issuer.Issue("bob@example.com", "Bob", "REVIEWER", 7)
	require.NoError(t, err)

	_, err = issuer.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	claims, err := issuer.Parse(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", claims.Email)
}

func TestParse_WrongSecretRejected(t *testing.T) {
	minter := auth.NewIssuer("secret-a", time.Hour)
	verifier := auth.NewIssuer("secret-b", time.Hour)

	pair, err := minter.Issue("alice@example.com", "Alice", "USER", 1)
	require.NoError(t, err)

	_, err = verifier.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_TamperedTokenRejected(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)

	pair, err := issuer.Issue("alice@example.com", "Alice", "USER", 1)
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "X." + parts[2]

	_, err = issuer.Parse(tampered)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_GarbageRejected(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := issuer.Parse(tok)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "token %q", tok)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, auth.CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, auth.CheckPassword(hash, "wrong"), auth.ErrInvalidCredentials)
}
