package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

func testUser() *models.User {
	return &models.User{
		ID:       "u1",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     models.RoleUser,
		Active:   true,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", 30*time.Minute, 7*24*time.Hour)

	token, expiresAt, err := codec.MintAccess(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 5*time.Second)

	claims, err := codec.DecodeAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.ScopesForRole(models.RoleUser).Strings(), claims.Scopes)
}

func TestAccessTokenExpiry(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", 30*time.Minute, 7*24*time.Hour)

	token, _, err := codec.MintAccess(testUser())
	require.NoError(t, err)

	// Advance the verification clock past the TTL.
	codec.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	_, err = codec.DecodeAccess(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, appErrors.FromError(err).Code)
}

func TestDecodeAccessWrongSecret(t *testing.T) {
	minter := NewTokenCodec("secret-a", "userhub-api", time.Hour, time.Hour)
	verifier := NewTokenCodec("secret-b", "userhub-api", time.Hour, time.Hour)

	token, _, err := minter.MintAccess(testUser())
	require.NoError(t, err)

	_, err = verifier.DecodeAccess(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestDecodeAccessMalformed(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", time.Hour, time.Hour)

	_, err := codec.DecodeAccess("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestDecodeAccessMissingSubject(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", time.Hour, time.Hour)

	claims := &models.AccessClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = codec.DecodeAccess(raw)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestDecodeAccessRejectsUnsignedAlg(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", time.Hour, time.Hour)

	claims := &models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.DecodeAccess(raw)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestMintRefresh(t *testing.T) {
	codec := NewTokenCodec("secret", "userhub-api", time.Hour, 7*24*time.Hour)

	token, expiresAt, err := codec.MintRefresh()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(token), 43)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)

	second, _, err := codec.MintRefresh()
	require.NoError(t, err)
	assert.NotEqual(t, token, second)
}
