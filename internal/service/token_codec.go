package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

// refreshTokenBytes yields 43 base64 characters, 256 bits of entropy.
const refreshTokenBytes = 32

// TokenCodec mints and verifies bearer credentials: signed access tokens
// and opaque refresh token strings. It holds no state beyond configuration.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	// now is swappable for clock-simulation tests.
	now func() time.Time
}

// NewTokenCodec constructs a codec for the given signing secret and TTLs.
func NewTokenCodec(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL exposes the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// MintAccess signs a short-lived access token for the user. The embedded
// scope list is a point-in-time snapshot for auditing; enforcement always
// re-derives scopes from the stored role.
func (c *TokenCodec) MintAccess(user *models.User) (string, time.Time, error) {
	issuedAt := c.now().UTC()
	expiresAt := issuedAt.Add(c.accessTTL)
	claims := &models.AccessClaims{
		UserID: user.ID,
		Scopes: models.ScopesForRole(user.Role).Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	return signed, expiresAt, nil
}

// DecodeAccess verifies signature and expiry and returns the claims.
// Expiry is checked strictly against the verification-time clock, no leeway.
func (c *TokenCodec) DecodeAccess(tokenString string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, "access token is expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "access token is invalid")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "access token claims are invalid")
	}
	if claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "access token missing subject")
	}

	return claims, nil
}

// MintRefresh generates an opaque refresh token string and its expiry.
// Collisions are astronomically unlikely and handled at the store as a
// retryable uniqueness violation.
func (c *TokenCodec) MintRefresh() (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), c.now().UTC().Add(c.refreshTTL), nil
}
