package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/userhub-io/userhub-api/internal/models"
	"github.com/userhub-io/userhub-api/internal/service"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
	"github.com/userhub-io/userhub-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated user.
const ContextUserKey = "currentUser"

// RequireScopes protects a route: it extracts the bearer token, resolves the
// caller and checks that their current role grants every listed scope. The
// resolved user is stored on the context for handlers.
func RequireScopes(authService *service.AuthService, scopes ...models.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		user, err := authService.Authorize(c.Request.Context(), token, scopes...)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// Authenticated requires a valid access token but no particular scope.
func Authenticated(authService *service.AuthService) gin.HandlerFunc {
	return RequireScopes(authService)
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}

// UserFromContext returns the authenticated user set by RequireScopes.
func UserFromContext(c *gin.Context) *models.User {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
