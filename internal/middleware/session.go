package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/auth"
)

const principalKey = "principal"

// RequireAuth validates the bearer token and stores the resulting principal
// in the request context. Handlers thread the principal explicitly into
// every service call; nothing below this layer reaches for ambient state.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(principalKey, claims.Principal())
		c.Next()
	}
}

// CurrentPrincipal retrieves the authenticated principal from the request
// context. It returns nil for unauthenticated requests, which guard calls
// translate into ErrNotAuthenticated.
func CurrentPrincipal(c *gin.Context) *auth.Principal {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	principal, ok := value.(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}
