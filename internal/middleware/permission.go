package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
)

// RequirePermission rejects the request unless the principal holds the
// permission in the workspace named by the route. Services re-check before
// mutating; this middleware exists so a route wired without a service-level
// guard still cannot leak.
func RequirePermission(guard *auth.Guard, permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := c.Param("workspace_id")
		if workspaceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Workspace id required"})
			c.Abort()
			return
		}

		principal := CurrentPrincipal(c)
		if principal == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !guard.HasPermission(c.Request.Context(), principal, workspaceID, permission) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAnyPermission rejects the request unless the principal holds at
// least one of the permissions in the workspace named by the route
func RequireAnyPermission(guard *auth.Guard, permissions ...models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := c.Param("workspace_id")
		principal := CurrentPrincipal(c)
		if principal == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !guard.HasAnyPermission(c.Request.Context(), principal, workspaceID, permissions...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}
