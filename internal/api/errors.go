package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/service"
)

// respondError maps the typed policy errors onto HTTP statuses. Security
// failures arrive here unchanged from the services; nothing downgrades them
// into silent no-ops along the way.
func respondError(c *gin.Context, err error) {
	var permissionDenied *auth.PermissionDeniedError
	var notFound *auth.NotFoundError
	var invalidRule *auth.InvalidRuleReferenceError
	var invalidTransition *auth.InvalidTransitionError
	var validation *service.ValidationError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, auth.ErrNotWorkspaceMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a workspace member"})
	case errors.As(err, &permissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": permissionDenied.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &invalidRule):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalidRule.Error()})
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalidTransition.Error()})
	case errors.Is(err, service.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
