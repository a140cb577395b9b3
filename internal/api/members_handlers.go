package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/middleware"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/service"
)

// MembersHandler serves the workspace membership endpoints
type MembersHandler struct {
	members *service.MemberService
}

func NewMembersHandler(members *service.MemberService) *MembersHandler {
	return &MembersHandler{members: members}
}

func (h *MembersHandler) List(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	memberships, err := h.members.ListMembers(c.Request.Context(), principal, workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	if memberships == nil {
		memberships = []*models.Membership{}
	}
	c.JSON(http.StatusOK, gin.H{"members": memberships})
}

type addMemberRequest struct {
	UserID string      `json:"user_id" binding:"required"`
	Role   models.Role `json:"role" binding:"required"`
}

func (h *MembersHandler) Add(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	membership, err := h.members.AddMember(c.Request.Context(), principal, workspaceID, req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

type updateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func (h *MembersHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	membershipID := c.Param("member_id")

	membership, err := h.members.UpdateRole(c.Request.Context(), principal, workspaceID, membershipID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

type customPermissionsRequest struct {
	Permissions []models.Permission `json:"permissions"`
}

// SetCustomPermissions replaces a member's effective permission set. The
// custom set overrides the role defaults entirely rather than adding to them.
func (h *MembersHandler) SetCustomPermissions(c *gin.Context) {
	var req customPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	membershipID := c.Param("member_id")

	membership, err := h.members.SetCustomPermissions(c.Request.Context(), principal, workspaceID, membershipID, req.Permissions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func (h *MembersHandler) Remove(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	membershipID := c.Param("member_id")

	if err := h.members.RemoveMember(c.Request.Context(), principal, workspaceID, membershipID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

type transferOwnershipRequest struct {
	NewOwnerUserID string `json:"new_owner_user_id" binding:"required"`
}

func (h *MembersHandler) TransferOwnership(c *gin.Context) {
	var req transferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	if err := h.members.TransferOwnership(c.Request.Context(), principal, workspaceID, req.NewOwnerUserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ownership transferred"})
}
