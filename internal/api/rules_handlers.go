package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converso-io/converso-ce/internal/middleware"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/service"
)

// RulesHandler serves the assignment rule endpoints
type RulesHandler struct {
	rules *service.RuleService
}

func NewRulesHandler(rules *service.RuleService) *RulesHandler {
	return &RulesHandler{rules: rules}
}

func (h *RulesHandler) List(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	rules, err := h.rules.List(c.Request.Context(), principal, workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	if rules == nil {
		rules = []*models.AssignmentRule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *RulesHandler) Get(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	ruleID := c.Param("rule_id")

	rule, err := h.rules.Get(c.Request.Context(), principal, workspaceID, ruleID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RulesHandler) Create(c *gin.Context) {
	var req models.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	rule, err := h.rules.Create(c.Request.Context(), principal, workspaceID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RulesHandler) Update(c *gin.Context) {
	var req models.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	ruleID := c.Param("rule_id")

	rule, err := h.rules.Update(c.Request.Context(), principal, workspaceID, ruleID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RulesHandler) Delete(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")
	ruleID := c.Param("rule_id")

	if err := h.rules.Remove(c.Request.Context(), principal, workspaceID, ruleID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}

type reorderRequest struct {
	RuleIDs []string `json:"rule_ids" binding:"required"`
}

// Reorder replaces the priority order of every rule in the workspace. The
// id list must be a permutation of the workspace's rules; a stale or foreign
// id rejects the whole request and no priorities change.
func (h *RulesHandler) Reorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal := middleware.CurrentPrincipal(c)
	workspaceID := c.Param("workspace_id")

	if err := h.rules.Reorder(c.Request.Context(), principal, workspaceID, req.RuleIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rules reordered"})
}
