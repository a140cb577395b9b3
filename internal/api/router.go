package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/middleware"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
	"github.com/converso-io/converso-ce/internal/service"
)

// RouterDeps carries everything the HTTP surface needs
type RouterDeps struct {
	Guard         *auth.Guard
	JWTManager    *auth.JWTManager
	Members       *service.MemberService
	Rules         *service.RuleService
	Assignments   *service.AssignmentService
	Conversations repository.IConversationRepository
	MetricsOn     bool
}

// SetupRouter builds the gin engine with all workspace routes. Every
// workspace route sits behind authentication plus a permission middleware;
// the services still enforce the same checks so a misconfigured route here
// cannot widen access.
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsOn {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	membersHandler := NewMembersHandler(deps.Members)
	rulesHandler := NewRulesHandler(deps.Rules)
	conversationsHandler := NewConversationsHandler(deps.Conversations, deps.Assignments)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(deps.JWTManager))

	workspaces := v1.Group("/workspaces/:workspace_id")

	members := workspaces.Group("/members")
	{
		members.GET("", middleware.RequirePermission(deps.Guard, models.PermissionUsersRead), membersHandler.List)
		members.POST("", middleware.RequirePermission(deps.Guard, models.PermissionUsersInvite), membersHandler.Add)
		members.PATCH("/:member_id/role", middleware.RequirePermission(deps.Guard, models.PermissionUsersManage), membersHandler.UpdateRole)
		members.PUT("/:member_id/permissions", middleware.RequirePermission(deps.Guard, models.PermissionUsersManage), membersHandler.SetCustomPermissions)
		members.DELETE("/:member_id", middleware.RequirePermission(deps.Guard, models.PermissionUsersRemove), membersHandler.Remove)
	}
	workspaces.POST("/ownership/transfer", middleware.RequirePermission(deps.Guard, models.PermissionUsersManage), membersHandler.TransferOwnership)

	rules := workspaces.Group("/assignment-rules")
	rules.Use(middleware.RequirePermission(deps.Guard, models.PermissionConversationsAssign))
	{
		rules.GET("", rulesHandler.List)
		rules.POST("", rulesHandler.Create)
		rules.PUT("/order", rulesHandler.Reorder)
		rules.GET("/:rule_id", rulesHandler.Get)
		rules.PATCH("/:rule_id", rulesHandler.Update)
		rules.DELETE("/:rule_id", rulesHandler.Delete)
	}

	conversations := workspaces.Group("/conversations")
	{
		conversations.POST("", middleware.RequirePermission(deps.Guard, models.PermissionConversationsReply), conversationsHandler.Create)
		conversations.GET("/:conversation_id", middleware.RequirePermission(deps.Guard, models.PermissionConversationsRead), conversationsHandler.Get)
		conversations.POST("/:conversation_id/route", middleware.RequirePermission(deps.Guard, models.PermissionConversationsAssign), conversationsHandler.Route)
	}

	return router
}
