package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository/memory"
	"github.com/converso-io/converso-ce/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type routerFixture struct {
	router     *gin.Engine
	jwtManager *auth.JWTManager
	rules      *memory.RuleRepository
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	memberships := memory.NewMembershipRepository()
	rules := memory.NewRuleRepository()
	conversations := memory.NewConversationRepository(rules)

	catalog := auth.NewCatalog()
	guard := auth.NewGuard(catalog, memberships)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	seed := []*models.Membership{
		{ID: "m-owner", UserID: "u-owner", WorkspaceID: "ws1", Role: models.RoleOwner},
		{ID: "m-admin", UserID: "u-admin", WorkspaceID: "ws1", Role: models.RoleAdmin},
		{ID: "m-viewer", UserID: "u-viewer", WorkspaceID: "ws1", Role: models.RoleViewer},
	}
	for _, membership := range seed {
		require.NoError(t, memberships.Create(context.Background(), membership))
	}

	router := SetupRouter(RouterDeps{
		Guard:         guard,
		JWTManager:    jwtManager,
		Members:       service.NewMemberService(guard, memberships),
		Rules:         service.NewRuleService(guard, rules),
		Assignments:   service.NewAssignmentService(conversations, rules),
		Conversations: conversations,
	})

	return &routerFixture{router: router, jwtManager: jwtManager, rules: rules}
}

func (f *routerFixture) request(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.jwtManager.GenerateToken(userID, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuthentication(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("missing token is rejected", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/workspaces/ws1/members", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws1/members", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health endpoint is open", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouterPermissions(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("viewer can list members", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/workspaces/ws1/members", "u-viewer", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("viewer cannot manage rules", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/workspaces/ws1/assignment-rules", "u-viewer", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/workspaces/ws1/members", "u-stranger", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin cannot transfer ownership", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/workspaces/ws1/ownership/transfer", "u-admin",
			gin.H{"new_owner_user_id": "u-admin"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRouterRuleLifecycle(t *testing.T) {
	f := newRouterFixture(t)

	createBody := gin.H{
		"name": "Spanish speakers",
		"conditions": []gin.H{
			{"field": "visitor.country", "operator": "equals", "value": "ES"},
		},
		"action": gin.H{"type": "assign_user", "user_id": "u-admin"},
	}

	rec := f.request(t, http.MethodPost, "/api/v1/workspaces/ws1/assignment-rules", "u-admin", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.AssignmentRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Spanish speakers", created.Name)
	assert.Equal(t, 0, created.Priority)

	rec = f.request(t, http.MethodGet, "/api/v1/workspaces/ws1/assignment-rules", "u-admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Rules []*models.AssignmentRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Rules, 1)

	t.Run("reorder with unknown id changes nothing", func(t *testing.T) {
		rec := f.request(t, http.MethodPut, "/api/v1/workspaces/ws1/assignment-rules/order", "u-admin",
			gin.H{"rule_ids": []string{"nope"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rule, err := f.rules.GetByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, rule.Priority)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.request(t, http.MethodDelete, "/api/v1/workspaces/ws1/assignment-rules/"+created.ID, "u-admin", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouterConversationIntake(t *testing.T) {
	f := newRouterFixture(t)

	ruleBody := gin.H{
		"name": "VIP routing",
		"conditions": []gin.H{
			{"field": "visitor.customAttributes", "operator": "equals", "value": "gold", "attribute_key": "plan"},
		},
		"action": gin.H{"type": "assign_user", "user_id": "u-admin"},
	}
	rec := f.request(t, http.MethodPost, "/api/v1/workspaces/ws1/assignment-rules", "u-admin", ruleBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/workspaces/ws1/conversations", "u-admin", gin.H{
		"visitor": gin.H{
			"email":      "vip@example.com",
			"attributes": gin.H{"plan": "gold"},
		},
		"channel": "chat",
		"source":  "widget",
		"message": "Hi, I need help",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var intake struct {
		Conversation *models.Conversation `json:"conversation"`
		Assignment   *models.Assignment   `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intake))
	require.NotNil(t, intake.Assignment)
	assert.Equal(t, "u-admin", intake.Assignment.UserID)
	require.NotNil(t, intake.Conversation.AssigneeUserID)
	assert.Equal(t, "u-admin", *intake.Conversation.AssigneeUserID)

	t.Run("no match leaves conversation unassigned", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/workspaces/ws1/conversations", "u-admin", gin.H{
			"visitor": gin.H{"email": "basic@example.com"},
			"channel": "chat",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var intake struct {
			Conversation *models.Conversation `json:"conversation"`
			Assignment   *models.Assignment   `json:"assignment"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intake))
		assert.Nil(t, intake.Assignment)
		assert.Nil(t, intake.Conversation.AssigneeUserID)

		path := fmt.Sprintf("/api/v1/workspaces/ws1/conversations/%s", intake.Conversation.ID)
		rec = f.request(t, http.MethodGet, path, "u-viewer", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
