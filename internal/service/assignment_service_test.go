package service

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository/memory"
)

func strptr(s string) *string { return &s }

func TestEvaluateCondition(t *testing.T) {
	t.Run("is_set treats nil and empty string as not set", func(t *testing.T) {
		condition := models.Condition{Field: models.FieldVisitorEmail, Operator: models.OperatorIsSet}

		assert.False(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: nil}))
		assert.False(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: strptr("")}))
		assert.True(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: strptr("a@b.com")}))
	})

	t.Run("is_not_set is true for nil and empty string", func(t *testing.T) {
		condition := models.Condition{Field: models.FieldVisitorEmail, Operator: models.OperatorIsNotSet}

		assert.True(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: nil}))
		assert.True(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: strptr("")}))
		assert.False(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorEmail: strptr("a@b.com")}))
	})

	t.Run("equals is case insensitive", func(t *testing.T) {
		condition := models.Condition{Field: models.FieldVisitorCountry, Operator: models.OperatorEquals, Value: "DE"}
		assert.True(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorCountry: strptr("de")}))
		assert.False(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorCountry: strptr("fr")}))
	})

	t.Run("equals with empty target matches an absent field", func(t *testing.T) {
		// Absent values coerce to "" for comparison operators. This is
		// long-standing observed behavior that callers rely on.
		condition := models.Condition{Field: models.FieldVisitorName, Operator: models.OperatorEquals, Value: ""}
		assert.True(t, EvaluateCondition(condition, &models.EvaluationContext{VisitorName: nil}))
	})

	t.Run("substring operators", func(t *testing.T) {
		evalCtx := &models.EvaluationContext{VisitorEmail: strptr("Jane.Doe@BigCo.com")}

		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorEmail, Operator: models.OperatorContains, Value: "bigco"}, evalCtx))
		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorEmail, Operator: models.OperatorStartsWith, Value: "jane"}, evalCtx))
		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorEmail, Operator: models.OperatorEndsWith, Value: "@bigco.com"}, evalCtx))
		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorEmail, Operator: models.OperatorNotContains, Value: "smallco"}, evalCtx))
		assert.False(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorEmail, Operator: models.OperatorNotEquals, Value: "jane.doe@bigco.com"}, evalCtx))
	})

	t.Run("custom attributes resolve through the attribute key", func(t *testing.T) {
		evalCtx := &models.EvaluationContext{
			VisitorAttributes: map[string]any{
				"plan":     "Enterprise",
				"seats":    float64(250),
				"trialing": true,
			},
		}

		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorCustomAttributes, AttributeKey: "plan",
			Operator: models.OperatorEquals, Value: "enterprise"}, evalCtx))
		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorCustomAttributes, AttributeKey: "seats",
			Operator: models.OperatorEquals, Value: "250"}, evalCtx))
		assert.True(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorCustomAttributes, AttributeKey: "trialing",
			Operator: models.OperatorEquals, Value: "true"}, evalCtx))
		assert.False(t, EvaluateCondition(models.Condition{
			Field: models.FieldVisitorCustomAttributes, AttributeKey: "missing",
			Operator: models.OperatorIsSet}, evalCtx))
	})
}

func newAssignmentFixture(t *testing.T) (*AssignmentService, *memory.RuleRepository, *memory.ConversationRepository) {
	t.Helper()
	ruleRepo := memory.NewRuleRepository()
	convRepo := memory.NewConversationRepository(ruleRepo)
	svc := NewAssignmentService(convRepo, ruleRepo,
		WithAssignmentLogger(log.New(io.Discard, "", 0)))
	return svc, ruleRepo, convRepo
}

func seedRule(t *testing.T, repo *memory.RuleRepository, id, workspaceID, name string, enabled bool, conditions []models.Condition, action models.RuleAction) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &models.AssignmentRule{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        name,
		Enabled:     enabled,
		Conditions:  conditions,
		Action:      action,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestEvaluateRules(t *testing.T) {
	ctx := context.Background()

	t.Run("First match wins in priority order", func(t *testing.T) {
		svc, ruleRepo, _ := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "First", true, nil,
			models.RuleAction{Type: models.ActionAssignUser, UserID: "u1"})
		seedRule(t, ruleRepo, "r2", "ws1", "Second", true, nil,
			models.RuleAction{Type: models.ActionAssignUser, UserID: "u2"})

		match, err := svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{})
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, "r1", match.RuleID)
	})

	t.Run("Disabled rules never match", func(t *testing.T) {
		svc, ruleRepo, _ := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Disabled", false, nil,
			models.RuleAction{Type: models.ActionAssignUser, UserID: "u1"})
		seedRule(t, ruleRepo, "r2", "ws1", "Enabled", true, nil,
			models.RuleAction{Type: models.ActionAssignUser, UserID: "u2"})

		match, err := svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{})
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, "r2", match.RuleID)
	})

	t.Run("Conditions are ANDed", func(t *testing.T) {
		svc, ruleRepo, _ := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Both", true, []models.Condition{
			{Field: models.FieldVisitorCountry, Operator: models.OperatorEquals, Value: "de"},
			{Field: models.FieldConversationChannel, Operator: models.OperatorEquals, Value: "chat"},
		}, models.RuleAction{Type: models.ActionAssignUser, UserID: "u1"})

		match, err := svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{
			VisitorCountry: strptr("DE"),
			Channel:        strptr("email"),
		})
		require.NoError(t, err)
		assert.Nil(t, match)

		match, err = svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{
			VisitorCountry: strptr("DE"),
			Channel:        strptr("chat"),
		})
		require.NoError(t, err)
		require.NotNil(t, match)
	})

	t.Run("Rule with no conditions matches unconditionally", func(t *testing.T) {
		svc, ruleRepo, _ := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Catch all", true, []models.Condition{},
			models.RuleAction{Type: models.ActionAssignTeam, TeamID: "t1"})

		match, err := svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{})
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, models.ActionAssignTeam, match.Action.Type)
	})

	t.Run("No rules returns nil", func(t *testing.T) {
		svc, _, _ := newAssignmentFixture(t)
		match, err := svc.EvaluateRules(ctx, "ws1", &models.EvaluationContext{})
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func seedConversation(t *testing.T, convRepo *memory.ConversationRepository, workspaceID, conversationID string, visitor *models.Visitor, firstMessage string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, convRepo.CreateVisitor(ctx, visitor))
	require.NoError(t, convRepo.Create(ctx, &models.Conversation{
		ID:          conversationID,
		WorkspaceID: workspaceID,
		VisitorID:   visitor.ID,
		Channel:     "chat",
		Source:      "widget",
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	if firstMessage != "" {
		require.NoError(t, convRepo.CreateMessage(ctx, &models.Message{
			ID:             "msg-" + conversationID,
			ConversationID: conversationID,
			AuthorType:     "visitor",
			Content:        firstMessage,
			CreatedAt:      now,
		}))
	}
}

func TestApplyAssignment(t *testing.T) {
	ctx := context.Background()

	t.Run("User assignment patches the conversation", func(t *testing.T) {
		svc, ruleRepo, convRepo := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "VIP", true, []models.Condition{
			{Field: models.FieldVisitorEmail, Operator: models.OperatorEndsWith, Value: "@bigco.com"},
		}, models.RuleAction{Type: models.ActionAssignUser, UserID: "agent-7"})

		seedConversation(t, convRepo, "ws1", "c1", &models.Visitor{
			ID: "v1", WorkspaceID: "ws1", Email: strptr("ceo@bigco.com"),
		}, "hello")

		assignment, err := svc.ApplyAssignment(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, assignment)
		assert.Equal(t, models.ActionAssignUser, assignment.ActionType)
		assert.Equal(t, "agent-7", assignment.UserID)

		conversation, err := convRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, conversation.AssigneeUserID)
		assert.Equal(t, "agent-7", *conversation.AssigneeUserID)
	})

	t.Run("Team assignment leaves the conversation untouched", func(t *testing.T) {
		svc, ruleRepo, convRepo := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Route to sales", true, nil,
			models.RuleAction{Type: models.ActionAssignTeam, TeamID: "team-sales"})

		seedConversation(t, convRepo, "ws1", "c1", &models.Visitor{
			ID: "v1", WorkspaceID: "ws1",
		}, "pricing question")

		assignment, err := svc.ApplyAssignment(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, assignment)
		assert.Equal(t, "team-sales", assignment.TeamID)

		conversation, err := convRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, conversation.AssigneeUserID)
	})

	t.Run("Message content conditions see the first message", func(t *testing.T) {
		svc, ruleRepo, convRepo := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Billing", true, []models.Condition{
			{Field: models.FieldMessageContent, Operator: models.OperatorContains, Value: "invoice"},
		}, models.RuleAction{Type: models.ActionAssignTeam, TeamID: "team-billing"})

		seedConversation(t, convRepo, "ws1", "c1", &models.Visitor{
			ID: "v1", WorkspaceID: "ws1",
		}, "Where is my INVOICE?")

		assignment, err := svc.ApplyAssignment(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, assignment)
		assert.Equal(t, "team-billing", assignment.TeamID)
	})

	t.Run("No match is a no-op", func(t *testing.T) {
		svc, ruleRepo, convRepo := newAssignmentFixture(t)
		seedRule(t, ruleRepo, "r1", "ws1", "Never", true, []models.Condition{
			{Field: models.FieldVisitorEmail, Operator: models.OperatorEquals, Value: "nobody@nowhere.test"},
		}, models.RuleAction{Type: models.ActionAssignUser, UserID: "u1"})

		seedConversation(t, convRepo, "ws1", "c1", &models.Visitor{
			ID: "v1", WorkspaceID: "ws1", Email: strptr("someone@else.test"),
		}, "hi")

		assignment, err := svc.ApplyAssignment(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, assignment)

		conversation, err := convRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, conversation.AssigneeUserID)
	})

	t.Run("Missing conversation fails", func(t *testing.T) {
		svc, _, _ := newAssignmentFixture(t)
		_, err := svc.ApplyAssignment(ctx, "ghost")
		assert.Error(t, err)
	})
}
