package service

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository/memory"
)

type ruleFixture struct {
	svc      *RuleService
	ruleRepo *memory.RuleRepository
}

func newRuleFixture(t *testing.T) *ruleFixture {
	t.Helper()
	memberRepo := memory.NewMembershipRepository()
	ctx := context.Background()
	require.NoError(t, memberRepo.Create(ctx, membership("m1", "admin", "ws1", models.RoleAdmin)))
	require.NoError(t, memberRepo.Create(ctx, membership("m2", "viewer", "ws1", models.RoleViewer)))
	require.NoError(t, memberRepo.Create(ctx, membership("x1", "admin2", "ws2", models.RoleAdmin)))

	ruleRepo := memory.NewRuleRepository()
	guard := auth.NewGuard(auth.NewCatalog(), memberRepo)
	svc := NewRuleService(guard, ruleRepo,
		WithRuleLogger(log.New(io.Discard, "", 0)),
		WithRuleNowFunc(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }))
	return &ruleFixture{svc: svc, ruleRepo: ruleRepo}
}

func userAction(userID string) models.RuleAction {
	return models.RuleAction{Type: models.ActionAssignUser, UserID: userID}
}

func TestRuleServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Appends at the end of the priority order", func(t *testing.T) {
		f := newRuleFixture(t)

		first, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "First", Action: userAction("u1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, first.Priority)
		assert.True(t, first.Enabled)

		second, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Second", Action: userAction("u2"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, second.Priority)
	})

	t.Run("Requires conversations.assign", func(t *testing.T) {
		f := newRuleFixture(t)
		_, err := f.svc.Create(ctx, principal("viewer"), "ws1", &models.CreateRuleRequest{
			Name: "Nope", Action: userAction("u1"),
		})
		assert.True(t, auth.IsPermissionDenied(err))
	})

	t.Run("Rejects malformed conditions and actions", func(t *testing.T) {
		f := newRuleFixture(t)

		_, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Bad field", Action: userAction("u1"),
			Conditions: []models.Condition{{Field: "visitor.shoeSize", Operator: models.OperatorEquals}},
		})
		assert.Error(t, err)

		_, err = f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Missing attribute key", Action: userAction("u1"),
			Conditions: []models.Condition{{Field: models.FieldVisitorCustomAttributes, Operator: models.OperatorIsSet}},
		})
		assert.Error(t, err)

		_, err = f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Empty action target", Action: models.RuleAction{Type: models.ActionAssignUser},
		})
		assert.Error(t, err)
	})
}

func TestRuleServiceGetUpdateRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("Cross workspace access reads as not found", func(t *testing.T) {
		f := newRuleFixture(t)
		created, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Mine", Action: userAction("u1"),
		})
		require.NoError(t, err)

		_, err = f.svc.Get(ctx, principal("admin2"), "ws2", created.ID)
		assert.True(t, auth.IsNotFound(err))

		_, err = f.svc.Update(ctx, principal("admin2"), "ws2", created.ID, &models.UpdateRuleRequest{})
		assert.True(t, auth.IsNotFound(err))

		err = f.svc.Remove(ctx, principal("admin2"), "ws2", created.ID)
		assert.True(t, auth.IsNotFound(err))
	})

	t.Run("Partial update leaves other fields alone", func(t *testing.T) {
		f := newRuleFixture(t)
		created, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Routing", Action: userAction("u1"),
			Conditions: []models.Condition{
				{Field: models.FieldVisitorCountry, Operator: models.OperatorEquals, Value: "de"},
			},
		})
		require.NoError(t, err)

		disabled := false
		updated, err := f.svc.Update(ctx, principal("admin"), "ws1", created.ID, &models.UpdateRuleRequest{
			Enabled: &disabled,
		})
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		assert.Equal(t, "Routing", updated.Name)
		assert.Len(t, updated.Conditions, 1)
	})

	t.Run("Remove deletes the rule", func(t *testing.T) {
		f := newRuleFixture(t)
		created, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{
			Name: "Short lived", Action: userAction("u1"),
		})
		require.NoError(t, err)

		require.NoError(t, f.svc.Remove(ctx, principal("admin"), "ws1", created.ID))
		_, err = f.svc.Get(ctx, principal("admin"), "ws1", created.ID)
		assert.True(t, auth.IsNotFound(err))
	})
}

func TestRuleServiceReorder(t *testing.T) {
	ctx := context.Background()

	t.Run("Priorities follow batch positions", func(t *testing.T) {
		f := newRuleFixture(t)
		a, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{Name: "A", Action: userAction("u1")})
		require.NoError(t, err)
		b, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{Name: "B", Action: userAction("u2")})
		require.NoError(t, err)

		require.NoError(t, f.svc.Reorder(ctx, principal("admin"), "ws1", []string{b.ID, a.ID}))

		rules, err := f.svc.List(ctx, principal("admin"), "ws1")
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "B", rules[0].Name)
		assert.Equal(t, "A", rules[1].Name)
	})

	t.Run("A foreign rule id aborts the whole batch", func(t *testing.T) {
		f := newRuleFixture(t)
		a, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{Name: "A", Action: userAction("u1")})
		require.NoError(t, err)
		b, err := f.svc.Create(ctx, principal("admin"), "ws1", &models.CreateRuleRequest{Name: "B", Action: userAction("u2")})
		require.NoError(t, err)

		// Rule in another workspace
		foreign, err := f.svc.Create(ctx, principal("admin2"), "ws2", &models.CreateRuleRequest{Name: "Foreign", Action: userAction("u3")})
		require.NoError(t, err)

		err = f.svc.Reorder(ctx, principal("admin"), "ws1", []string{b.ID, a.ID, foreign.ID})
		var invalid *auth.InvalidRuleReferenceError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, foreign.ID, invalid.RuleID)

		// Nothing moved
		rules, err := f.svc.List(ctx, principal("admin"), "ws1")
		require.NoError(t, err)
		assert.Equal(t, "A", rules[0].Name)
		assert.Equal(t, "B", rules[1].Name)
	})

	t.Run("Requires conversations.assign", func(t *testing.T) {
		f := newRuleFixture(t)
		err := f.svc.Reorder(ctx, principal("viewer"), "ws1", nil)
		assert.True(t, auth.IsPermissionDenied(err))
	})
}
