package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
)

// ValidationError rejects malformed rule or permission input before it
// reaches the repository
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// RuleService handles assignment rule management. Every operation is gated
// by conversations.assign before it touches the repository.
type RuleService struct {
	guard  *auth.Guard
	rules  repository.IRuleRepository
	logger *log.Logger
	now    func() time.Time
}

// RuleOption configures the service
type RuleOption func(*RuleService)

// WithRuleLogger sets a custom logger
func WithRuleLogger(l *log.Logger) RuleOption {
	return func(s *RuleService) { s.logger = l }
}

// WithRuleNowFunc sets a custom time function (for testing)
func WithRuleNowFunc(fn func() time.Time) RuleOption {
	return func(s *RuleService) { s.now = fn }
}

// NewRuleService creates a new rule service
func NewRuleService(guard *auth.Guard, rules repository.IRuleRepository, opts ...RuleOption) *RuleService {
	s := &RuleService{
		guard:  guard,
		rules:  rules,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the workspace's rules in ascending priority order
func (s *RuleService) List(ctx context.Context, principal *auth.Principal, workspaceID string) ([]*models.AssignmentRule, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return nil, err
	}
	return s.rules.ListByWorkspace(ctx, workspaceID)
}

// Get returns one rule, verifying it belongs to the caller's workspace
func (s *RuleService) Get(ctx context.Context, principal *auth.Principal, workspaceID, ruleID string) (*models.AssignmentRule, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil || rule.WorkspaceID != workspaceID {
		return nil, &auth.NotFoundError{Resource: "rule"}
	}
	return rule, nil
}

// Create adds a rule at the end of the workspace's priority order
func (s *RuleService) Create(ctx context.Context, principal *auth.Principal, workspaceID string, req *models.CreateRuleRequest) (*models.AssignmentRule, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return nil, err
	}

	if err := validateConditions(req.Conditions); err != nil {
		return nil, err
	}
	if err := validateAction(req.Action); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := s.now().UTC()
	rule := &models.AssignmentRule{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Enabled:     enabled,
		Conditions:  req.Conditions,
		Action:      req.Action,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rule.Conditions == nil {
		rule.Conditions = []models.Condition{}
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.logger.Printf("rules: created %q (%s) in workspace %s", rule.Name, rule.ID, workspaceID)
	return rule, nil
}

// Update changes a rule's name, enabled flag, conditions or action. Nil
// request fields are left untouched.
func (s *RuleService) Update(ctx context.Context, principal *auth.Principal, workspaceID, ruleID string, req *models.UpdateRuleRequest) (*models.AssignmentRule, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return nil, err
	}

	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil || rule.WorkspaceID != workspaceID {
		return nil, &auth.NotFoundError{Resource: "rule"}
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Conditions != nil {
		if err := validateConditions(*req.Conditions); err != nil {
			return nil, err
		}
		rule.Conditions = *req.Conditions
	}
	if req.Action != nil {
		if err := validateAction(*req.Action); err != nil {
			return nil, err
		}
		rule.Action = *req.Action
	}
	rule.UpdatedAt = s.now().UTC()

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

// Remove deletes a rule, verifying it belongs to the caller's workspace
func (s *RuleService) Remove(ctx context.Context, principal *auth.Principal, workspaceID, ruleID string) error {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return err
	}

	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil || rule.WorkspaceID != workspaceID {
		return &auth.NotFoundError{Resource: "rule"}
	}

	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	s.logger.Printf("rules: deleted %q (%s) from workspace %s", rule.Name, ruleID, workspaceID)
	return nil
}

// Reorder rewrites the workspace's rule priorities to the batch order. The
// batch is all-or-nothing: one foreign rule id rejects the whole request
// without moving anything.
func (s *RuleService) Reorder(ctx context.Context, principal *auth.Principal, workspaceID string, ruleIDs []string) error {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionConversationsAssign); err != nil {
		return err
	}
	return s.rules.Reorder(ctx, workspaceID, ruleIDs)
}

func validateConditions(conditions []models.Condition) error {
	for i, c := range conditions {
		switch c.Field {
		case models.FieldVisitorEmail, models.FieldVisitorName, models.FieldVisitorCountry,
			models.FieldConversationChannel, models.FieldConversationSource, models.FieldMessageContent:
		case models.FieldVisitorCustomAttributes:
			if c.AttributeKey == "" {
				return &ValidationError{Reason: fmt.Sprintf("condition %d: visitor.customAttributes requires an attribute key", i)}
			}
		default:
			return &ValidationError{Reason: fmt.Sprintf("condition %d: unknown field %q", i, c.Field)}
		}

		switch c.Operator {
		case models.OperatorEquals, models.OperatorNotEquals,
			models.OperatorContains, models.OperatorNotContains,
			models.OperatorStartsWith, models.OperatorEndsWith,
			models.OperatorIsSet, models.OperatorIsNotSet:
		default:
			return &ValidationError{Reason: fmt.Sprintf("condition %d: unknown operator %q", i, c.Operator)}
		}
	}
	return nil
}

func validateAction(action models.RuleAction) error {
	switch action.Type {
	case models.ActionAssignUser:
		if action.UserID == "" {
			return &ValidationError{Reason: "assign_user action requires a user id"}
		}
	case models.ActionAssignTeam:
		if action.TeamID == "" {
			return &ValidationError{Reason: "assign_team action requires a team id"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown action type %q", action.Type)}
	}
	return nil
}
