package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
)

// AssignmentService evaluates assignment rules against new conversations
// and applies the winning rule's action. Evaluation is first-match-wins over
// enabled rules in ascending priority order.
type AssignmentService struct {
	conversations repository.IConversationRepository
	rules         repository.IRuleRepository
	logger        *log.Logger
}

// AssignmentOption configures the service
type AssignmentOption func(*AssignmentService)

// WithAssignmentLogger sets a custom logger
func WithAssignmentLogger(l *log.Logger) AssignmentOption {
	return func(s *AssignmentService) { s.logger = l }
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(conversations repository.IConversationRepository, rules repository.IRuleRepository, opts ...AssignmentOption) *AssignmentService {
	s := &AssignmentService{
		conversations: conversations,
		rules:         rules,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveField maps a condition field to its value in the context. It
// returns nil when the underlying source is absent, which only the is_set
// operators distinguish from an empty string.
func ResolveField(field models.ConditionField, attributeKey string, evalCtx *models.EvaluationContext) *string {
	switch field {
	case models.FieldVisitorEmail:
		return evalCtx.VisitorEmail
	case models.FieldVisitorName:
		return evalCtx.VisitorName
	case models.FieldVisitorCountry:
		return evalCtx.VisitorCountry
	case models.FieldVisitorCustomAttributes:
		value, ok := evalCtx.VisitorAttributes[attributeKey]
		if !ok {
			return nil
		}
		return stringifyAttribute(value)
	case models.FieldConversationChannel:
		return evalCtx.Channel
	case models.FieldConversationSource:
		return evalCtx.Source
	case models.FieldMessageContent:
		return evalCtx.MessageContent
	}
	return nil
}

// stringifyAttribute renders a custom attribute value for comparison.
// Attribute maps come from JSON, so numbers arrive as float64.
func stringifyAttribute(value any) *string {
	var s string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		s = v
	case bool:
		s = strconv.FormatBool(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		s = fmt.Sprintf("%v", v)
	}
	return &s
}

// EvaluateCondition tests a single condition against the context. The
// is_set operators treat nil and empty string both as "not set". Every
// other operator compares case-insensitively and coerces an absent value to
// the empty string, so equals with an empty target matches an absent field.
func EvaluateCondition(condition models.Condition, evalCtx *models.EvaluationContext) bool {
	resolved := ResolveField(condition.Field, condition.AttributeKey, evalCtx)

	switch condition.Operator {
	case models.OperatorIsSet:
		return resolved != nil && *resolved != ""
	case models.OperatorIsNotSet:
		return resolved == nil || *resolved == ""
	}

	fieldValue := ""
	if resolved != nil {
		fieldValue = *resolved
	}
	fieldValue = strings.ToLower(fieldValue)
	target := strings.ToLower(condition.Value)

	switch condition.Operator {
	case models.OperatorEquals:
		return fieldValue == target
	case models.OperatorNotEquals:
		return fieldValue != target
	case models.OperatorContains:
		return strings.Contains(fieldValue, target)
	case models.OperatorNotContains:
		return !strings.Contains(fieldValue, target)
	case models.OperatorStartsWith:
		return strings.HasPrefix(fieldValue, target)
	case models.OperatorEndsWith:
		return strings.HasSuffix(fieldValue, target)
	}
	return false
}

// matchRules finds the first enabled rule whose conditions all hold. Rules
// arrive already sorted by ascending priority. A rule with no conditions
// matches unconditionally.
func matchRules(rules []*models.AssignmentRule, evalCtx *models.EvaluationContext) *models.RuleMatch {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		matched := true
		for _, condition := range rule.Conditions {
			if !EvaluateCondition(condition, evalCtx) {
				matched = false
				break
			}
		}

		if matched {
			return &models.RuleMatch{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Action:   rule.Action,
			}
		}
	}
	return nil
}

// EvaluateRules runs the workspace's rules against a context and returns
// the first match, or nil when no enabled rule matches
func (s *AssignmentService) EvaluateRules(ctx context.Context, workspaceID string, evalCtx *models.EvaluationContext) (*models.RuleMatch, error) {
	rules, err := s.rules.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	ruleEvaluationsTotal.Inc()
	return matchRules(rules, evalCtx), nil
}

// BuildContext assembles the evaluation context from a routing snapshot
func BuildContext(snapshot *repository.RoutingSnapshot) *models.EvaluationContext {
	evalCtx := &models.EvaluationContext{
		VisitorEmail:      snapshot.Visitor.Email,
		VisitorName:       snapshot.Visitor.Name,
		VisitorCountry:    snapshot.Visitor.Country,
		VisitorAttributes: snapshot.Visitor.Attributes,
		Channel:           &snapshot.Conversation.Channel,
		Source:            &snapshot.Conversation.Source,
	}
	if snapshot.FirstMessage != nil {
		evalCtx.MessageContent = &snapshot.FirstMessage.Content
	}
	return evalCtx
}

// ApplyAssignment routes a newly created conversation. A user assignment
// patches the conversation's assignee; a team assignment only surfaces the
// team for the downstream team router and leaves the conversation untouched.
// Returns nil when no rule matches.
func (s *AssignmentService) ApplyAssignment(ctx context.Context, conversationID string) (*models.Assignment, error) {
	snapshot, err := s.conversations.GetRoutingSnapshot(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing snapshot: %w", err)
	}

	ruleEvaluationsTotal.Inc()
	match := matchRules(snapshot.Rules, BuildContext(snapshot))
	if match == nil {
		return nil, nil
	}

	ruleMatchesTotal.WithLabelValues(string(match.Action.Type)).Inc()

	assignment := &models.Assignment{
		ConversationID: conversationID,
		RuleID:         match.RuleID,
		RuleName:       match.RuleName,
		ActionType:     match.Action.Type,
	}

	switch match.Action.Type {
	case models.ActionAssignUser:
		if err := s.conversations.UpdateAssignee(ctx, conversationID, match.Action.UserID); err != nil {
			return nil, fmt.Errorf("failed to assign conversation: %w", err)
		}
		assignment.UserID = match.Action.UserID
		assignmentsAppliedTotal.Inc()
		s.logger.Printf("routing: conversation %s assigned to user %s by rule %q", conversationID, match.Action.UserID, match.RuleName)
	case models.ActionAssignTeam:
		assignment.TeamID = match.Action.TeamID
		s.logger.Printf("routing: conversation %s routed to team %s by rule %q", conversationID, match.Action.TeamID, match.RuleName)
	}

	return assignment, nil
}
