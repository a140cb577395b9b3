package models

import "time"

// ConditionField identifies the context value a condition is tested against
type ConditionField string

const (
	FieldVisitorEmail            ConditionField = "visitor.email"
	FieldVisitorName             ConditionField = "visitor.name"
	FieldVisitorCountry          ConditionField = "visitor.country"
	FieldVisitorCustomAttributes ConditionField = "visitor.customAttributes"
	FieldConversationChannel     ConditionField = "conversation.channel"
	FieldConversationSource      ConditionField = "conversation.source"
	FieldMessageContent          ConditionField = "message.content"
)

// ConditionOperator identifies how a condition compares the resolved value
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorStartsWith  ConditionOperator = "starts_with"
	OperatorEndsWith    ConditionOperator = "ends_with"
	OperatorIsSet       ConditionOperator = "is_set"
	OperatorIsNotSet    ConditionOperator = "is_not_set"
)

// Condition is a single predicate inside an assignment rule. AttributeKey is
// only meaningful when Field is visitor.customAttributes.
type Condition struct {
	Field        ConditionField    `json:"field"`
	Operator     ConditionOperator `json:"operator"`
	Value        string            `json:"value,omitempty"`
	AttributeKey string            `json:"attribute_key,omitempty"`
}

// ActionType distinguishes the two assignment outcomes a rule can produce
type ActionType string

const (
	ActionAssignUser ActionType = "assign_user"
	ActionAssignTeam ActionType = "assign_team"
)

// RuleAction is what happens when a rule matches. Exactly one of UserID or
// TeamID is set, according to Type.
type RuleAction struct {
	Type   ActionType `json:"type"`
	UserID string     `json:"user_id,omitempty"`
	TeamID string     `json:"team_id,omitempty"`
}

// AssignmentRule routes new conversations to a user or team. Rules are
// evaluated per workspace in ascending priority order; the first enabled
// rule whose conditions all hold wins.
type AssignmentRule struct {
	ID          string      `json:"id" db:"id"`
	WorkspaceID string      `json:"workspace_id" db:"workspace_id"`
	Name        string      `json:"name" db:"name"`
	Priority    int         `json:"priority" db:"priority"`
	Enabled     bool        `json:"enabled" db:"enabled"`
	Conditions  []Condition `json:"conditions" db:"-"`
	Action      RuleAction  `json:"action" db:"-"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// RuleMatch is the outcome of a successful rule evaluation
type RuleMatch struct {
	RuleID   string     `json:"rule_id"`
	RuleName string     `json:"rule_name"`
	Action   RuleAction `json:"action"`
}

// CreateRuleRequest carries the fields accepted when creating a rule
type CreateRuleRequest struct {
	Name       string      `json:"name" binding:"required"`
	Enabled    *bool       `json:"enabled"`
	Conditions []Condition `json:"conditions"`
	Action     RuleAction  `json:"action" binding:"required"`
}

// UpdateRuleRequest carries the fields accepted when updating a rule.
// Nil fields are left unchanged.
type UpdateRuleRequest struct {
	Name       *string      `json:"name"`
	Enabled    *bool        `json:"enabled"`
	Conditions *[]Condition `json:"conditions"`
	Action     *RuleAction  `json:"action"`
}
