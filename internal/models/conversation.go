package models

import "time"

// Visitor is the end user who starts conversations from a widget or channel
type Visitor struct {
	ID          string         `json:"id" db:"id"`
	WorkspaceID string         `json:"workspace_id" db:"workspace_id"`
	Email       *string        `json:"email,omitempty" db:"email"`
	Name        *string        `json:"name,omitempty" db:"name"`
	Country     *string        `json:"country,omitempty" db:"country"`
	Attributes  map[string]any `json:"attributes,omitempty" db:"-"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Conversation is a visitor thread scoped to one workspace
type Conversation struct {
	ID             string    `json:"id" db:"id"`
	WorkspaceID    string    `json:"workspace_id" db:"workspace_id"`
	VisitorID      string    `json:"visitor_id" db:"visitor_id"`
	Channel        string    `json:"channel" db:"channel"`
	Source         string    `json:"source" db:"source"`
	AssigneeUserID *string   `json:"assignee_user_id,omitempty" db:"assignee_user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Message is a single message inside a conversation
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	AuthorType     string    `json:"author_type" db:"author_type"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// EvaluationContext is the ephemeral snapshot of visitor, conversation and
// first-message data that assignment rule conditions are tested against.
// Nil fields mean the source value is absent, which is distinct from an
// empty string for the is_set operators.
type EvaluationContext struct {
	VisitorEmail      *string
	VisitorName       *string
	VisitorCountry    *string
	VisitorAttributes map[string]any
	Channel           *string
	Source            *string
	MessageContent    *string
}

// Assignment is the applied outcome of a rule match for one conversation.
// TeamID is surfaced for downstream team routing; only user assignments
// mutate the conversation itself.
type Assignment struct {
	ConversationID string     `json:"conversation_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	ActionType     ActionType `json:"action_type"`
	UserID         string     `json:"user_id,omitempty"`
	TeamID         string     `json:"team_id,omitempty"`
}
