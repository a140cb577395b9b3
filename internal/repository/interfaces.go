package repository

import (
	"context"

	"github.com/converso-io/converso-ce/internal/models"
)

// IMembershipRepository defines the interface for membership data operations
type IMembershipRepository interface {
	Create(ctx context.Context, membership *models.Membership) error
	GetByID(ctx context.Context, id string) (*models.Membership, error)
	GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*models.Membership, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Membership, error)
	UpdateRole(ctx context.Context, id string, role models.Role, customPermissions []models.Permission) error
	Delete(ctx context.Context, id string) error
	CountByRole(ctx context.Context, workspaceID string, role models.Role) (int, error)
	TransferOwnership(ctx context.Context, workspaceID, fromID, toID string) error
}

// IRuleRepository defines the interface for assignment rule data operations
type IRuleRepository interface {
	Create(ctx context.Context, rule *models.AssignmentRule) error
	GetByID(ctx context.Context, id string) (*models.AssignmentRule, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.AssignmentRule, error)
	Update(ctx context.Context, rule *models.AssignmentRule) error
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, workspaceID string, ruleIDs []string) error
}

// RoutingSnapshot is everything rule evaluation needs for one conversation,
// read within a single transaction so a concurrent rule update cannot be
// observed mid-evaluation.
type RoutingSnapshot struct {
	Conversation *models.Conversation
	Visitor      *models.Visitor
	FirstMessage *models.Message
	Rules        []*models.AssignmentRule
}

// IConversationRepository defines the interface for conversation data operations
type IConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	UpdateAssignee(ctx context.Context, id, userID string) error
	CreateVisitor(ctx context.Context, visitor *models.Visitor) error
	GetVisitor(ctx context.Context, id string) (*models.Visitor, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	GetRoutingSnapshot(ctx context.Context, conversationID string) (*RoutingSnapshot, error)
}
