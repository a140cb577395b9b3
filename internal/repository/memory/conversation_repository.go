package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
)

// ConversationRepository provides an in-memory implementation of the
// IConversationRepository interface. It reads rules from a RuleRepository
// so GetRoutingSnapshot can return the same shape as the SQL implementation.
type ConversationRepository struct {
	conversations map[string]*models.Conversation
	visitors      map[string]*models.Visitor
	messages      map[string][]*models.Message
	ruleRepo      *RuleRepository
	mu            sync.RWMutex
}

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository(ruleRepo *RuleRepository) *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*models.Conversation),
		visitors:      make(map[string]*models.Visitor),
		messages:      make(map[string][]*models.Message),
		ruleRepo:      ruleRepo,
	}
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	if c.AssigneeUserID != nil {
		assignee := *c.AssigneeUserID
		clone.AssigneeUserID = &assignee
	}
	return &clone
}

// Create stores a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conversations[conversation.ID]; exists {
		return fmt.Errorf("conversation already exists")
	}
	r.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

// GetByID retrieves a conversation by id
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation not found")
	}
	return cloneConversation(conversation), nil
}

// UpdateAssignee patches the conversation's assignee
func (r *ConversationRepository) UpdateAssignee(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return fmt.Errorf("conversation not found")
	}
	assignee := userID
	conversation.AssigneeUserID = &assignee
	conversation.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateVisitor stores a new visitor
func (r *ConversationRepository) CreateVisitor(ctx context.Context, visitor *models.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.visitors[visitor.ID]; exists {
		return fmt.Errorf("visitor already exists")
	}
	r.visitors[visitor.ID] = visitor
	return nil
}

// GetVisitor retrieves a visitor by id
func (r *ConversationRepository) GetVisitor(ctx context.Context, id string) (*models.Visitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visitor, exists := r.visitors[id]
	if !exists {
		return nil, fmt.Errorf("visitor not found")
	}
	return visitor, nil
}

// CreateMessage stores a new message
func (r *ConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message)
	return nil
}

// GetRoutingSnapshot assembles the conversation, visitor, first message and
// workspace rules in one consistent read
func (r *ConversationRepository) GetRoutingSnapshot(ctx context.Context, conversationID string) (*repository.RoutingSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, exists := r.conversations[conversationID]
	if !exists {
		return nil, fmt.Errorf("conversation not found")
	}
	visitor, exists := r.visitors[conversation.VisitorID]
	if !exists {
		return nil, fmt.Errorf("visitor not found")
	}

	var firstMessage *models.Message
	if msgs := r.messages[conversationID]; len(msgs) > 0 {
		ordered := append([]*models.Message(nil), msgs...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })
		firstMessage = ordered[0]
	}

	rules, err := r.ruleRepo.ListByWorkspace(ctx, conversation.WorkspaceID)
	if err != nil {
		return nil, err
	}

	return &repository.RoutingSnapshot{
		Conversation: cloneConversation(conversation),
		Visitor:      visitor,
		FirstMessage: firstMessage,
		Rules:        rules,
	}, nil
}
