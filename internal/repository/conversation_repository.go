package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/converso-io/converso-ce/internal/models"
)

// ConversationRepository handles database operations for conversations,
// visitors and messages
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type visitorRow struct {
	ID          string         `db:"id"`
	WorkspaceID string         `db:"workspace_id"`
	Email       sql.NullString `db:"email"`
	Name        sql.NullString `db:"name"`
	Country     sql.NullString `db:"country"`
	Attributes  sql.NullString `db:"attributes"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r visitorRow) toModel() (*models.Visitor, error) {
	v := &models.Visitor{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		CreatedAt:   r.CreatedAt,
	}
	if r.Email.Valid {
		v.Email = &r.Email.String
	}
	if r.Name.Valid {
		v.Name = &r.Name.String
	}
	if r.Country.Valid {
		v.Country = &r.Country.String
	}
	if r.Attributes.Valid && r.Attributes.String != "" {
		if err := json.Unmarshal([]byte(r.Attributes.String), &v.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes for visitor %s: %w", r.ID, err)
		}
	}
	return v, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create inserts a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	query := r.db.Rebind(`
		INSERT INTO conversations (id, workspace_id, visitor_id, channel, source, assignee_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		conversation.ID,
		conversation.WorkspaceID,
		conversation.VisitorID,
		conversation.Channel,
		conversation.Source,
		nullable(conversation.AssigneeUserID),
		conversation.CreatedAt,
		conversation.UpdatedAt,
	)
	return err
}

// GetByID retrieves a conversation by id
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := r.db.Rebind(`
		SELECT id, workspace_id, visitor_id, channel, source, assignee_user_id, created_at, updated_at
		FROM conversations
		WHERE id = ?`)

	conversation, err := scanConversation(ctx, r.db, query, id)
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// UpdateAssignee patches the conversation's assignee
func (r *ConversationRepository) UpdateAssignee(ctx context.Context, id, userID string) error {
	query := r.db.Rebind(`
		UPDATE conversations SET assignee_user_id = ?, updated_at = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("conversation not found")
	}
	return nil
}

// CreateVisitor inserts a new visitor
func (r *ConversationRepository) CreateVisitor(ctx context.Context, visitor *models.Visitor) error {
	var attributes sql.NullString
	if len(visitor.Attributes) > 0 {
		data, err := json.Marshal(visitor.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode visitor attributes: %w", err)
		}
		attributes = sql.NullString{String: string(data), Valid: true}
	}

	query := r.db.Rebind(`
		INSERT INTO visitors (id, workspace_id, email, name, country, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		visitor.ID,
		visitor.WorkspaceID,
		nullable(visitor.Email),
		nullable(visitor.Name),
		nullable(visitor.Country),
		attributes,
		visitor.CreatedAt,
	)
	return err
}

// GetVisitor retrieves a visitor by id
func (r *ConversationRepository) GetVisitor(ctx context.Context, id string) (*models.Visitor, error) {
	query := r.db.Rebind(`
		SELECT id, workspace_id, email, name, country, attributes, created_at
		FROM visitors
		WHERE id = ?`)

	var row visitorRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visitor not found")
		}
		return nil, err
	}
	return row.toModel()
}

// CreateMessage inserts a new message
func (r *ConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	query := r.db.Rebind(`
		INSERT INTO messages (id, conversation_id, author_type, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.ConversationID,
		message.AuthorType,
		message.Content,
		message.CreatedAt,
	)
	return err
}

// GetRoutingSnapshot reads the conversation, its visitor, its first message
// and the workspace's assignment rules within one transaction, so that a
// concurrent rule update or reorder cannot be interleaved mid-evaluation.
func (r *ConversationRepository) GetRoutingSnapshot(ctx context.Context, conversationID string) (*RoutingSnapshot, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	convQuery := tx.Rebind(`
		SELECT id, workspace_id, visitor_id, channel, source, assignee_user_id, created_at, updated_at
		FROM conversations
		WHERE id = ?`)

	conversation, err := scanConversation(ctx, tx, convQuery, conversationID)
	if err != nil {
		return nil, err
	}

	visitorQuery := tx.Rebind(`
		SELECT id, workspace_id, email, name, country, attributes, created_at
		FROM visitors
		WHERE id = ?`)

	var vRow visitorRow
	if err := tx.GetContext(ctx, &vRow, visitorQuery, conversation.VisitorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visitor not found")
		}
		return nil, err
	}
	visitor, err := vRow.toModel()
	if err != nil {
		return nil, err
	}

	messageQuery := tx.Rebind(`
		SELECT id, conversation_id, author_type, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT 1`)

	var firstMessage *models.Message
	var message models.Message
	err = tx.GetContext(ctx, &message, messageQuery, conversationID)
	switch {
	case err == nil:
		firstMessage = &message
	case errors.Is(err, sql.ErrNoRows):
		// Conversations can be created before the first message lands
	default:
		return nil, err
	}

	rulesQuery := tx.Rebind(`
		SELECT id, workspace_id, name, priority, enabled, conditions, action, created_at, updated_at
		FROM assignment_rules
		WHERE workspace_id = ?
		ORDER BY priority ASC`)

	var ruleRows []ruleRow
	if err := tx.SelectContext(ctx, &ruleRows, rulesQuery, conversation.WorkspaceID); err != nil {
		return nil, err
	}

	rules := make([]*models.AssignmentRule, 0, len(ruleRows))
	for _, row := range ruleRows {
		rule, err := row.toModel()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &RoutingSnapshot{
		Conversation: conversation,
		Visitor:      visitor,
		FirstMessage: firstMessage,
		Rules:        rules,
	}, nil
}

type conversationRow struct {
	ID             string         `db:"id"`
	WorkspaceID    string         `db:"workspace_id"`
	VisitorID      string         `db:"visitor_id"`
	Channel        string         `db:"channel"`
	Source         string         `db:"source"`
	AssigneeUserID sql.NullString `db:"assignee_user_id"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func scanConversation(ctx context.Context, q sqlx.QueryerContext, query, id string) (*models.Conversation, error) {
	var row conversationRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation not found")
		}
		return nil, err
	}

	conversation := &models.Conversation{
		ID:          row.ID,
		WorkspaceID: row.WorkspaceID,
		VisitorID:   row.VisitorID,
		Channel:     row.Channel,
		Source:      row.Source,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.AssigneeUserID.Valid {
		conversation.AssigneeUserID = &row.AssigneeUserID.String
	}
	return conversation, nil
}
