package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
)

// RuleRepository handles database operations for assignment rules
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

type ruleRow struct {
	ID          string    `db:"id"`
	WorkspaceID string    `db:"workspace_id"`
	Name        string    `db:"name"`
	Priority    int       `db:"priority"`
	Enabled     bool      `db:"enabled"`
	Conditions  string    `db:"conditions"`
	Action      string    `db:"action"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r ruleRow) toModel() (*models.AssignmentRule, error) {
	rule := &models.AssignmentRule{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Priority:    r.Priority,
		Enabled:     r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Conditions != "" {
		if err := json.Unmarshal([]byte(r.Conditions), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode conditions for rule %s: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(r.Action), &rule.Action); err != nil {
		return nil, fmt.Errorf("failed to decode action for rule %s: %w", r.ID, err)
	}
	return rule, nil
}

func encodeRule(rule *models.AssignmentRule) (conditions, action string, err error) {
	condData, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode conditions: %w", err)
	}
	actionData, err := json.Marshal(rule.Action)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode action: %w", err)
	}
	return string(condData), string(actionData), nil
}

// Create inserts a rule at the end of the workspace's priority order
func (r *RuleRepository) Create(ctx context.Context, rule *models.AssignmentRule) error {
	conditions, action, err := encodeRule(rule)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nextQuery := tx.Rebind(`SELECT COALESCE(MAX(priority) + 1, 0) FROM assignment_rules WHERE workspace_id = ?`)
	if err := tx.GetContext(ctx, &rule.Priority, nextQuery, rule.WorkspaceID); err != nil {
		return err
	}

	insert := tx.Rebind(`
		INSERT INTO assignment_rules (id, workspace_id, name, priority, enabled, conditions, action, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = tx.ExecContext(ctx, insert,
		rule.ID,
		rule.WorkspaceID,
		rule.Name,
		rule.Priority,
		rule.Enabled,
		conditions,
		action,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a rule by its id
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AssignmentRule, error) {
	query := r.db.Rebind(`
		SELECT id, workspace_id, name, priority, enabled, conditions, action, created_at, updated_at
		FROM assignment_rules
		WHERE id = ?`)

	var row ruleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, err
	}
	return row.toModel()
}

// ListByWorkspace retrieves all rules for a workspace in ascending priority order
func (r *RuleRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.AssignmentRule, error) {
	query := r.db.Rebind(`
		SELECT id, workspace_id, name, priority, enabled, conditions, action, created_at, updated_at
		FROM assignment_rules
		WHERE workspace_id = ?
		ORDER BY priority ASC`)

	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, workspaceID); err != nil {
		return nil, err
	}

	rules := make([]*models.AssignmentRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toModel()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Update persists a rule's name, enabled flag, conditions and action
func (r *RuleRepository) Update(ctx context.Context, rule *models.AssignmentRule) error {
	conditions, action, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE assignment_rules
		SET name = ?, enabled = ?, conditions = ?, action = ?, updated_at = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Enabled,
		conditions,
		action,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(`DELETE FROM assignment_rules WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// Reorder rewrites rule priorities so that priority[i] = i for ruleIDs[i].
// Every id is validated against the workspace before any priority is
// written; if any id fails, the transaction rolls back and no rule changes.
func (r *RuleRepository) Reorder(ctx context.Context, workspaceID string, ruleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lookup := tx.Rebind(`SELECT id FROM assignment_rules WHERE workspace_id = ?`)
	var ids []string
	if err := tx.SelectContext(ctx, &ids, lookup, workspaceID); err != nil {
		return err
	}

	owned := make(map[string]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}

	// Validate the entire batch before touching anything
	for _, id := range ruleIDs {
		if !owned[id] {
			return &auth.InvalidRuleReferenceError{RuleID: id}
		}
	}

	update := tx.Rebind(`UPDATE assignment_rules SET priority = ? WHERE id = ?`)
	for i, id := range ruleIDs {
		if _, err := tx.ExecContext(ctx, update, i, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}
