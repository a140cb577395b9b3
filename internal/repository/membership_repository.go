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

// MembershipRepository handles database operations for workspace memberships
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

type membershipRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	WorkspaceID       string         `db:"workspace_id"`
	Role              string         `db:"role"`
	CustomPermissions sql.NullString `db:"custom_permissions"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r membershipRow) toModel() (*models.Membership, error) {
	m := &models.Membership{
		ID:          r.ID,
		UserID:      r.UserID,
		WorkspaceID: r.WorkspaceID,
		Role:        models.Role(r.Role),
		CreatedAt:   r.CreatedAt,
	}
	if r.CustomPermissions.Valid && r.CustomPermissions.String != "" {
		if err := json.Unmarshal([]byte(r.CustomPermissions.String), &m.CustomPermissions); err != nil {
			return nil, fmt.Errorf("failed to decode custom permissions for membership %s: %w", r.ID, err)
		}
	}
	return m, nil
}

func encodePermissions(perms []models.Permission) (sql.NullString, error) {
	if len(perms) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode custom permissions: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Create inserts a new membership
func (r *MembershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	perms, err := encodePermissions(membership.CustomPermissions)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO memberships (id, user_id, workspace_id, role, custom_permissions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		membership.ID,
		membership.UserID,
		membership.WorkspaceID,
		string(membership.Role),
		perms,
		membership.CreatedAt,
	)
	return err
}

// GetByID retrieves a membership by its id
func (r *MembershipRepository) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, workspace_id, role, custom_permissions, created_at
		FROM memberships
		WHERE id = ?`)

	var row membershipRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership not found")
		}
		return nil, err
	}
	return row.toModel()
}

// GetByUserAndWorkspace retrieves the membership binding a user to a workspace
func (r *MembershipRepository) GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*models.Membership, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, workspace_id, role, custom_permissions, created_at
		FROM memberships
		WHERE user_id = ? AND workspace_id = ?`)

	var row membershipRow
	if err := r.db.GetContext(ctx, &row, query, userID, workspaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership not found")
		}
		return nil, err
	}
	return row.toModel()
}

// ListByWorkspace retrieves all memberships for a workspace
func (r *MembershipRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Membership, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, workspace_id, role, custom_permissions, created_at
		FROM memberships
		WHERE workspace_id = ?
		ORDER BY created_at`)

	var rows []membershipRow
	if err := r.db.SelectContext(ctx, &rows, query, workspaceID); err != nil {
		return nil, err
	}

	memberships := make([]*models.Membership, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, nil
}

// UpdateRole sets a membership's role and replaces its custom permission
// override. Passing nil permissions clears the override, which resets the
// member to the role's default permission set.
func (r *MembershipRepository) UpdateRole(ctx context.Context, id string, role models.Role, customPermissions []models.Permission) error {
	perms, err := encodePermissions(customPermissions)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE memberships SET role = ?, custom_permissions = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, string(role), perms, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("membership not found")
	}
	return nil
}

// Delete removes a membership
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(`DELETE FROM memberships WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("membership not found")
	}
	return nil
}

// CountByRole counts memberships holding a role in a workspace
func (r *MembershipRepository) CountByRole(ctx context.Context, workspaceID string, role models.Role) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM memberships WHERE workspace_id = ? AND role = ?`)

	var count int
	if err := r.db.GetContext(ctx, &count, query, workspaceID, string(role)); err != nil {
		return 0, err
	}
	return count, nil
}

// TransferOwnership atomically makes the membership toID the workspace owner
// and demotes fromID to admin, clearing both custom permission overrides.
// The workspace is never observable with zero or two owners: both updates
// commit together or not at all, and the owner count is re-checked inside
// the transaction before commit.
func (r *MembershipRepository) TransferOwnership(ctx context.Context, workspaceID, fromID, toID string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	promote := tx.Rebind(`
		UPDATE memberships SET role = ?, custom_permissions = NULL
		WHERE id = ? AND workspace_id = ?`)

	result, err := tx.ExecContext(ctx, promote, string(models.RoleOwner), toID, workspaceID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("membership not found")
	}

	demote := tx.Rebind(`
		UPDATE memberships SET role = ?, custom_permissions = NULL
		WHERE id = ? AND workspace_id = ?`)

	result, err = tx.ExecContext(ctx, demote, string(models.RoleAdmin), fromID, workspaceID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("membership not found")
	}

	countQuery := tx.Rebind(`SELECT COUNT(*) FROM memberships WHERE workspace_id = ? AND role = ?`)
	var owners int
	if err := tx.GetContext(ctx, &owners, countQuery, workspaceID, string(models.RoleOwner)); err != nil {
		return err
	}
	if owners != 1 {
		return fmt.Errorf("%w: transfer would leave %d owners for workspace %s", auth.ErrOwnershipInvariant, owners, workspaceID)
	}

	return tx.Commit()
}
