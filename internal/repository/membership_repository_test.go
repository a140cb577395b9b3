package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-io/converso-ce/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestMembershipGetByUserAndWorkspace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Decodes custom permissions", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "workspace_id", "role", "custom_permissions", "created_at"}).
			AddRow("m1", "u1", "ws1", "agent", `["conversations.read"]`, created)

		mock.ExpectQuery("SELECT id, user_id, workspace_id, role, custom_permissions, created_at").
			WithArgs("u1", "ws1").
			WillReturnRows(rows)

		m, err := repo.GetByUserAndWorkspace(context.Background(), "u1", "ws1")
		require.NoError(t, err)
		assert.Equal(t, models.RoleAgent, m.Role)
		assert.Equal(t, []models.Permission{models.PermissionConversationsRead}, m.CustomPermissions)
	})

	t.Run("Null override means role defaults", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "workspace_id", "role", "custom_permissions", "created_at"}).
			AddRow("m2", "u2", "ws1", "admin", nil, created)

		mock.ExpectQuery("SELECT id, user_id, workspace_id, role, custom_permissions, created_at").
			WithArgs("u2", "ws1").
			WillReturnRows(rows)

		m, err := repo.GetByUserAndWorkspace(context.Background(), "u2", "ws1")
		require.NoError(t, err)
		assert.False(t, m.HasCustomPermissions())
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipUpdateRoleClearsOverride(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)

	mock.ExpectExec("UPDATE memberships SET role").
		WithArgs("admin", nil, "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateRole(context.Background(), "m1", models.RoleAdmin, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipTransferOwnership(t *testing.T) {
	t.Run("Commits both role changes together", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE memberships SET role").
			WithArgs("owner", "m2", "ws1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE memberships SET role").
			WithArgs("admin", "m1", "ws1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("ws1", "owner").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectCommit()

		err := repo.TransferOwnership(context.Background(), "ws1", "m1", "m2")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rolls back when target membership is missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE memberships SET role").
			WithArgs("owner", "ghost", "ws1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.TransferOwnership(context.Background(), "ws1", "m1", "ghost")
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rolls back when the owner count is off", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE memberships SET role").
			WithArgs("owner", "m2", "ws1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE memberships SET role").
			WithArgs("admin", "m1", "ws1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("ws1", "owner").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		err := repo.TransferOwnership(context.Background(), "ws1", "m1", "m2")
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
