package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// devSchema is the bootstrap DDL for sqlite development databases. Postgres
// deployments are expected to run proper migrations instead.
var devSchema = []string{
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		role TEXT NOT NULL,
		custom_permissions TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, workspace_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_rules (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		name TEXT NOT NULL,
		priority INTEGER NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		conditions TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignment_rules_workspace_priority
		ON assignment_rules (workspace_id, priority)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		email TEXT,
		name TEXT,
		country TEXT,
		attributes TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		visitor_id TEXT NOT NULL REFERENCES visitors(id),
		channel TEXT NOT NULL,
		source TEXT,
		assignee_user_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		author_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
		ON messages (conversation_id, created_at)`,
}

// BootstrapDevSchema creates the tables a fresh sqlite database needs
func BootstrapDevSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range devSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
