package models

import "time"

// Role represents a member's role within a workspace
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleViewer Role = "viewer"
)

// ValidRoles lists every role the system accepts
var ValidRoles = []Role{RoleOwner, RoleAdmin, RoleAgent, RoleViewer}

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAgent, RoleViewer:
		return true
	}
	return false
}

// Membership binds a user to a workspace with a role and an optional
// permission override. A non-empty CustomPermissions set entirely replaces
// the role's default permissions; it is never merged with them.
type Membership struct {
	ID                string       `json:"id" db:"id"`
	UserID            string       `json:"user_id" db:"user_id"`
	WorkspaceID       string       `json:"workspace_id" db:"workspace_id"`
	Role              Role         `json:"role" db:"role"`
	CustomPermissions []Permission `json:"custom_permissions,omitempty" db:"-"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// HasCustomPermissions reports whether the override set is active
func (m *Membership) HasCustomPermissions() bool {
	return len(m.CustomPermissions) > 0
}
