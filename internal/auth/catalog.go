package auth

import "github.com/converso-io/converso-ce/internal/models"

// Catalog is the static role-to-permission table. It is built once at
// process start and never mutated afterwards.
type Catalog struct {
	rolePermissions map[models.Role]map[models.Permission]bool
}

// NewCatalog creates the permission catalog
func NewCatalog() *Catalog {
	c := &Catalog{
		rolePermissions: make(map[models.Role]map[models.Permission]bool),
	}
	c.initializePermissions()
	return c
}

func (c *Catalog) initializePermissions() {
	// Owner has every permission
	c.setRole(models.RoleOwner, models.AllPermissions)

	// Admin has everything except billing and destructive data operations
	admin := make([]models.Permission, 0, len(models.AllPermissions))
	for _, p := range models.AllPermissions {
		if p == models.PermissionSettingsBilling || p == models.PermissionDataDelete {
			continue
		}
		admin = append(admin, p)
	}
	c.setRole(models.RoleAdmin, admin)

	// Agent works conversations and the knowledge base
	c.setRole(models.RoleAgent, []models.Permission{
		models.PermissionConversationsRead,
		models.PermissionConversationsReply,
		models.PermissionConversationsAssign,
		models.PermissionConversationsClose,
		models.PermissionUsersRead,
		models.PermissionArticlesRead,
		models.PermissionArticlesCreate,
		models.PermissionSnippetsManage,
	})

	// Viewer is read-only
	c.setRole(models.RoleViewer, []models.Permission{
		models.PermissionConversationsRead,
		models.PermissionUsersRead,
		models.PermissionArticlesRead,
	})
}

func (c *Catalog) setRole(role models.Role, perms []models.Permission) {
	set := make(map[models.Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	c.rolePermissions[role] = set
}

// PermissionsFor returns the default permission set for a role
func (c *Catalog) PermissionsFor(role models.Role) []models.Permission {
	set, exists := c.rolePermissions[role]
	if !exists {
		return nil
	}
	perms := make([]models.Permission, 0, len(set))
	for _, p := range models.AllPermissions {
		if set[p] {
			perms = append(perms, p)
		}
	}
	return perms
}

// RoleHasPermission reports whether a role's default set grants a permission
func (c *Catalog) RoleHasPermission(role models.Role, permission models.Permission) bool {
	set, exists := c.rolePermissions[role]
	if !exists {
		return false
	}
	return set[permission]
}

// MemberHasPermission resolves a membership's effective permission. A
// non-empty custom permission set entirely replaces the role's defaults; it
// does not union with them.
func (c *Catalog) MemberHasPermission(m *models.Membership, permission models.Permission) bool {
	if m == nil {
		return false
	}
	if m.HasCustomPermissions() {
		for _, p := range m.CustomPermissions {
			if p == permission {
				return true
			}
		}
		return false
	}
	return c.RoleHasPermission(m.Role, permission)
}
