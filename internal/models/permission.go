package models

// Permission represents a single grantable capability within a workspace
type Permission string

const (
	// Conversation permissions
	PermissionConversationsRead   Permission = "conversations.read"
	PermissionConversationsReply  Permission = "conversations.reply"
	PermissionConversationsAssign Permission = "conversations.assign"
	PermissionConversationsClose  Permission = "conversations.close"
	PermissionConversationsDelete Permission = "conversations.delete"

	// User management permissions
	PermissionUsersRead   Permission = "users.read"
	PermissionUsersInvite Permission = "users.invite"
	PermissionUsersManage Permission = "users.manage"
	PermissionUsersRemove Permission = "users.remove"

	// Knowledge base permissions
	PermissionArticlesRead    Permission = "articles.read"
	PermissionArticlesCreate  Permission = "articles.create"
	PermissionArticlesPublish Permission = "articles.publish"
	PermissionArticlesDelete  Permission = "articles.delete"

	// Content tooling permissions
	PermissionSnippetsManage   Permission = "snippets.manage"
	PermissionToursManage      Permission = "tours.manage"
	PermissionChecklistsManage Permission = "checklists.manage"

	// Settings permissions
	PermissionSettingsWorkspace    Permission = "settings.workspace"
	PermissionSettingsSecurity     Permission = "settings.security"
	PermissionSettingsIntegrations Permission = "settings.integrations"
	PermissionSettingsBilling      Permission = "settings.billing"

	// Data permissions
	PermissionDataExport Permission = "data.export"
	PermissionDataDelete Permission = "data.delete"

	// Audit permissions
	PermissionAuditRead Permission = "audit.read"
)

// AllPermissions enumerates every permission the system defines
var AllPermissions = []Permission{
	PermissionConversationsRead,
	PermissionConversationsReply,
	PermissionConversationsAssign,
	PermissionConversationsClose,
	PermissionConversationsDelete,
	PermissionUsersRead,
	PermissionUsersInvite,
	PermissionUsersManage,
	PermissionUsersRemove,
	PermissionArticlesRead,
	PermissionArticlesCreate,
	PermissionArticlesPublish,
	PermissionArticlesDelete,
	PermissionSnippetsManage,
	PermissionToursManage,
	PermissionChecklistsManage,
	PermissionSettingsWorkspace,
	PermissionSettingsSecurity,
	PermissionSettingsIntegrations,
	PermissionSettingsBilling,
	PermissionDataExport,
	PermissionDataDelete,
	PermissionAuditRead,
}

// IsValid reports whether the permission is one of the known permissions
func (p Permission) IsValid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}
