package auth

import (
	"context"

	"github.com/converso-io/converso-ce/internal/models"
)

// Principal is the authenticated caller attempting an operation. It is
// threaded explicitly into every guard call; there is no ambient current
// user. A nil *Principal means the caller is unauthenticated.
type Principal struct {
	UserID string
	Email  string
}

// MembershipStore is the membership lookup the guard depends on. The SQL
// repository and the redis-cached wrapper both satisfy it.
type MembershipStore interface {
	GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*models.Membership, error)
}

// Guard answers authorization questions for workspace-scoped operations.
// Read paths use HasPermission and never see errors; write paths use
// RequirePermission and propagate its typed errors unchanged.
type Guard struct {
	catalog *Catalog
	store   MembershipStore
}

// NewGuard creates a guard over the given membership store
func NewGuard(catalog *Catalog, store MembershipStore) *Guard {
	return &Guard{catalog: catalog, store: store}
}

// HasPermission reports whether the principal may perform the action. It
// returns false for unauthenticated callers, non-members and lookup
// failures; it never returns an error.
func (g *Guard) HasPermission(ctx context.Context, principal *Principal, workspaceID string, permission models.Permission) bool {
	if principal == nil {
		return false
	}
	membership, err := g.store.GetByUserAndWorkspace(ctx, principal.UserID, workspaceID)
	if err != nil || membership == nil {
		return false
	}
	return g.catalog.MemberHasPermission(membership, permission)
}

// RequirePermission returns the caller's membership if it grants the
// permission, and a typed error otherwise. Callers must run this before
// any state mutation in the same operation.
func (g *Guard) RequirePermission(ctx context.Context, principal *Principal, workspaceID string, permission models.Permission) (*models.Membership, error) {
	if principal == nil {
		return nil, ErrNotAuthenticated
	}
	membership, err := g.store.GetByUserAndWorkspace(ctx, principal.UserID, workspaceID)
	if err != nil || membership == nil {
		return nil, ErrNotWorkspaceMember
	}
	if !g.catalog.MemberHasPermission(membership, permission) {
		return nil, &PermissionDeniedError{Permission: permission}
	}
	return membership, nil
}

// HasAnyPermission reports whether at least one of the permissions is held
func (g *Guard) HasAnyPermission(ctx context.Context, principal *Principal, workspaceID string, permissions ...models.Permission) bool {
	for _, p := range permissions {
		if g.HasPermission(ctx, principal, workspaceID, p) {
			return true
		}
	}
	return false
}

// IsOwner reports whether the principal holds the owner membership
func (g *Guard) IsOwner(ctx context.Context, principal *Principal, workspaceID string) bool {
	if principal == nil {
		return false
	}
	membership, err := g.store.GetByUserAndWorkspace(ctx, principal.UserID, workspaceID)
	if err != nil || membership == nil {
		return false
	}
	return membership.Role == models.RoleOwner
}
