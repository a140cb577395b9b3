package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
)

// MembershipRepository provides an in-memory implementation of the
// IMembershipRepository interface
type MembershipRepository struct {
	memberships map[string]*models.Membership
	mu          sync.RWMutex
}

// NewMembershipRepository creates a new in-memory membership repository
func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{
		memberships: make(map[string]*models.Membership),
	}
}

func cloneMembership(m *models.Membership) *models.Membership {
	clone := *m
	if m.CustomPermissions != nil {
		clone.CustomPermissions = append([]models.Permission(nil), m.CustomPermissions...)
	}
	return &clone
}

// Create stores a new membership
func (r *MembershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.memberships[membership.ID]; exists {
		return fmt.Errorf("membership already exists")
	}
	r.memberships[membership.ID] = cloneMembership(membership)
	return nil
}

// GetByID retrieves a membership by id
func (r *MembershipRepository) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	membership, exists := r.memberships[id]
	if !exists {
		return nil, fmt.Errorf("membership not found")
	}
	return cloneMembership(membership), nil
}

// GetByUserAndWorkspace retrieves the membership binding a user to a workspace
func (r *MembershipRepository) GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.memberships {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			return cloneMembership(m), nil
		}
	}
	return nil, fmt.Errorf("membership not found")
}

// ListByWorkspace retrieves all memberships for a workspace
func (r *MembershipRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var memberships []*models.Membership
	for _, m := range r.memberships {
		if m.WorkspaceID == workspaceID {
			memberships = append(memberships, cloneMembership(m))
		}
	}
	return memberships, nil
}

// UpdateRole sets a membership's role and replaces its custom permissions
func (r *MembershipRepository) UpdateRole(ctx context.Context, id string, role models.Role, customPermissions []models.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	membership, exists := r.memberships[id]
	if !exists {
		return fmt.Errorf("membership not found")
	}
	membership.Role = role
	if customPermissions == nil {
		membership.CustomPermissions = nil
	} else {
		membership.CustomPermissions = append([]models.Permission(nil), customPermissions...)
	}
	return nil
}

// Delete removes a membership
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.memberships[id]; !exists {
		return fmt.Errorf("membership not found")
	}
	delete(r.memberships, id)
	return nil
}

// CountByRole counts memberships holding a role in a workspace
func (r *MembershipRepository) CountByRole(ctx context.Context, workspaceID string, role models.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, m := range r.memberships {
		if m.WorkspaceID == workspaceID && m.Role == role {
			count++
		}
	}
	return count, nil
}

// TransferOwnership atomically promotes toID to owner and demotes fromID to
// admin, clearing both custom permission overrides
func (r *MembershipRepository) TransferOwnership(ctx context.Context, workspaceID, fromID, toID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, exists := r.memberships[fromID]
	if !exists || from.WorkspaceID != workspaceID {
		return fmt.Errorf("membership not found")
	}
	to, exists := r.memberships[toID]
	if !exists || to.WorkspaceID != workspaceID {
		return fmt.Errorf("membership not found")
	}

	// Count owners as they would be after the swap, before writing anything
	owners := 0
	for id, m := range r.memberships {
		if m.WorkspaceID != workspaceID {
			continue
		}
		role := m.Role
		switch id {
		case toID:
			role = models.RoleOwner
		case fromID:
			role = models.RoleAdmin
		}
		if role == models.RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		return fmt.Errorf("%w: transfer would leave %d owners for workspace %s", auth.ErrOwnershipInvariant, owners, workspaceID)
	}

	to.Role = models.RoleOwner
	to.CustomPermissions = nil
	from.Role = models.RoleAdmin
	from.CustomPermissions = nil
	return nil
}
