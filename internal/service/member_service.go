package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
)

// ErrAlreadyMember is returned when a user already holds a membership in
// the target workspace
var ErrAlreadyMember = errors.New("user is already a workspace member")

// MemberService enforces the role transition policy on top of the
// authorization guard: role changes, member removal and ownership transfer.
type MemberService struct {
	guard       *auth.Guard
	memberships repository.IMembershipRepository
	logger      *log.Logger
	now         func() time.Time
}

// MemberOption configures the service
type MemberOption func(*MemberService)

// WithMemberLogger sets a custom logger
func WithMemberLogger(l *log.Logger) MemberOption {
	return func(s *MemberService) { s.logger = l }
}

// WithMemberNowFunc sets a custom time function (for testing)
func WithMemberNowFunc(fn func() time.Time) MemberOption {
	return func(s *MemberService) { s.now = fn }
}

// NewMemberService creates a new member service
func NewMemberService(guard *auth.Guard, memberships repository.IMembershipRepository, opts ...MemberOption) *MemberService {
	s := &MemberService{
		guard:       guard,
		memberships: memberships,
		logger:      log.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMembers returns the workspace's memberships. Like all read paths it
// never fails on authorization: a caller without users.read sees an empty
// list, indistinguishable from an empty workspace.
func (s *MemberService) ListMembers(ctx context.Context, principal *auth.Principal, workspaceID string) ([]*models.Membership, error) {
	if !s.guard.HasPermission(ctx, principal, workspaceID, models.PermissionUsersRead) {
		return nil, nil
	}
	return s.memberships.ListByWorkspace(ctx, workspaceID)
}

// AddMember creates a membership for a user who is not yet in the
// workspace. Members never enter as owner; ownership only moves via
// TransferOwnership.
func (s *MemberService) AddMember(ctx context.Context, principal *auth.Principal, workspaceID, userID string, role models.Role) (*models.Membership, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionUsersInvite); err != nil {
		return nil, err
	}

	if !role.IsValid() {
		return nil, &auth.InvalidTransitionError{Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if role == models.RoleOwner {
		return nil, &auth.InvalidTransitionError{Reason: "members cannot be added as owner"}
	}

	if existing, err := s.memberships.GetByUserAndWorkspace(ctx, userID, workspaceID); err == nil && existing != nil {
		return nil, ErrAlreadyMember
	}

	membership := &models.Membership{
		ID:          uuid.New().String(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	s.logger.Printf("members: added user %s to workspace %s as %s", userID, workspaceID, role)
	return membership, nil
}

// UpdateRole changes a member's role. An owner's role cannot be changed
// here (use TransferOwnership), nobody can be promoted to owner here, and
// promoting to admin requires the actor to be owner or admin. A successful
// change clears any custom permission override so the member's effective
// permissions become the new role's defaults.
func (s *MemberService) UpdateRole(ctx context.Context, principal *auth.Principal, workspaceID, membershipID string, newRole models.Role) (*models.Membership, error) {
	actor, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionUsersManage)
	if err != nil {
		return nil, err
	}

	target, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil || target.WorkspaceID != workspaceID {
		return nil, &auth.NotFoundError{Resource: "membership"}
	}

	if !newRole.IsValid() {
		return nil, &auth.InvalidTransitionError{Reason: fmt.Sprintf("unknown role %q", newRole)}
	}
	if target.Role == models.RoleOwner {
		return nil, &auth.InvalidTransitionError{Reason: "the owner's role can only change via ownership transfer"}
	}
	if newRole == models.RoleOwner {
		return nil, &auth.InvalidTransitionError{Reason: "promotion to owner requires ownership transfer"}
	}
	if newRole == models.RoleAdmin && actor.Role != models.RoleOwner && actor.Role != models.RoleAdmin {
		return nil, &auth.PermissionDeniedError{Permission: models.PermissionUsersManage}
	}

	if err := s.memberships.UpdateRole(ctx, membershipID, newRole, nil); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	s.logger.Printf("members: membership %s in workspace %s is now %s", membershipID, workspaceID, newRole)

	target.Role = newRole
	target.CustomPermissions = nil
	return target, nil
}

// SetCustomPermissions replaces a member's permission override. A non-empty
// set entirely supersedes the role's defaults; an empty set clears the
// override. The owner's permissions cannot be customized.
func (s *MemberService) SetCustomPermissions(ctx context.Context, principal *auth.Principal, workspaceID, membershipID string, permissions []models.Permission) (*models.Membership, error) {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionUsersManage); err != nil {
		return nil, err
	}

	target, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil || target.WorkspaceID != workspaceID {
		return nil, &auth.NotFoundError{Resource: "membership"}
	}
	if target.Role == models.RoleOwner {
		return nil, &auth.InvalidTransitionError{Reason: "the owner's permissions cannot be customized"}
	}

	for _, p := range permissions {
		if !p.IsValid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown permission %q", p)}
		}
	}

	if err := s.memberships.UpdateRole(ctx, membershipID, target.Role, permissions); err != nil {
		return nil, fmt.Errorf("failed to set custom permissions: %w", err)
	}

	target.CustomPermissions = permissions
	return target, nil
}

// RemoveMember deletes a membership. The owner can never be removed, no
// matter who asks; ownership has to move first.
func (s *MemberService) RemoveMember(ctx context.Context, principal *auth.Principal, workspaceID, membershipID string) error {
	if _, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionUsersManage); err != nil {
		return err
	}

	target, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil || target.WorkspaceID != workspaceID {
		return &auth.NotFoundError{Resource: "membership"}
	}
	if target.Role == models.RoleOwner {
		return &auth.InvalidTransitionError{Reason: "the owner cannot be removed; transfer ownership first"}
	}

	if err := s.memberships.Delete(ctx, membershipID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.logger.Printf("members: removed membership %s from workspace %s", membershipID, workspaceID)
	return nil
}

// TransferOwnership makes an existing member the workspace owner and
// demotes the current owner to admin, in one atomic step. The workspace
// holds exactly one owner before and after.
func (s *MemberService) TransferOwnership(ctx context.Context, principal *auth.Principal, workspaceID, newOwnerUserID string) error {
	actor, err := s.guard.RequirePermission(ctx, principal, workspaceID, models.PermissionUsersManage)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleOwner {
		return &auth.InvalidTransitionError{Reason: "only the owner can transfer ownership"}
	}
	if newOwnerUserID == actor.UserID {
		return &auth.InvalidTransitionError{Reason: "the owner already owns this workspace"}
	}

	target, err := s.memberships.GetByUserAndWorkspace(ctx, newOwnerUserID, workspaceID)
	if err != nil || target == nil {
		return &auth.NotFoundError{Resource: "membership"}
	}

	if err := s.memberships.TransferOwnership(ctx, workspaceID, actor.ID, target.ID); err != nil {
		return fmt.Errorf("ownership transfer failed: %w", err)
	}

	s.logger.Printf("members: workspace %s ownership transferred from %s to %s", workspaceID, actor.UserID, newOwnerUserID)
	return nil
}
