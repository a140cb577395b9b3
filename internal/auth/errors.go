package auth

import (
	"errors"
	"fmt"

	"github.com/converso-io/converso-ce/internal/models"
)

var (
	// ErrNotAuthenticated means no principal was supplied at all
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotWorkspaceMember means the principal holds no membership in the
	// target workspace
	ErrNotWorkspaceMember = errors.New("not a workspace member")

	// ErrOwnershipInvariant signals an internal bug: a mutation would have
	// left the workspace with zero or two owners. It must never surface
	// from a correct sequence of operations.
	ErrOwnershipInvariant = errors.New("workspace ownership invariant violated")
)

// PermissionDeniedError means the membership exists but lacks the permission
type PermissionDeniedError struct {
	Permission models.Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

// NotFoundError means the referenced resource is absent or belongs to a
// different workspace than the caller's
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// InvalidRuleReferenceError means a reorder batch referenced a rule outside
// the workspace; the batch is rejected without touching any rule
type InvalidRuleReferenceError struct {
	RuleID string
}

func (e *InvalidRuleReferenceError) Error() string {
	return fmt.Sprintf("rule %s does not belong to this workspace", e.RuleID)
}

// InvalidTransitionError means a role change, removal or transfer violated
// the transition policy
type InvalidTransitionError struct {
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid role transition: %s", e.Reason)
}

// IsPermissionDenied reports whether err is a permission denial
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}

// IsNotFound reports whether err is a missing-resource error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
