package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/converso-io/converso-ce/internal/auth"
	"github.com/converso-io/converso-ce/internal/models"
)

// RuleRepository provides an in-memory implementation of the
// IRuleRepository interface
type RuleRepository struct {
	rules map[string]*models.AssignmentRule
	mu    sync.RWMutex
}

// NewRuleRepository creates a new in-memory rule repository
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		rules: make(map[string]*models.AssignmentRule),
	}
}

func cloneRule(rule *models.AssignmentRule) *models.AssignmentRule {
	clone := *rule
	if rule.Conditions != nil {
		clone.Conditions = append([]models.Condition(nil), rule.Conditions...)
	}
	return &clone
}

// Create stores a rule at the end of the workspace's priority order
func (r *RuleRepository) Create(ctx context.Context, rule *models.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return fmt.Errorf("rule already exists")
	}

	next := 0
	for _, existing := range r.rules {
		if existing.WorkspaceID == rule.WorkspaceID && existing.Priority >= next {
			next = existing.Priority + 1
		}
	}
	rule.Priority = next
	r.rules[rule.ID] = cloneRule(rule)
	return nil
}

// GetByID retrieves a rule by id
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AssignmentRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule not found")
	}
	return cloneRule(rule), nil
}

// ListByWorkspace retrieves all rules for a workspace in ascending priority order
func (r *RuleRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.AssignmentRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []*models.AssignmentRule
	for _, rule := range r.rules {
		if rule.WorkspaceID == workspaceID {
			rules = append(rules, cloneRule(rule))
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules, nil
}

// Update persists a rule's mutable fields
func (r *RuleRepository) Update(ctx context.Context, rule *models.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule not found")
	}
	existing.Name = rule.Name
	existing.Enabled = rule.Enabled
	existing.Conditions = append([]models.Condition(nil), rule.Conditions...)
	existing.Action = rule.Action
	existing.UpdatedAt = rule.UpdatedAt
	return nil
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[id]; !exists {
		return fmt.Errorf("rule not found")
	}
	delete(r.rules, id)
	return nil
}

// Reorder rewrites priorities so that priority[i] = i for ruleIDs[i]. The
// whole batch is validated before any priority changes; a foreign id leaves
// every rule untouched.
func (r *RuleRepository) Reorder(ctx context.Context, workspaceID string, ruleIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ruleIDs {
		rule, exists := r.rules[id]
		if !exists || rule.WorkspaceID != workspaceID {
			return &auth.InvalidRuleReferenceError{RuleID: id}
		}
	}

	for i, id := range ruleIDs {
		r.rules[id].Priority = i
	}
	return nil
}
