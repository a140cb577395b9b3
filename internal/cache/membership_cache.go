package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
)

const defaultTTL = 5 * time.Minute

// MembershipCache is a read-through redis cache in front of a membership
// repository. Authorization checks hit GetByUserAndWorkspace on every
// request, so that lookup is the one worth caching. Mutations write through
// to the underlying repository and invalidate the affected entries; cache
// errors degrade to the database rather than failing the request.
type MembershipCache struct {
	inner  repository.IMembershipRepository
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// CacheOption configures a MembershipCache
type CacheOption func(*MembershipCache)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *MembershipCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *log.Logger) CacheOption {
	return func(c *MembershipCache) {
		c.logger = logger
	}
}

func NewMembershipCache(inner repository.IMembershipRepository, client *redis.Client, opts ...CacheOption) *MembershipCache {
	c := &MembershipCache{
		inner:  inner,
		client: client,
		ttl:    defaultTTL,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func membershipKey(userID, workspaceID string) string {
	return fmt.Sprintf("converso:membership:%s:%s", workspaceID, userID)
}

func workspacePattern(workspaceID string) string {
	return fmt.Sprintf("converso:membership:%s:*", workspaceID)
}

func (c *MembershipCache) GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*models.Membership, error) {
	key := membershipKey(userID, workspaceID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		membership := &models.Membership{}
		if unmarshalErr := json.Unmarshal(data, membership); unmarshalErr == nil {
			return membership, nil
		}
		// Corrupt entry; drop and reload
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Printf("cache: redis get failed, falling back to database: %v", err)
	}

	membership, err := c.inner.GetByUserAndWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	if membership != nil {
		if data, marshalErr := json.Marshal(membership); marshalErr == nil {
			if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
				c.logger.Printf("cache: redis set failed: %v", setErr)
			}
		}
	}
	return membership, nil
}

func (c *MembershipCache) Create(ctx context.Context, membership *models.Membership) error {
	if err := c.inner.Create(ctx, membership); err != nil {
		return err
	}
	c.invalidate(ctx, membershipKey(membership.UserID, membership.WorkspaceID))
	return nil
}

func (c *MembershipCache) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	return c.inner.GetByID(ctx, id)
}

func (c *MembershipCache) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Membership, error) {
	return c.inner.ListByWorkspace(ctx, workspaceID)
}

func (c *MembershipCache) UpdateRole(ctx context.Context, id string, role models.Role, customPermissions []models.Permission) error {
	membership, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.inner.UpdateRole(ctx, id, role, customPermissions); err != nil {
		return err
	}
	if membership != nil {
		c.invalidate(ctx, membershipKey(membership.UserID, membership.WorkspaceID))
	}
	return nil
}

func (c *MembershipCache) Delete(ctx context.Context, id string) error {
	membership, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	if membership != nil {
		c.invalidate(ctx, membershipKey(membership.UserID, membership.WorkspaceID))
	}
	return nil
}

func (c *MembershipCache) CountByRole(ctx context.Context, workspaceID string, role models.Role) (int, error) {
	return c.inner.CountByRole(ctx, workspaceID, role)
}

// TransferOwnership changes two memberships at once, so the whole workspace's
// cached entries are flushed.
func (c *MembershipCache) TransferOwnership(ctx context.Context, workspaceID, fromID, toID string) error {
	if err := c.inner.TransferOwnership(ctx, workspaceID, fromID, toID); err != nil {
		return err
	}
	c.invalidateWorkspace(ctx, workspaceID)
	return nil
}

func (c *MembershipCache) invalidate(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Printf("cache: redis invalidation failed: %v", err)
	}
}

func (c *MembershipCache) invalidateWorkspace(ctx context.Context, workspaceID string) {
	iter := c.client.Scan(ctx, 0, workspacePattern(workspaceID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Printf("cache: redis scan failed: %v", err)
		return
	}
	if len(keys) > 0 {
		c.invalidate(ctx, keys...)
	}
}
