// Package cache keeps group records in Redis in front of the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proposalsapp/api/internal/store"
)

const DefaultTTL = 5 * time.Minute

type groupRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Items     []store.GroupItem `json:"items"`
	CreatedAt time.Time         `json:"created_at"`
}

// GroupCache stores group membership lists under "group:<id>" with a TTL.
type GroupCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewGroupCache connects to redisURL and checks the connection.
func NewGroupCache(redisURL string, ttl time.Duration) (*GroupCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewGroupCacheWithClient(client, ttl), nil
}

// NewGroupCacheWithClient creates a cache from an existing Redis client.
func NewGroupCacheWithClient(client *redis.Client, ttl time.Duration) *GroupCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &GroupCache{client: client, prefix: "group:", ttl: ttl}
}

func (c *GroupCache) key(groupID string) string {
	return c.prefix + groupID
}

// Get returns the cached group. found is false on a miss.
func (c *GroupCache) Get(ctx context.Context, groupID string) (store.Group, bool, error) {
	raw, err := c.client.Get(ctx, c.key(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Group{}, false, nil
	}
	if err != nil {
		return store.Group{}, false, fmt.Errorf("get cached group: %w", err)
	}

	var rec groupRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return store.Group{}, false, fmt.Errorf("unmarshal cached group: %w", err)
	}
	return store.Group{ID: rec.ID, Name: rec.Name, Items: rec.Items, CreatedAt: rec.CreatedAt}, true, nil
}

func (c *GroupCache) Put(ctx context.Context, group store.Group) error {
	raw, err := json.Marshal(groupRecord{
		ID:        group.ID,
		Name:      group.Name,
		Items:     group.Items,
		CreatedAt: group.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal group: %w", err)
	}
	if err := c.client.Set(ctx, c.key(group.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache group: %w", err)
	}
	return nil
}

// Invalidate drops a cached group. Missing keys are not an error.
func (c *GroupCache) Invalidate(ctx context.Context, groupID string) error {
	if err := c.client.Del(ctx, c.key(groupID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached group: %w", err)
	}
	return nil
}

func (c *GroupCache) Close() error {
	return c.client.Close()
}

func (c *GroupCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
