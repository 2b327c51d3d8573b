package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

type backend interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryEntry, error)
	CreateTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, rev domain.Revision) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	BatchUpdate(ctx context.Context, ownerID string, revs []domain.Revision) error
	BatchDelete(ctx context.Context, ownerID string, taskIDs []string) error
	AppendHistory(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error
}

// Cache wraps a backend with Redis-backed caching for list operations. Every
// write evicts the owner's cached lists, whether or not it succeeded.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL turns caching off.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(ownerID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(ownerID), tasks)
	return tasks, nil
}

func (c *Cache) ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if c.load(ctx, historyCacheKey(ownerID), &entries) {
		return entries, nil
	}
	entries, err := c.base.ListHistory(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, historyCacheKey(ownerID), entries)
	return entries, nil
}

func (c *Cache) CreateTask(ctx context.Context, task domain.Task) error {
	defer c.evict(ctx, task.OwnerID)
	return c.base.CreateTask(ctx, task)
}

func (c *Cache) UpdateTask(ctx context.Context, rev domain.Revision) error {
	defer c.evict(ctx, rev.Task.OwnerID)
	return c.base.UpdateTask(ctx, rev)
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	defer c.evict(ctx, ownerID)
	return c.base.DeleteTask(ctx, ownerID, taskID)
}

func (c *Cache) BatchUpdate(ctx context.Context, ownerID string, revs []domain.Revision) error {
	defer c.evict(ctx, ownerID)
	return c.base.BatchUpdate(ctx, ownerID, revs)
}

func (c *Cache) BatchDelete(ctx context.Context, ownerID string, taskIDs []string) error {
	defer c.evict(ctx, ownerID)
	return c.base.BatchDelete(ctx, ownerID, taskIDs)
}

func (c *Cache) AppendHistory(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error {
	defer c.evict(ctx, ownerID)
	return c.base.AppendHistory(ctx, ownerID, entries)
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(ownerID), historyCacheKey(ownerID)).Result()
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}

func historyCacheKey(ownerID string) string {
	return "history:" + ownerID
}
