// Package redis 提供头寸按 ID 查询的读模型缓存。
package redis

import (
	"context"
	"time"

	"github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/pkg/cache"
)

const keyPrefix = "operation:"

// OperationRedisRepository 基于 Redis 的读模型缓存实现
type OperationRedisRepository struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewOperationRedisRepository 创建读模型缓存实例
func NewOperationRedisRepository(c *cache.RedisCache) *OperationRedisRepository {
	return &OperationRedisRepository{
		cache: c,
		ttl:   15 * time.Minute,
	}
}

// Save 写入缓存
func (r *OperationRedisRepository) Save(ctx context.Context, op *domain.Operation) error {
	if op == nil || op.ID == "" {
		return nil
	}
	return r.cache.SetJSON(ctx, keyPrefix+op.ID, op, r.ttl)
}

// Get 读取缓存；未命中时返回 (nil, nil)
func (r *OperationRedisRepository) Get(ctx context.Context, id string) (*domain.Operation, error) {
	if id == "" {
		return nil, nil
	}
	var op domain.Operation
	found, err := r.cache.GetJSON(ctx, keyPrefix+id, &op)
	if err != nil || !found {
		return nil, err
	}
	return &op, nil
}

// Invalidate 删除缓存键
func (r *OperationRedisRepository) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	return r.cache.Delete(ctx, keys...)
}
