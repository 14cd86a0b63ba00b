package history

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const cacheKeyPrefix = "history:"

// Loader 从数据库加载会话历史
type Loader func(ctx context.Context) ([]Turn, error)

// Cache 会话最近若干轮历史的 Redis 缓存
// 每个会话一个 list，新消息落库后追加到尾部并截断到 limit 条
// client 为 nil 时直接回源
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	limit  int64
}

// NewCache 创建历史缓存，limit <= 0 时不截断
func NewCache(client *redis.Client, ttl time.Duration, limit int) *Cache {
	return &Cache{client: client, ttl: ttl, limit: int64(limit)}
}

// Enabled 是否启用了 Redis
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func cacheKey(sessionID string) string {
	return cacheKeyPrefix + sessionID
}

// Load 读取会话历史，未命中时回源并写回缓存
// Redis 出错只记录日志，不影响主流程
func (c *Cache) Load(ctx context.Context, sessionID string, load Loader) ([]Turn, error) {
	if !c.Enabled() {
		return load(ctx)
	}

	key := cacheKey(sessionID)
	items, err := c.client.LRange(ctx, key, 0, -1).Result()
	switch {
	case err != nil:
		log.Printf("[history] redis lrange %s failed: %v", key, err)
	case len(items) > 0:
		if turns, ok := decodeTurns(items); ok {
			return turns, nil
		}
		log.Printf("[history] drop corrupted cache entry %s", key)
	}

	turns, err := load(ctx)
	if err != nil {
		return nil, err
	}
	turns = c.tail(turns)
	c.fill(ctx, key, turns)
	return turns, nil
}

// Append 新消息落库后写入缓存
// 只追加到已存在的 list，缺失时留给下一次 Load 从数据库整体回填
func (c *Cache) Append(ctx context.Context, sessionID string, turn Turn) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return
	}
	key := cacheKey(sessionID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPushX(ctx, key, data)
		if c.limit > 0 {
			pipe.LTrim(ctx, key, -c.limit, -1)
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		log.Printf("[history] redis append %s failed: %v", key, err)
		c.Invalidate(ctx, sessionID)
	}
}

// Invalidate 会话被删除或缓存写入失败后清除缓存
func (c *Cache) Invalidate(ctx context.Context, sessionID string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		log.Printf("[history] redis del %s failed: %v", sessionID, err)
	}
}

func (c *Cache) fill(ctx context.Context, key string, turns []Turn) {
	if len(turns) == 0 {
		return
	}

	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return
		}
		values = append(values, data)
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, values...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		log.Printf("[history] redis fill %s failed: %v", key, err)
	}
}

func (c *Cache) tail(turns []Turn) []Turn {
	if c.limit > 0 && int64(len(turns)) > c.limit {
		return turns[int64(len(turns))-c.limit:]
	}
	return turns
}

func decodeTurns(items []string) ([]Turn, bool) {
	turns := make([]Turn, 0, len(items))
	for _, item := range items {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, false
		}
		turns = append(turns, t)
	}
	return turns, true
}
