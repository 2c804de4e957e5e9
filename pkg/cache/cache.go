// Package cache 提供基于 Redis 的应答缓存。
// 缓存只是加速层：任何 Redis 故障都只记日志并返回安全默认值，绝不向调用方抛错。
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"ai-assist-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// Cache 是带降级语义的 Redis 缓存封装。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建缓存客户端。连接失败只告警，不阻止进程启动。
func New(addr, password string, db int, ttl time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnf("[Cache] Redis 连接失败，缓存降级为直通模式: %v", err)
	} else {
		log.Info("Redis cache connected successfully")
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// TTL 返回默认过期时间。
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Key 根据前缀和若干参数生成缓存键，格式为 prefix:md5(参数拼接)。
// 参数先拼接再取摘要，避免键中出现原始问题文本。
func (c *Cache) Key(prefix string, parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Get 读取字符串值。miss 或出错均返回 ("", false)。
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Warnf("[Cache] 读取失败 key=%s: %v", key, err)
		return "", false
	}
	return val, true
}

// GetJSON 读取并反序列化 JSON 值到 dest。任何失败返回 false。
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Warnf("[Cache] 反序列化失败 key=%s: %v", key, err)
		return false
	}
	return true
}

// Set 写入字符串值，使用默认 TTL。失败只记日志。
func (c *Cache) Set(ctx context.Context, key, value string) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL 写入字符串值并指定过期时间。
func (c *Cache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Warnf("[Cache] 写入失败 key=%s: %v", key, err)
	}
}

// SetJSON 序列化 value 后写入，使用默认 TTL。
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Warnf("[Cache] 序列化失败 key=%s: %v", key, err)
		return
	}
	c.Set(ctx, key, string(data))
}

// Delete 删除单个键。失败只记日志。
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		log.Warnf("[Cache] 删除失败 key=%s: %v", key, err)
	}
}

// Clear 按前缀批量清除键。失败只记日志。
func (c *Cache) Clear(ctx context.Context, prefix string) {
	iter := c.rdb.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warnf("[Cache] 清除失败 key=%s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Warnf("[Cache] 扫描失败 prefix=%s: %v", prefix, err)
	}
}
