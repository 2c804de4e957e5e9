package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试使用不可达的 Redis 地址，验证缓存的降级语义。
func newUnreachableCache(t *testing.T) *Cache {
	t.Helper()
	return New("127.0.0.1:1", "", 0, time.Minute)
}

func TestKeyIsDeterministic(t *testing.T) {
	c := newUnreachableCache(t)

	a := c.Key("answer", "question", "1", "true")
	b := c.Key("answer", "question", "1", "true")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "answer:")
}

func TestKeyVariesByParts(t *testing.T) {
	c := newUnreachableCache(t)

	base := c.Key("answer", "question", "1", "true")
	assert.NotEqual(t, base, c.Key("answer", "question", "2", "true"))
	assert.NotEqual(t, base, c.Key("answer", "question", "1", "false"))
	assert.NotEqual(t, base, c.Key("sql_gen", "question", "1", "true"))
}

func TestUnreachableRedisDegradesGracefully(t *testing.T) {
	c := newUnreachableCache(t)
	ctx := context.Background()

	// 写入失败只记日志
	c.Set(ctx, "k", "v")
	c.SetJSON(ctx, "k2", map[string]int{"a": 1})
	c.Delete(ctx, "k")

	// 读取失败返回 miss
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	var dest map[string]int
	assert.False(t, c.GetJSON(ctx, "k2", &dest))
}

func TestSetGetRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	c := New(srv.Addr(), "", 0, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestSetWithTTLExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	c := New(srv.Addr(), "", 0, time.Minute)
	ctx := context.Background()

	c.SetWithTTL(ctx, "k", "v", time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	// 过期后读取为 miss
	srv.FastForward(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestClearRemovesKeysByPrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	c := New(srv.Addr(), "", 0, time.Minute)
	ctx := context.Background()

	answerKey := c.Key("answer", "q1")
	sqlKey := c.Key("sql_gen", "q1")
	c.Set(ctx, answerKey, "a")
	c.Set(ctx, sqlKey, "s")

	c.Clear(ctx, "answer")

	_, ok := c.Get(ctx, answerKey)
	assert.False(t, ok)
	got, ok := c.Get(ctx, sqlKey)
	require.True(t, ok)
	assert.Equal(t, "s", got)
}

func TestTTLDefaultsToOneHour(t *testing.T) {
	c := New("127.0.0.1:1", "", 0, 0)
	require.Equal(t, time.Hour, c.TTL())
}
