package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis 分布式锁
//
// 加锁：SET key value NX PX ttl，value 是持有者令牌，过期时间防止进程崩溃后死锁。
// 释放：Lua 脚本先比较 value 再删除，避免锁过期后误删别人的锁。
//
// 这里的锁只用来挡住同一订单的重复提交，资金正确性由数据库行锁保证。

var ErrLockFailed = errors.New("获取分布式锁失败")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// Guard 按业务 key 串行执行，client 为空时直接执行（单机部署或测试）
type Guard struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

const guardRetryInterval = 100 * time.Millisecond

// NewGuard 在 ttl 内按固定间隔重试，至少尝试一次
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{
		client:        client,
		ttl:           ttl,
		retryInterval: guardRetryInterval,
		maxRetries:    max(1, int(ttl/guardRetryInterval)),
	}
}

// Do 持有 key 对应的锁执行 fn
func (g *Guard) Do(ctx context.Context, key string, fn func() error) error {
	if g == nil || g.client == nil {
		return fn()
	}

	l := NewDistributedLock(g.client, key, uuid.NewString(), g.ttl)
	if err := l.Lock(ctx, g.retryInterval, g.maxRetries); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer func() {
		// 业务 ctx 可能已取消，释放锁用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}()

	return fn()
}

// OrderKey 订单维度的锁 key
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order:lock:%d", orderID)
}
