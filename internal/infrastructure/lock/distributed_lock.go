package lock

import (
	"context"
	"fmt"
	"time"

	"contentpay/internal/bizerr"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// 加锁：SET key token NX EX ttl
// 释放：Lua 脚本比对 token 后删除，避免误删他人的锁

var ErrLockFailed = &bizerr.Error{Kind: bizerr.KindBusy, Msg: "获取分布式锁失败"}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock 单个 key 的分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	token      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, token string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		token:      token,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// Lock 阻塞加锁，超过重试次数返回 ErrLockFailed
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return bizerr.Newf(ErrLockFailed, "获取分布式锁失败: %s", l.key)
}

// Unlock 只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

func OrderKey(orderNo string) string {
	return fmt.Sprintf("lock:order:%s", orderNo)
}

func WalletKey(userID int64) string {
	return fmt.Sprintf("lock:wallet:%d", userID)
}

// Locker 锁工厂，统一过期时间与重试策略
type Locker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{
		client:        client,
		ttl:           ttl,
		retryInterval: 20 * time.Millisecond,
		maxRetries:    250,
	}
}

// New 每把锁使用独立的 uuid 作为持有者标识
func (l *Locker) New(key string) *DistributedLock {
	return NewDistributedLock(l.client, key, uuid.NewString(), l.ttl)
}

// AcquireOrdered 按参数顺序依次加锁（订单锁在前，钱包锁在后）
// 任一失败会释放已获得的锁；成功时返回的 release 逆序释放
func (l *Locker) AcquireOrdered(ctx context.Context, keys ...string) (func(), error) {
	held := make([]*DistributedLock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(context.Background()); err != nil {
				log.WithError(err).WithField("key", held[i].Key()).Warn("[Lock] 释放锁失败")
			}
		}
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		dl := l.New(key)
		if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
			release()
			return nil, err
		}
		held = append(held, dl)
	}
	return release, nil
}
