package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"contentpay/internal/bizerr"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestUnlockOnlyOwnToken(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "lock:test", "token-a", time.Minute)
	b := NewDistributedLock(client, "lock:test", "token-b", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Unlock(ctx))
	require.True(t, mr.Exists("lock:test"))

	require.NoError(t, a.Unlock(ctx))
	require.False(t, mr.Exists("lock:test"))
}

func TestLockGivesUpWithBusy(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "lock:busy", "holder", time.Minute)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewDistributedLock(client, "lock:busy", "waiter", time.Minute)
	err = waiter.Lock(ctx, time.Millisecond, 3)
	require.ErrorIs(t, err, bizerr.ErrBusy)
}

func TestAcquireOrderedReleasesOnFailure(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, time.Minute)
	locker.maxRetries = 2
	locker.retryInterval = time.Millisecond

	require.NoError(t, mr.Set(WalletKey(9), "someone"))

	_, err := locker.AcquireOrdered(ctx, OrderKey("ORD1"), WalletKey(9))
	require.ErrorIs(t, err, ErrLockFailed)
	require.False(t, mr.Exists(OrderKey("ORD1")))
	require.True(t, mr.Exists(WalletKey(9)))
}

func TestAcquireOrderedSerializes(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client, time.Minute)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.AcquireOrdered(context.Background(), OrderKey("ORD2"), WalletKey(1))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
}
