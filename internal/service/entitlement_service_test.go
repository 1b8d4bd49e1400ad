package service

import (
	"context"
	"testing"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"github.com/stretchr/testify/require"
)

func grantReq(orderNo string, permanent bool, days int) *GrantRequest {
	return &GrantRequest{
		UserID:        1,
		ContentID:     10,
		OrderID:       1,
		OrderNo:       orderNo,
		CoinAmount:    40,
		OriginalPrice: 50,
		Permanent:     permanent,
		ValidDays:     days,
	}
}

func TestGrantOncePerOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement

	e, err := svc.Grant(ctx, env.db, grantReq("ORD-1", false, 7))
	require.NoError(t, err)
	require.Equal(t, int64(10), e.DiscountAmount)
	require.NotNil(t, e.ExpireTime)

	_, err = svc.Grant(ctx, env.db, grantReq("ORD-1", false, 7))
	require.ErrorIs(t, err, bizerr.ErrDuplicateGrant)
}

func TestPermanentRepurchaseRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement

	_, err := svc.Grant(ctx, env.db, grantReq("ORD-1", true, 0))
	require.NoError(t, err)

	_, err = svc.Grant(ctx, env.db, grantReq("ORD-2", true, 0))
	require.ErrorIs(t, err, bizerr.ErrDuplicateGrant)
	_, err = svc.Grant(ctx, env.db, grantReq("ORD-3", false, 3))
	require.ErrorIs(t, err, bizerr.ErrDuplicateGrant)

	owned, err := svc.HasPermanent(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, owned)
}

func TestTimeLimitedRepurchaseStacks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	first, err := svc.Grant(ctx, env.db, grantReq("ORD-1", false, 7))
	require.NoError(t, err)
	require.True(t, first.ExpireTime.Equal(now.AddDate(0, 0, 7)))

	second, err := svc.Grant(ctx, env.db, grantReq("ORD-2", false, 7))
	require.NoError(t, err)
	require.True(t, second.ExpireTime.Equal(now.AddDate(0, 0, 14)))

	// 撤销续购只回收延长的部分
	_, err = svc.RevokeByOrder(ctx, env.db, "ORD-2", "退款")
	require.NoError(t, err)
	ok, err := svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRevokeEarlierStackedPullsLaterForward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Grant(ctx, env.db, grantReq("ORD-1", false, 7))
	require.NoError(t, err)
	second, err := svc.Grant(ctx, env.db, grantReq("ORD-2", false, 7))
	require.NoError(t, err)
	require.True(t, second.StartTime.Equal(now.AddDate(0, 0, 7)))

	// 第 3 天退掉第一单，剩余 4 天从续购里扣掉
	now = now.AddDate(0, 0, 3)
	_, err = svc.RevokeByOrder(ctx, env.db, "ORD-1", "退款")
	require.NoError(t, err)

	stored := env.entitlementOf(t, "ORD-2")
	require.Equal(t, model.EntitlementActive, stored.Status)
	require.True(t, stored.ExpireTime.Equal(now.AddDate(0, 0, 7)), "expire=%s", stored.ExpireTime)

	now = now.AddDate(0, 0, 6)
	ok, err := svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.AddDate(0, 0, 2)
	ok, err = svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAccessFlipsExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	e, err := svc.Grant(ctx, env.db, grantReq("ORD-1", false, 1))
	require.NoError(t, err)

	ok, err := svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(25 * time.Hour)
	ok, err = svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.False(t, ok)

	var stored model.Entitlement
	require.NoError(t, env.db.First(&stored, e.ID).Error)
	require.Equal(t, model.EntitlementExpired, stored.Status)

	// 过期后可以重新购买，有效期从当前时间算起
	again, err := svc.Grant(ctx, env.db, grantReq("ORD-2", false, 1))
	require.NoError(t, err)
	require.True(t, again.ExpireTime.Equal(now.AddDate(0, 0, 1)))
}

func TestRecordAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement

	require.NoError(t, svc.RecordAccess(ctx, 1, 10))

	e, err := svc.Grant(ctx, env.db, grantReq("ORD-1", true, 0))
	require.NoError(t, err)
	require.NoError(t, svc.RecordAccess(ctx, 1, 10))
	require.NoError(t, svc.RecordAccess(ctx, 1, 10))

	var stored model.Entitlement
	require.NoError(t, env.db.First(&stored, e.ID).Error)
	require.Equal(t, int64(2), stored.AccessCount)
	require.NotNil(t, stored.LastAccessTime)
}

func TestRevokeIsIrreversible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement

	e, err := svc.Grant(ctx, env.db, grantReq("ORD-1", true, 0))
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, env.db, e.ID, "退款"))
	require.NoError(t, svc.Revoke(ctx, env.db, e.ID, "再次退款"))

	var stored model.Entitlement
	require.NoError(t, env.db.First(&stored, e.ID).Error)
	require.Equal(t, model.EntitlementRefunded, stored.Status)
	require.Equal(t, "退款", stored.RevokeReason)

	ok, err := svc.CheckAccess(ctx, 1, 10)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, svc.Revoke(ctx, env.db, 9999, "x"), bizerr.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.svc.Entitlement
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Grant(ctx, env.db, grantReq("ORD-1", false, 1))
	require.NoError(t, err)
	req := grantReq("ORD-2", true, 0)
	req.ContentID = 11
	_, err = svc.Grant(ctx, env.db, req)
	require.NoError(t, err)

	now = now.AddDate(0, 0, 2)
	n, err := svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	list, total, err := svc.ListByUser(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, list, 2)
}
