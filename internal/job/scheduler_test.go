package job

import (
	"context"
	"testing"
	"time"

	"contentpay/internal/model"
	"contentpay/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRegister(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc, _ := newTestServices(t, db, cfg)

	s := NewScheduler(db, cfg, svc)
	require.NoError(t, s.Register(context.Background()))
	require.Len(t, s.cron.Entries(), 3)

	cfg.Jobs.EntitlementSweepCron = "every day"
	bad := NewScheduler(db, cfg, svc)
	require.Error(t, bad.Register(context.Background()))
}

func TestSchedulerRequeuesFailedMessages(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc, _ := newTestServices(t, db, cfg)

	msg := seedOutbox(t, db, "ORD1:order.paid")
	require.NoError(t, db.Model(msg).Updates(map[string]interface{}{
		"status":      model.OutboxStatusFailed,
		"retry_count": 2,
	}).Error)

	NewScheduler(db, cfg, svc).requeueFailedMessages(context.Background())

	stored := outboxStatus(t, db, msg.ID)
	require.Equal(t, model.OutboxStatusPending, stored.Status)
	require.Zero(t, stored.RetryCount)
}

func TestOrderTimeoutJobClosesExpired(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc, _ := newTestServices(t, db, cfg)
	ctx := context.Background()

	order, err := svc.Order.CreateOrder(ctx, &service.CreateOrderRequest{
		UserID:      1,
		GoodsType:   model.GoodsTypeGoods,
		PaymentMode: model.PaymentModeCash,
		Amount:      decimal.NewFromInt(10),
		GoodsRef:    service.GoodsRef{GoodsID: 1},
		PayMethod:   model.PayMethodAlipay,
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Order{}).Where("order_no = ?", order.OrderNo).
		Update("expired_at", time.Now().Add(-time.Minute)).Error)

	job := NewOrderTimeoutJob(svc.Order)
	require.Equal(t, 1, job.closeExpiredOrders(ctx))
	require.Zero(t, job.closeExpiredOrders(ctx))

	stored, err := svc.Order.GetOrder(ctx, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusCancelled, stored.Status)
}
