package service

import (
	"context"
	"testing"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/gateway"
	"contentpay/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestConfirmPaymentDeclined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.confirmer.Decline("ali-bad")

	order, err := env.svc.Order.CreateOrder(ctx, goodsOrderReq(1))
	require.NoError(t, err)

	_, err = env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "", "ali-bad")
	require.ErrorIs(t, err, bizerr.ErrPaymentFailed)
	_, err = env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "", "")
	require.ErrorIs(t, err, bizerr.ErrInvalidArgument)

	stored, err := env.svc.Order.GetOrder(ctx, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, stored.Status)

	paid, err := env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "", "ali-ok")
	require.NoError(t, err)
	require.Equal(t, model.PayStatusPaid, paid.PayStatus)
}

func TestConfirmPaymentTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slow := gateway.NewMockConfirmer(true, time.Second)
	payment := NewPaymentService(env.db, env.svc.Settlement, slow, 50*time.Millisecond)

	order, err := env.svc.Order.CreateOrder(ctx, goodsOrderReq(1))
	require.NoError(t, err)

	_, err = payment.ConfirmPayment(ctx, order.OrderNo, "", "ali-1")
	require.ErrorIs(t, err, bizerr.ErrBusy)

	stored, err := env.svc.Order.GetOrder(ctx, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.PayStatusUnpaid, stored.PayStatus)
}

func TestConfirmPaymentOnPaidOrderReturnsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Order.CreateOrder(ctx, goodsOrderReq(1))
	require.NoError(t, err)
	_, err = env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "", "ali-1")
	require.NoError(t, err)

	env.confirmer.Decline("ali-1")
	again, err := env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "", "ali-1")
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, again.Status)
}

func TestHandleCallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Order.CreateOrder(ctx, goodsOrderReq(1))
	require.NoError(t, err)

	got, err := env.svc.Payment.HandleCallback(ctx, &CallbackRequest{
		OrderNo:   order.OrderNo,
		PayStatus: CallbackStatusFailed,
	})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, got.Status)

	_, err = env.svc.Payment.HandleCallback(ctx, &CallbackRequest{OrderNo: order.OrderNo, PayStatus: "unknown"})
	require.ErrorIs(t, err, bizerr.ErrInvalidArgument)

	for i := 0; i < 2; i++ {
		got, err = env.svc.Payment.HandleCallback(ctx, &CallbackRequest{
			OrderNo:     order.OrderNo,
			PayStatus:   CallbackStatusSuccess,
			PayMethod:   model.PayMethodWechat,
			ExternalRef: "wx-77",
		})
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusPaid, got.Status)
		require.Equal(t, model.PayMethodWechat, got.PayMethod)
	}
	require.Equal(t, int64(1), env.outboxCount(t, model.EventOrderPaid))
}

func TestConfirmPaymentRejectsUnknownPayMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCash(t, 1, "100")

	order, err := env.svc.Order.CreateOrder(ctx, goodsOrderReq(1))
	require.NoError(t, err)

	_, err = env.svc.Payment.ConfirmPayment(ctx, order.OrderNo, "paypal", "pp-1")
	require.ErrorIs(t, err, bizerr.ErrInvalidArgument)
	_, err = env.svc.Payment.HandleCallback(ctx, &CallbackRequest{
		OrderNo:     order.OrderNo,
		PayStatus:   CallbackStatusSuccess,
		PayMethod:   "paypal",
		ExternalRef: "pp-1",
	})
	require.ErrorIs(t, err, bizerr.ErrInvalidArgument)

	stored, err := env.svc.Order.GetOrder(ctx, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, stored.Status)
	require.True(t, env.balance(t, 1).Cash.Equal(decimal.NewFromInt(100)))
}
