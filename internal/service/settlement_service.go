package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/config"
	"contentpay/internal/infrastructure/lock"
	"contentpay/internal/model"
	"contentpay/internal/repository"
	"contentpay/pkg/idgen"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettlementService 结算器：唯一在同一事务里同时调用钱包与权益的组件
//
// 加锁顺序固定为 订单锁 -> 钱包锁；扣款、状态流转、发放、outbox 在同一事务内，
// 任一步失败整体回滚。重复结算与重复退款都是返回当前订单的空操作。
type SettlementService struct {
	db         *gorm.DB
	cfg        *config.Config
	locker     *lock.Locker
	orderRepo  *repository.OrderRepository
	ledgerRepo *repository.LedgerRepository
	outboxRepo *repository.OutboxRepository
	wallet     *WalletService
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewSettlementService(db *gorm.DB, cfg *config.Config, locker *lock.Locker, wallet *WalletService, dispatcher *Dispatcher) *SettlementService {
	return &SettlementService{
		db:         db,
		cfg:        cfg,
		locker:     locker,
		orderRepo:  repository.NewOrderRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		wallet:     wallet,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// lockOrder 订单号 -> 用户ID 需要先读一次订单，随后按固定顺序加锁
func (s *SettlementService) lockOrder(ctx context.Context, orderNo string) (func(), error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return nil, err
	}
	return s.locker.AcquireOrdered(ctx, lock.OrderKey(orderNo), lock.WalletKey(order.UserID))
}

// Settle 把一次已确认的支付落账
// payMethod 为空时沿用下单时的支付渠道，仍为空则按余额支付处理
func (s *SettlementService) Settle(ctx context.Context, orderNo, payMethod, externalRef string) (*model.Order, error) {
	release, err := s.lockOrder(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	defer release()

	var order *model.Order
	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if txErr != nil {
			return txErr
		}
		if order.PayStatus != model.PayStatusUnpaid {
			replayed = true
			return nil
		}
		if err := model.CheckTransition(order.Status, model.OrderStatusPaid); err != nil {
			return err
		}

		handler, err := s.dispatcher.lookup(order.GoodsType, order.PaymentMode)
		if err != nil {
			return err
		}

		order.PayMethod = resolvePayMethod(order, payMethod)
		if err := checkPayMethod(order, order.PayMethod); err != nil {
			return err
		}
		if err := handler.Collect(ctx, tx, order); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":        model.OrderStatusPaid,
			"pay_status":    model.PayStatusPaid,
			"pay_method":    order.PayMethod,
			"external_ref":  externalRef,
			"cash_reserved": false,
			"paid_at":       &now,
		}
		if err := s.orderRepo.Transition(ctx, tx, order, updates); err != nil {
			return err
		}

		if err := handler.Deliver(ctx, tx, order); err != nil {
			return err
		}

		if order.IsVirtual() {
			if err := model.CheckTransition(order.Status, model.OrderStatusCompleted); err != nil {
				return err
			}
			if err := s.orderRepo.Transition(ctx, tx, order, map[string]interface{}{
				"status":       model.OrderStatusCompleted,
				"completed_at": &now,
			}); err != nil {
				return err
			}
		}

		return s.writeEvent(ctx, tx, order, model.EventOrderPaid)
	})
	if err != nil {
		logSettleFailure(orderNo, "结算失败", err)
		return nil, err
	}

	if replayed {
		log.WithField("order_no", orderNo).Info("[Settlement] 订单已结算，忽略重复请求")
		return order, nil
	}
	log.WithFields(log.Fields{
		"order_no":   order.OrderNo,
		"user_id":    order.UserID,
		"goods_type": order.GoodsType,
		"pay_method": order.PayMethod,
		"status":     order.Status,
	}).Info("[Settlement] 结算成功")
	return order, nil
}

func resolvePayMethod(order *model.Order, payMethod string) string {
	if order.PaymentMode == model.PaymentModeCoin {
		return model.PayMethodCoin
	}
	if payMethod != "" {
		return payMethod
	}
	if order.PayMethod != "" {
		return order.PayMethod
	}
	return model.PayMethodBalance
}

// checkPayMethod 现金订单只接受余额与外部网关渠道
func checkPayMethod(order *model.Order, payMethod string) error {
	if order.PaymentMode != model.PaymentModeCash || model.IsCashPayMethod(payMethod) {
		return nil
	}
	return bizerr.Newf(bizerr.ErrInvalidArgument, "不支持的支付渠道: %s", payMethod)
}

// RefundSettle 全额退款，amount 为 0 表示按订单金额
//
// 顺序：回收权益/会员 -> 冲正该订单的资金流水 -> pay_status=refunded（paid 订单同时关闭）。
// 冲正使用退款单号作为幂等键，流水仍挂在原订单号下。
func (s *SettlementService) RefundSettle(ctx context.Context, orderNo, reason string, amount decimal.Decimal) (*model.Order, error) {
	release, err := s.lockOrder(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	defer release()

	var order *model.Order
	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if txErr != nil {
			return txErr
		}
		if order.PayStatus == model.PayStatusRefunded {
			replayed = true
			return nil
		}
		if err := model.CheckPayTransition(order.PayStatus, model.PayStatusRefunded); err != nil {
			return err
		}
		if err := checkRefundAmount(order, amount); err != nil {
			return err
		}

		handler, err := s.dispatcher.lookup(order.GoodsType, order.PaymentMode)
		if err != nil {
			return err
		}
		if err := handler.Reclaim(ctx, tx, order, reason); err != nil {
			return err
		}

		refundNo := idgen.RefundNo()
		if err := s.reverseLedger(ctx, tx, order, refundNo, reason); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]interface{}{
			"pay_status":    model.PayStatusRefunded,
			"refund_no":     refundNo,
			"refund_reason": reason,
			"refunded_at":   &now,
		}
		if order.Status == model.OrderStatusPaid {
			if err := model.CheckTransition(order.Status, model.OrderStatusCancelled); err != nil {
				return err
			}
			updates["status"] = model.OrderStatusCancelled
			updates["cancel_reason"] = reason
			updates["cancelled_at"] = &now
		}
		if err := s.orderRepo.Transition(ctx, tx, order, updates); err != nil {
			return err
		}

		return s.writeEvent(ctx, tx, order, model.EventOrderRefunded)
	})
	if err != nil {
		logSettleFailure(orderNo, "退款失败", err)
		return nil, err
	}

	if replayed {
		log.WithField("order_no", orderNo).Info("[Settlement] 订单已退款，忽略重复请求")
		return order, nil
	}
	log.WithFields(log.Fields{
		"order_no":  order.OrderNo,
		"refund_no": order.RefundNo,
		"user_id":   order.UserID,
		"reason":    reason,
	}).Info("[Settlement] 退款成功")
	return order, nil
}

func checkRefundAmount(order *model.Order, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	want := order.CashAmount
	if order.PaymentMode == model.PaymentModeCoin {
		want = decimal.NewFromInt(order.CoinCost)
	}
	if !amount.Equal(want) {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "仅支持全额退款: order=%s, got=%s", want.String(), amount.String())
	}
	return nil
}

// reverseLedger 冲正订单产生的收支流水，冻结/解冻在结算后已相互抵消
func (s *SettlementService) reverseLedger(ctx context.Context, tx *gorm.DB, order *model.Order, refundNo, reason string) error {
	entries, err := s.ledgerRepo.ListByOrderNo(ctx, tx, order.OrderNo)
	if err != nil {
		return fmt.Errorf("查询订单流水失败: %w", err)
	}
	for _, entry := range entries {
		if entry.Op == model.LedgerOpFreeze || entry.Op == model.LedgerOpUnfreeze {
			continue
		}
		amount := entry.CashAmount
		if entry.Op.Currency() == model.CurrencyCoin {
			amount = decimal.NewFromInt(entry.CoinAmount)
		}
		if _, err := s.wallet.ApplyTx(ctx, tx, &Mutation{
			UserID:   entry.UserID,
			Op:       entry.Op.Reverse(),
			Amount:   amount,
			OrderNo:  order.OrderNo,
			DedupRef: refundNo,
			Remark:   fmt.Sprintf("退款冲正-%s-%s", refundNo, reason),
		}); err != nil {
			return err
		}
	}
	return nil
}

// CancelPending 关闭未支付订单并释放下单冻结的现金
func (s *SettlementService) CancelPending(ctx context.Context, orderNo, reason string) (*model.Order, error) {
	release, err := s.lockOrder(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	defer release()

	var order *model.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if txErr != nil {
			return txErr
		}
		if order.Status != model.OrderStatusPending {
			return model.CheckTransition(order.Status, model.OrderStatusCancelled)
		}
		if order.PayStatus != model.PayStatusUnpaid {
			return bizerr.Newf(bizerr.ErrInvalidTransition, "订单已支付，需走退款流程: %s", orderNo)
		}
		if err := s.releaseReservation(ctx, tx, order); err != nil {
			return err
		}
		now := s.now()
		return s.orderRepo.Transition(ctx, tx, order, map[string]interface{}{
			"status":        model.OrderStatusCancelled,
			"cash_reserved": false,
			"cancel_reason": reason,
			"cancelled_at":  &now,
		})
	})
	if err != nil {
		logSettleFailure(orderNo, "关闭订单失败", err)
		return nil, err
	}

	log.WithFields(log.Fields{"order_no": orderNo, "reason": reason}).Info("[Settlement] 未支付订单已关闭")
	return order, nil
}

func (s *SettlementService) releaseReservation(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if !order.CashReserved {
		return nil
	}
	_, err := s.wallet.ApplyTx(ctx, tx, &Mutation{
		UserID:  order.UserID,
		Op:      model.LedgerOpUnfreeze,
		Amount:  order.CashAmount,
		OrderNo: order.OrderNo,
		Remark:  "订单关闭解冻",
	})
	return err
}

func (s *SettlementService) writeEvent(ctx context.Context, tx *gorm.DB, order *model.Order, event string) error {
	payload, err := json.Marshal(&model.OrderEvent{
		Event:       event,
		OrderNo:     order.OrderNo,
		UserID:      order.UserID,
		GoodsType:   order.GoodsType,
		PaymentMode: order.PaymentMode,
		ContentID:   order.ContentID,
		CashAmount:  order.CashAmount.String(),
		CoinCost:    order.CoinCost,
		OccurredAt:  s.now().Unix(),
	})
	if err != nil {
		return err
	}
	msg := &model.OutboxMessage{
		MessageKey: fmt.Sprintf("%s:%s", order.OrderNo, event),
		Topic:      s.cfg.Kafka.Topic.PayResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// logSettleFailure 业务拒绝记 info，状态机拒绝记 warn，其余记 error
func logSettleFailure(orderNo, msg string, err error) {
	entry := log.WithError(err).WithField("order_no", orderNo)
	switch {
	case bizerr.IsCallerBug(err):
		entry.Warn("[Settlement] " + msg)
	case bizerr.IsUserFacing(err):
		entry.Info("[Settlement] " + msg)
	default:
		entry.Error("[Settlement] " + msg)
	}
}
