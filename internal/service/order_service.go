package service

import (
	"context"
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

// GoodsRef 商品引用，按商品类型取用对应字段
type GoodsRef struct {
	GoodsID          int64 `json:"goods_id"`
	ContentID        int64 `json:"content_id"`
	CoinAmount       int64 `json:"coin_amount"`       // 充值到账金币
	SubscriptionDays int   `json:"subscription_days"` // 订阅天数
	Quantity         int   `json:"quantity"`
}

// CreateOrderRequest 下单请求
// Amount 现金订单为金额，金币订单为金币数量
type CreateOrderRequest struct {
	UserID      int64
	GoodsType   string
	PaymentMode string
	Amount      decimal.Decimal
	GoodsRef    GoodsRef
	PayMethod   string
	RequestID   string
}

type OrderService struct {
	db         *gorm.DB
	cfg        *config.Config
	locker     *lock.Locker
	orderRepo  *repository.OrderRepository
	dispatcher *Dispatcher
	wallet     *WalletService
	settlement *SettlementService
	now        func() time.Time
}

func NewOrderService(db *gorm.DB, cfg *config.Config, locker *lock.Locker, dispatcher *Dispatcher,
	wallet *WalletService, settlement *SettlementService) *OrderService {
	return &OrderService{
		db:         db,
		cfg:        cfg,
		locker:     locker,
		orderRepo:  repository.NewOrderRepository(db),
		dispatcher: dispatcher,
		wallet:     wallet,
		settlement: settlement,
		now:        time.Now,
	}
}

// CreateOrder 创建 pending/unpaid 订单
// 同一用户携带相同 RequestID 的重复请求直接返回已有订单；余额支付的现金订单在下单时冻结金额
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if req.UserID <= 0 {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "用户ID不能为空")
	}
	if req.RequestID != "" {
		existing, err := s.findByRequestID(ctx, req)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	handler, err := s.dispatcher.lookup(req.GoodsType, req.PaymentMode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &model.Order{
		OrderNo:     idgen.OrderNo(),
		UserID:      req.UserID,
		GoodsType:   req.GoodsType,
		PaymentMode: req.PaymentMode,
		Quantity:    1,
		Status:      model.OrderStatusPending,
		PayStatus:   model.PayStatusUnpaid,
		PayMethod:   req.PayMethod,
		ExpiredAt:   now.Add(time.Duration(s.cfg.Business.OrderTimeoutMinutes) * time.Minute),
	}
	if req.RequestID != "" {
		requestID := req.RequestID
		order.RequestID = &requestID
	}

	if req.PaymentMode == model.PaymentModeCoin {
		coins, err := coinUnits(req.Amount)
		if err != nil {
			return nil, err
		}
		if coins <= 0 {
			return nil, bizerr.Newf(bizerr.ErrInvalidAmount, "金币数量必须大于0")
		}
		order.CoinCost = coins
	} else {
		order.CashAmount = req.Amount
	}

	if err := handler.Validate(ctx, req, order); err != nil {
		return nil, err
	}

	if order.PaymentMode == model.PaymentModeCash && order.PayMethod == model.PayMethodBalance {
		err = s.createWithReservation(ctx, order)
	} else {
		err = s.orderRepo.Create(ctx, nil, order)
	}
	if err != nil {
		// 并发的重复请求在唯一索引上失败，返回先写入的订单
		if req.RequestID != "" {
			if existing, findErr := s.findByRequestID(ctx, req); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"order_no":     order.OrderNo,
		"user_id":      order.UserID,
		"goods_type":   order.GoodsType,
		"payment_mode": order.PaymentMode,
		"cash_amount":  order.CashAmount.String(),
		"coin_cost":    order.CoinCost,
	}).Info("[Order] 订单已创建")
	return order, nil
}

// findByRequestID 已有订单的商品类型、支付方式或金额与请求不一致时返回 InvalidArgument
func (s *OrderService) findByRequestID(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	existing, err := s.orderRepo.GetByRequestID(ctx, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	amount := existing.CashAmount
	if existing.PaymentMode == model.PaymentModeCoin {
		amount = decimal.NewFromInt(existing.CoinCost)
	}
	if existing.GoodsType != req.GoodsType || existing.PaymentMode != req.PaymentMode || !amount.Equal(req.Amount) {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "请求ID已用于其他订单: %s", req.RequestID)
	}
	return existing, nil
}

// createWithReservation 订单与冻结在同一事务内完成
func (s *OrderService) createWithReservation(ctx context.Context, order *model.Order) error {
	release, err := s.locker.AcquireOrdered(ctx, lock.OrderKey(order.OrderNo), lock.WalletKey(order.UserID))
	if err != nil {
		return err
	}
	defer release()

	order.CashReserved = true
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}
		_, err := s.wallet.ApplyTx(ctx, tx, &Mutation{
			UserID:  order.UserID,
			Op:      model.LedgerOpFreeze,
			Amount:  order.CashAmount,
			OrderNo: order.OrderNo,
			Remark:  "下单冻结",
		})
		return err
	})
	if err != nil {
		order.CashReserved = false
	}
	return err
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}

// CancelOrder pending 直接关闭并释放冻结；paid 先全额退款再关闭
// actorID 为 0 表示系统操作
func (s *OrderService) CancelOrder(ctx context.Context, orderNo, reason string, actorID int64) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return err
	}
	if actorID != 0 && actorID != order.UserID {
		return bizerr.Newf(bizerr.ErrPermissionDenied, "无权取消他人订单: %s", orderNo)
	}

	switch order.Status {
	case model.OrderStatusPending:
		_, err = s.settlement.CancelPending(ctx, orderNo, reason)
	case model.OrderStatusPaid:
		_, err = s.settlement.RefundSettle(ctx, orderNo, reason, decimal.Zero)
	default:
		err = model.CheckTransition(order.Status, model.OrderStatusCancelled)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"order_no": orderNo,
		"actor_id": actorID,
		"reason":   reason,
	}).Info("[Order] 订单已取消")
	return nil
}

// Ship 实物订单发货
func (s *OrderService) Ship(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.advancePhysical(ctx, orderNo, 0, model.OrderStatusShipped, "shipped_at")
}

// ConfirmReceipt 买家确认收货
func (s *OrderService) ConfirmReceipt(ctx context.Context, orderNo string, actorID int64) (*model.Order, error) {
	return s.advancePhysical(ctx, orderNo, actorID, model.OrderStatusCompleted, "completed_at")
}

// Complete 系统完成订单，用于发货超时自动确认
func (s *OrderService) Complete(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.advancePhysical(ctx, orderNo, 0, model.OrderStatusCompleted, "completed_at")
}

func (s *OrderService) advancePhysical(ctx context.Context, orderNo string, actorID int64, target, timeField string) (*model.Order, error) {
	release, err := s.locker.AcquireOrdered(ctx, lock.OrderKey(orderNo))
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
		if actorID != 0 && actorID != order.UserID {
			return bizerr.Newf(bizerr.ErrPermissionDenied, "无权操作他人订单: %s", orderNo)
		}
		if order.IsVirtual() {
			return bizerr.Newf(bizerr.ErrInvalidTransition, "虚拟商品订单没有物流流程: %s", orderNo)
		}
		if target == model.OrderStatusCompleted && order.Status == model.OrderStatusPaid {
			return bizerr.Newf(bizerr.ErrInvalidTransition, "实物订单未发货，不能完成: %s", orderNo)
		}
		if err := model.CheckTransition(order.Status, target); err != nil {
			return err
		}
		if order.PayStatus != model.PayStatusPaid {
			return bizerr.Newf(bizerr.ErrInvalidTransition, "订单支付状态为 %s，不能流转到 %s", order.PayStatus, target)
		}
		now := s.now()
		return s.orderRepo.Transition(ctx, tx, order, map[string]interface{}{
			"status":  target,
			timeField: &now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"order_no": orderNo, "status": target}).Info("[Order] 订单状态已更新")
	return order, nil
}

// CloseExpiredOrders 关闭超时未支付订单，返回成功关闭的数量
func (s *OrderService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.GetExpiredOrders(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, order := range orders {
		if _, err := s.settlement.CancelPending(ctx, order.OrderNo, "支付超时"); err != nil {
			log.WithError(err).WithField("order_no", order.OrderNo).Warn("[Order] 关闭超时订单失败")
			continue
		}
		closed++
	}
	return closed, nil
}

// CompleteShippedOrders 发货超过 days 天未确认收货的订单自动完成
func (s *OrderService) CompleteShippedOrders(ctx context.Context, days, limit int) (int, error) {
	before := s.now().AddDate(0, 0, -days)
	orders, err := s.orderRepo.GetShippedBefore(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, order := range orders {
		if _, err := s.Complete(ctx, order.OrderNo); err != nil {
			log.WithError(err).WithField("order_no", order.OrderNo).Warn("[Order] 自动确认收货失败")
			continue
		}
		completed++
	}
	return completed, nil
}
