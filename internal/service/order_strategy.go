package service

import (
	"context"
	"fmt"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// goodsHandler 一种 (商品类型, 支付方式) 组合的下单校验、结算与退款规则
type goodsHandler interface {
	// Validate 下单前校验并补全订单字段
	Validate(ctx context.Context, req *CreateOrderRequest, order *model.Order) error
	// Collect 结算时收款
	Collect(ctx context.Context, tx *gorm.DB, order *model.Order) error
	// Deliver 收款后发货（发币、发权益、开会员）
	Deliver(ctx context.Context, tx *gorm.DB, order *model.Order) error
	// Reclaim 退款时先回收已发放的东西，资金冲正由结算器统一处理
	Reclaim(ctx context.Context, tx *gorm.DB, order *model.Order, reason string) error
}

type goodsKey struct {
	goodsType   string
	paymentMode string
}

// Dispatcher 订单类型分发表，新增商品类型只需注册一项
type Dispatcher struct {
	handlers map[goodsKey]goodsHandler
}

func NewDispatcher(wallet *WalletService, content *ContentPaymentService, entitlement *EntitlementService, vip *VipService) *Dispatcher {
	cash := cashCollector{wallet: wallet}
	return &Dispatcher{
		handlers: map[goodsKey]goodsHandler{
			{model.GoodsTypeCoin, model.PaymentModeCash}:         &coinTopUp{cashCollector: cash},
			{model.GoodsTypeGoods, model.PaymentModeCash}:        &physicalGoods{cashCollector: cash},
			{model.GoodsTypeSubscription, model.PaymentModeCash}: &subscription{cashCollector: cash, vip: vip},
			{model.GoodsTypeContent, model.PaymentModeCoin}: &paidContent{
				wallet:      wallet,
				content:     content,
				entitlement: entitlement,
				vip:         vip,
			},
		},
	}
}

func (d *Dispatcher) lookup(goodsType, paymentMode string) (goodsHandler, error) {
	h, ok := d.handlers[goodsKey{goodsType, paymentMode}]
	if !ok {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "不支持的商品类型与支付方式组合: %s/%s", goodsType, paymentMode)
	}
	return h, nil
}

// cashCollector 现金订单的收款逻辑
// 下单冻结过的先解冻；余额支付则扣现金；外部渠道支付的钱不经过钱包
type cashCollector struct {
	wallet *WalletService
}

func (c cashCollector) validateCash(order *model.Order) error {
	if !order.CashAmount.IsPositive() {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "订单金额必须大于0: %s", order.CashAmount.String())
	}
	if order.PayMethod == "" || model.IsCashPayMethod(order.PayMethod) {
		return nil
	}
	return bizerr.Newf(bizerr.ErrInvalidArgument, "现金订单不支持的支付渠道: %s", order.PayMethod)
}

func (c cashCollector) Collect(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if order.CashReserved {
		if _, err := c.wallet.ApplyTx(ctx, tx, &Mutation{
			UserID:  order.UserID,
			Op:      model.LedgerOpUnfreeze,
			Amount:  order.CashAmount,
			OrderNo: order.OrderNo,
			Remark:  "结算解冻",
		}); err != nil {
			return err
		}
	}
	if order.PayMethod != model.PayMethodBalance {
		return nil
	}
	_, err := c.wallet.ApplyTx(ctx, tx, &Mutation{
		UserID:  order.UserID,
		Op:      model.LedgerOpCashDebit,
		Amount:  order.CashAmount,
		OrderNo: order.OrderNo,
		Remark:  fmt.Sprintf("支付-%s", order.GoodsType),
	})
	return err
}

type coinTopUp struct {
	cashCollector
}

func (h *coinTopUp) Validate(_ context.Context, req *CreateOrderRequest, order *model.Order) error {
	if req.GoodsRef.CoinAmount <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "充值金币数量必须大于0")
	}
	order.CoinAmount = req.GoodsRef.CoinAmount
	return h.validateCash(order)
}

func (h *coinTopUp) Deliver(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	_, err := h.wallet.ApplyTx(ctx, tx, &Mutation{
		UserID:  order.UserID,
		Op:      model.LedgerOpCoinCredit,
		Amount:  decimal.NewFromInt(order.CoinAmount),
		OrderNo: order.OrderNo,
		Remark:  "金币充值",
	})
	return err
}

func (h *coinTopUp) Reclaim(context.Context, *gorm.DB, *model.Order, string) error {
	return nil
}

type physicalGoods struct {
	cashCollector
}

func (h *physicalGoods) Validate(_ context.Context, req *CreateOrderRequest, order *model.Order) error {
	if req.GoodsRef.GoodsID <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "商品ID不能为空")
	}
	order.GoodsID = req.GoodsRef.GoodsID
	if req.GoodsRef.Quantity > 0 {
		order.Quantity = req.GoodsRef.Quantity
	}
	return h.validateCash(order)
}

func (h *physicalGoods) Deliver(context.Context, *gorm.DB, *model.Order) error {
	return nil
}

func (h *physicalGoods) Reclaim(context.Context, *gorm.DB, *model.Order, string) error {
	return nil
}

type subscription struct {
	cashCollector
	vip *VipService
}

func (h *subscription) Validate(_ context.Context, req *CreateOrderRequest, order *model.Order) error {
	if req.GoodsRef.SubscriptionDays <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "订阅天数必须大于0")
	}
	order.GoodsID = req.GoodsRef.GoodsID
	order.SubscriptionDays = req.GoodsRef.SubscriptionDays
	return h.validateCash(order)
}

func (h *subscription) Deliver(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	_, err := h.vip.ExtendTx(ctx, tx, order.UserID, order.SubscriptionDays)
	return err
}

func (h *subscription) Reclaim(ctx context.Context, tx *gorm.DB, order *model.Order, _ string) error {
	return h.vip.ShortenTx(ctx, tx, order.UserID, order.SubscriptionDays)
}

// paidContent 金币购买付费内容
type paidContent struct {
	wallet      *WalletService
	content     *ContentPaymentService
	entitlement *EntitlementService
	vip         VipChecker
}

func (h *paidContent) Validate(ctx context.Context, req *CreateOrderRequest, order *model.Order) error {
	contentID := req.GoodsRef.ContentID
	if contentID <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "内容ID不能为空")
	}
	isVip, err := h.vip.IsVip(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("查询会员状态失败: %w", err)
	}
	cfg, err := h.content.GetConfig(ctx, contentID)
	if err != nil {
		return fmt.Errorf("查询付费配置失败: %w", err)
	}

	decision := Decide(cfg, isVip)
	switch decision.Kind {
	case AccessFree:
		return bizerr.Newf(bizerr.ErrNotPurchasable, "内容无需购买: %d", contentID)
	case AccessDenied:
		return bizerr.Newf(bizerr.ErrPermissionDenied, "会员专享内容，非会员不可购买: %d", contentID)
	}
	if order.CoinCost != decision.Price {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "金币数量与内容价格不符: price=%d, got=%d", decision.Price, order.CoinCost)
	}

	if cfg.Permanent() {
		owned, err := h.entitlement.HasPermanent(ctx, req.UserID, contentID)
		if err != nil {
			return fmt.Errorf("查询权益失败: %w", err)
		}
		if owned {
			return bizerr.Newf(bizerr.ErrDuplicateGrant, "已永久拥有该内容: %d", contentID)
		}
	}

	order.ContentID = contentID
	order.GoodsID = contentID
	order.OriginalPrice = decision.OriginalPrice
	if !cfg.Permanent() {
		order.ValidDays = cfg.ValidDays
	}
	order.PayMethod = model.PayMethodCoin
	return nil
}

func (h *paidContent) Collect(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	_, err := h.wallet.ApplyTx(ctx, tx, &Mutation{
		UserID:  order.UserID,
		Op:      model.LedgerOpCoinDebit,
		Amount:  decimal.NewFromInt(order.CoinCost),
		OrderNo: order.OrderNo,
		Remark:  fmt.Sprintf("购买内容-%d", order.ContentID),
	})
	return err
}

// Deliver 有效期与原价取下单时的快照
func (h *paidContent) Deliver(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	_, err := h.entitlement.Grant(ctx, tx, &GrantRequest{
		UserID:        order.UserID,
		ContentID:     order.ContentID,
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		CoinAmount:    order.CoinCost,
		OriginalPrice: order.OriginalPrice,
		Permanent:     order.ValidDays == 0,
		ValidDays:     order.ValidDays,
	})
	return err
}

func (h *paidContent) Reclaim(ctx context.Context, tx *gorm.DB, order *model.Order, reason string) error {
	_, err := h.entitlement.RevokeByOrder(ctx, tx, order.OrderNo, reason)
	return err
}
