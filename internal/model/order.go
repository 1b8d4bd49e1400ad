package model

import (
	"time"

	"contentpay/internal/bizerr"

	"github.com/shopspring/decimal"
)

// 订单状态
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// 支付状态
const (
	PayStatusUnpaid   = "unpaid"
	PayStatusPaid     = "paid"
	PayStatusRefunded = "refunded"
)

// 商品类型
const (
	GoodsTypeCoin         = "coin"         // 金币充值
	GoodsTypeGoods        = "goods"        // 实物商品
	GoodsTypeSubscription = "subscription" // 会员订阅
	GoodsTypeContent      = "content"      // 付费内容
)

// 支付方式
const (
	PaymentModeCash = "cash"
	PaymentModeCoin = "coin"
)

// 支付渠道，balance 表示钱包余额支付，其余为外部网关
const (
	PayMethodBalance = "balance"
	PayMethodCoin    = "coin"
	PayMethodAlipay  = "alipay"
	PayMethodWechat  = "wechat"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusCompleted},
}

var ValidPayStatusTransitions = map[string][]string{
	PayStatusUnpaid: {PayStatusPaid},
	PayStatusPaid:   {PayStatusRefunded},
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	return contains(ValidStatusTransitions[currentStatus], targetStatus)
}

// CheckTransition 终态返回 TerminalState，其他非法流转返回 InvalidTransition
func CheckTransition(currentStatus, targetStatus string) error {
	if IsTerminalStatus(currentStatus) {
		return bizerr.Newf(bizerr.ErrTerminalState, "订单已处于终态 %s，不能流转到 %s", currentStatus, targetStatus)
	}
	if !CanTransitionTo(currentStatus, targetStatus) {
		return bizerr.Newf(bizerr.ErrInvalidTransition, "订单状态不能从 %s 流转到 %s", currentStatus, targetStatus)
	}
	return nil
}

func CheckPayTransition(current, target string) error {
	if !contains(ValidPayStatusTransitions[current], target) {
		return bizerr.Newf(bizerr.ErrInvalidTransition, "支付状态不能从 %s 流转到 %s", current, target)
	}
	return nil
}

// IsVirtualGoods 虚拟商品支付后直接完成，不经过发货
func IsVirtualGoods(goodsType string) bool {
	return goodsType != GoodsTypeGoods
}

func IsExternalPayMethod(payMethod string) bool {
	return payMethod == PayMethodAlipay || payMethod == PayMethodWechat
}

// IsCashPayMethod 现金订单可用的支付渠道
func IsCashPayMethod(payMethod string) bool {
	return payMethod == PayMethodBalance || IsExternalPayMethod(payMethod)
}

type Order struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	RequestID        *string         `gorm:"type:varchar(64);uniqueIndex:idx_user_request,priority:2" json:"request_id,omitempty"` // 同一用户内唯一
	UserID           int64           `gorm:"index;uniqueIndex:idx_user_request,priority:1;not null" json:"user_id"`
	GoodsType        string          `gorm:"type:varchar(20);not null" json:"goods_type"`
	PaymentMode      string          `gorm:"type:varchar(10);not null" json:"payment_mode"`
	GoodsID          int64           `gorm:"not null;default:0" json:"goods_id"`
	ContentID        int64           `gorm:"index;not null;default:0" json:"content_id"`
	Quantity         int             `gorm:"not null;default:1" json:"quantity"`
	CashAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_amount"` // 现金订单金额
	CoinCost         int64           `gorm:"not null;default:0" json:"coin_cost"`                      // 金币订单消耗
	CoinAmount       int64           `gorm:"not null;default:0" json:"coin_amount"`                    // 充值到账金币
	SubscriptionDays int             `gorm:"not null;default:0" json:"subscription_days"`
	OriginalPrice    int64           `gorm:"not null;default:0" json:"original_price"` // 下单时的内容原价
	ValidDays        int             `gorm:"not null;default:0" json:"valid_days"`     // 内容有效天数，0 为永久
	Status           string          `gorm:"type:varchar(20);index;not null" json:"status"`
	PayStatus        string          `gorm:"type:varchar(20);not null" json:"pay_status"`
	PayMethod        string          `gorm:"type:varchar(20)" json:"pay_method"`
	ExternalRef      string          `gorm:"type:varchar(128)" json:"external_ref"`
	CashReserved     bool            `gorm:"not null;default:false" json:"cash_reserved"` // 下单时已冻结现金
	CancelReason     string          `gorm:"type:varchar(255)" json:"cancel_reason"`
	RefundNo         string          `gorm:"type:varchar(64)" json:"refund_no"`
	RefundReason     string          `gorm:"type:varchar(255)" json:"refund_reason"`
	ExpiredAt        time.Time       `gorm:"not null" json:"expired_at"`
	PaidAt           *time.Time      `json:"paid_at"`
	ShippedAt        *time.Time      `gorm:"index" json:"shipped_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
	CancelledAt      *time.Time      `json:"cancelled_at"`
	RefundedAt       *time.Time      `json:"refunded_at"`
	Version          int             `gorm:"not null;default:0" json:"version"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "pay_order"
}

func (o *Order) IsVirtual() bool {
	return IsVirtualGoods(o.GoodsType)
}

func (o *Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}
