package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 订单领域事件
const (
	EventOrderPaid     = "order.paid"
	EventOrderRefunded = "order.refunded"
)

type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(128);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// OrderEvent 写入 outbox 的消息体
type OrderEvent struct {
	Event       string `json:"event"`
	OrderNo     string `json:"order_no"`
	UserID      int64  `json:"user_id"`
	GoodsType   string `json:"goods_type"`
	PaymentMode string `json:"payment_mode"`
	ContentID   int64  `json:"content_id,omitempty"`
	CashAmount  string `json:"cash_amount"`
	CoinCost    int64  `json:"coin_cost"`
	OccurredAt  int64  `json:"occurred_at"`
}

// ConsumedEvent 消费端幂等记录
type ConsumedEvent struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ConsumedEvent) TableName() string {
	return "consumed_event"
}
