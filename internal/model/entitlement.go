package model

import "time"

const (
	EntitlementActive   = "active"
	EntitlementExpired  = "expired"
	EntitlementRefunded = "refunded"
)

// Entitlement 用户内容购买记录（权益）
// order_no 唯一，一个订单最多发放一次
type Entitlement struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64      `gorm:"index:idx_user_content;not null" json:"user_id"`
	ContentID      int64      `gorm:"index:idx_user_content;not null" json:"content_id"`
	OrderID        int64      `gorm:"not null" json:"order_id"`
	OrderNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	CoinAmount     int64      `gorm:"not null;default:0" json:"coin_amount"`
	OriginalPrice  int64      `gorm:"not null;default:0" json:"original_price"`
	DiscountAmount int64      `gorm:"not null;default:0" json:"discount_amount"`
	Status         string     `gorm:"type:varchar(16);index;not null" json:"status"`
	PurchaseTime   time.Time  `gorm:"not null" json:"purchase_time"`
	StartTime      time.Time  `gorm:"not null" json:"start_time"` // 续购时接在上一条到期之后
	ExpireTime     *time.Time `gorm:"index" json:"expire_time"` // nil 表示永久
	AccessCount    int64      `gorm:"not null;default:0" json:"access_count"`
	LastAccessTime *time.Time `json:"last_access_time"`
	RevokeReason   string     `gorm:"type:varchar(255)" json:"revoke_reason"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "user_content_purchase"
}

func (e *Entitlement) IsPermanent() bool {
	return e.ExpireTime == nil
}

func (e *Entitlement) ExpiredAt(now time.Time) bool {
	return e.ExpireTime != nil && !e.ExpireTime.After(now)
}

// Remaining now 之后尚未使用的有效期，永久或已过期为 0
func (e *Entitlement) Remaining(now time.Time) time.Duration {
	if e.IsPermanent() || e.ExpiredAt(now) {
		return 0
	}
	from := e.StartTime
	if from.Before(now) {
		from = now
	}
	return e.ExpireTime.Sub(from)
}

// HasAccess active 且未过期
func (e *Entitlement) HasAccess(now time.Time) bool {
	return e.Status == EntitlementActive && !e.ExpiredAt(now)
}
