package model

import (
	"time"

	"contentpay/internal/bizerr"
)

// 付费类型
const (
	PaymentTypeFree        = "free"
	PaymentTypeCoinPay     = "coin_pay"
	PaymentTypeVipFree     = "vip_free"
	PaymentTypeTimeLimited = "time_limited"
)

const (
	ContentPaymentActive   = "active"
	ContentPaymentInactive = "inactive"
)

// ContentPayment 内容付费配置
type ContentPayment struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentID      int64     `gorm:"uniqueIndex;not null" json:"content_id"`
	PaymentType    string    `gorm:"type:varchar(20);not null" json:"payment_type"`
	CoinPrice      int64     `gorm:"not null;default:0" json:"coin_price"`
	OriginalPrice  int64     `gorm:"not null;default:0" json:"original_price"`
	VipFree        bool      `gorm:"not null;default:false" json:"vip_free"`
	VipOnly        bool      `gorm:"not null;default:false" json:"vip_only"`
	TrialEnabled   bool      `gorm:"not null;default:false" json:"trial_enabled"`
	TrialContent   string    `gorm:"type:text" json:"trial_content"`
	TrialWordCount int       `gorm:"not null;default:0" json:"trial_word_count"`
	IsPermanent    bool      `gorm:"not null;default:false" json:"is_permanent"`
	ValidDays      int       `gorm:"not null;default:0" json:"valid_days"`
	TotalSales     int64     `gorm:"not null;default:0" json:"total_sales"`
	TotalRevenue   int64     `gorm:"not null;default:0" json:"total_revenue"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ContentPayment) TableName() string {
	return "content_payment"
}

func (c *ContentPayment) IsActive() bool {
	return c.Status == ContentPaymentActive
}

func (c *ContentPayment) IsFree() bool {
	return c.PaymentType == PaymentTypeFree
}

// Permanent 购买后是否永久有效，time_limited 类型一律按有效期处理
func (c *ContentPayment) Permanent() bool {
	return c.IsPermanent && c.PaymentType != PaymentTypeTimeLimited
}

// Validate 保存前校验
func (c *ContentPayment) Validate() error {
	switch c.PaymentType {
	case PaymentTypeFree, PaymentTypeCoinPay, PaymentTypeVipFree, PaymentTypeTimeLimited:
	default:
		return bizerr.Newf(bizerr.ErrInvalidArgument, "未知付费类型: %s", c.PaymentType)
	}
	if c.CoinPrice < 0 || c.OriginalPrice < 0 {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "价格不能为负数")
	}
	if c.PaymentType != PaymentTypeFree && c.CoinPrice == 0 {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "付费内容价格必须大于0")
	}
	if c.OriginalPrice > 0 && c.CoinPrice > c.OriginalPrice {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "现价 %d 不能高于原价 %d", c.CoinPrice, c.OriginalPrice)
	}
	if c.PaymentType != PaymentTypeFree && !c.Permanent() && c.ValidDays <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "限时内容有效天数必须大于0")
	}
	if c.TrialWordCount < 0 {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "试读字数不能为负数")
	}
	return nil
}
