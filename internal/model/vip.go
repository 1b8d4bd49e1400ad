package model

import "time"

// VipMembership 会员有效期，订阅订单结算时延长
type VipMembership struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	ExpireAt  time.Time `gorm:"not null" json:"expire_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (VipMembership) TableName() string {
	return "vip_membership"
}

func (v *VipMembership) ActiveAt(now time.Time) bool {
	return v.ExpireAt.After(now)
}
