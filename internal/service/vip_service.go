package service

import (
	"context"
	"time"

	"contentpay/internal/repository"

	"gorm.io/gorm"
)

// VipChecker 会员身份查询
type VipChecker interface {
	IsVip(ctx context.Context, userID int64) (bool, error)
}

// VipService 会员有效期，由订阅订单的结算与退款驱动
type VipService struct {
	vipRepo *repository.VipRepository
	now     func() time.Time
}

func NewVipService(db *gorm.DB) *VipService {
	return &VipService{
		vipRepo: repository.NewVipRepository(db),
		now:     time.Now,
	}
}

func (s *VipService) IsVip(ctx context.Context, userID int64) (bool, error) {
	vip, err := s.vipRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return false, err
	}
	return vip != nil && vip.ActiveAt(s.now()), nil
}

// GetExpireAt 非会员返回 nil
func (s *VipService) GetExpireAt(ctx context.Context, userID int64) (*time.Time, error) {
	vip, err := s.vipRepo.GetByUserID(ctx, nil, userID)
	if err != nil || vip == nil {
		return nil, err
	}
	return &vip.ExpireAt, nil
}

// ExtendTx 从 max(当前时间, 原到期时间) 起顺延
func (s *VipService) ExtendTx(ctx context.Context, tx *gorm.DB, userID int64, days int) (time.Time, error) {
	vip, err := s.vipRepo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return time.Time{}, err
	}
	base := s.now()
	if vip != nil && vip.ExpireAt.After(base) {
		base = vip.ExpireAt
	}
	expireAt := base.AddDate(0, 0, days)
	if err := s.vipRepo.SetExpireAt(ctx, tx, userID, expireAt); err != nil {
		return time.Time{}, err
	}
	return expireAt, nil
}

// ShortenTx 退款回收会员天数
func (s *VipService) ShortenTx(ctx context.Context, tx *gorm.DB, userID int64, days int) error {
	vip, err := s.vipRepo.GetByUserID(ctx, tx, userID)
	if err != nil || vip == nil {
		return err
	}
	return s.vipRepo.SetExpireAt(ctx, tx, userID, vip.ExpireAt.AddDate(0, 0, -days))
}

var _ VipChecker = (*VipService)(nil)
