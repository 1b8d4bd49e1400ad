package service

import (
	"context"
	"fmt"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"
	"contentpay/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GrantRequest 发放内容权益
// Permanent=false 时按 ValidDays 计算到期时间
type GrantRequest struct {
	UserID        int64
	ContentID     int64
	OrderID       int64
	OrderNo       string
	CoinAmount    int64
	OriginalPrice int64
	Permanent     bool
	ValidDays     int
}

// EntitlementService 用户内容权益
//
// 重复购买策略：
//   - 已有有效的永久权益，再次购买返回 DuplicateGrant
//   - 限时权益可续购，新记录的有效期接在最晚到期时间之后
//   - 撤销限时权益时，之后续购的记录整体前移被撤销记录未使用的时长
type EntitlementService struct {
	repo *repository.EntitlementRepository
	now  func() time.Time
}

func NewEntitlementService(db *gorm.DB) *EntitlementService {
	return &EntitlementService{
		repo: repository.NewEntitlementRepository(db),
		now:  time.Now,
	}
}

// splitLive 区分仍有效与已过期待翻转的 active 记录
func splitLive(list []*model.Entitlement, now time.Time) (live []*model.Entitlement, expiredIDs []int64) {
	for _, e := range list {
		if e.ExpiredAt(now) {
			expiredIDs = append(expiredIDs, e.ID)
			continue
		}
		live = append(live, e)
	}
	return live, expiredIDs
}

func (s *EntitlementService) Grant(ctx context.Context, tx *gorm.DB, req *GrantRequest) (*model.Entitlement, error) {
	if req.OrderNo == "" || req.UserID <= 0 || req.ContentID <= 0 {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "权益发放参数不完整")
	}
	if !req.Permanent && req.ValidDays <= 0 {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "限时权益有效天数必须大于0")
	}

	existing, err := s.repo.GetByOrderNo(ctx, tx, req.OrderNo)
	if err != nil {
		return nil, fmt.Errorf("查询权益失败: %w", err)
	}
	if existing != nil {
		return nil, bizerr.Newf(bizerr.ErrDuplicateGrant, "订单已发放权益: %s", req.OrderNo)
	}

	now := s.now()
	actives, err := s.repo.ListActive(ctx, tx, req.UserID, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("查询权益失败: %w", err)
	}
	live, expiredIDs := splitLive(actives, now)
	if _, err := s.repo.MarkExpired(ctx, tx, expiredIDs); err != nil {
		return nil, fmt.Errorf("更新过期权益失败: %w", err)
	}

	var expireTime *time.Time
	base := now
	for _, e := range live {
		if e.IsPermanent() {
			return nil, bizerr.Newf(bizerr.ErrDuplicateGrant, "已永久拥有该内容: userID=%d, contentID=%d", req.UserID, req.ContentID)
		}
		if e.ExpireTime.After(base) {
			base = *e.ExpireTime
		}
	}
	if !req.Permanent {
		t := base.AddDate(0, 0, req.ValidDays)
		expireTime = &t
	}

	discount := req.OriginalPrice - req.CoinAmount
	if discount < 0 {
		discount = 0
	}
	e := &model.Entitlement{
		UserID:         req.UserID,
		ContentID:      req.ContentID,
		OrderID:        req.OrderID,
		OrderNo:        req.OrderNo,
		CoinAmount:     req.CoinAmount,
		OriginalPrice:  req.OriginalPrice,
		DiscountAmount: discount,
		Status:         model.EntitlementActive,
		PurchaseTime:   now,
		StartTime:      base,
		ExpireTime:     expireTime,
	}
	if err := s.repo.Create(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("写入权益失败: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":    req.UserID,
		"content_id": req.ContentID,
		"order_no":   req.OrderNo,
		"permanent":  req.Permanent,
	}).Info("[Entitlement] 权益已发放")
	return e, nil
}

// HasPermanent 是否已持有有效的永久权益，下单前用于拦截重复购买
func (s *EntitlementService) HasPermanent(ctx context.Context, userID, contentID int64) (bool, error) {
	actives, err := s.repo.ListActive(ctx, nil, userID, contentID)
	if err != nil {
		return false, err
	}
	for _, e := range actives {
		if e.IsPermanent() {
			return true, nil
		}
	}
	return false, nil
}

// CheckAccess 读取时顺带把过期记录翻转为 expired
func (s *EntitlementService) CheckAccess(ctx context.Context, userID, contentID int64) (bool, error) {
	_, ok, err := s.activeEntitlement(ctx, userID, contentID)
	return ok, err
}

func (s *EntitlementService) activeEntitlement(ctx context.Context, userID, contentID int64) (*model.Entitlement, bool, error) {
	actives, err := s.repo.ListActive(ctx, nil, userID, contentID)
	if err != nil {
		return nil, false, err
	}
	live, expiredIDs := splitLive(actives, s.now())
	if len(expiredIDs) > 0 {
		if n, err := s.repo.MarkExpired(ctx, nil, expiredIDs); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("[Entitlement] 翻转过期权益失败")
		} else if n > 0 {
			log.WithFields(log.Fields{"user_id": userID, "content_id": contentID, "count": n}).Debug("[Entitlement] 权益已过期")
		}
	}
	if len(live) == 0 {
		return nil, false, nil
	}
	return live[0], true, nil
}

// RecordAccess 无有效权益时静默返回
func (s *EntitlementService) RecordAccess(ctx context.Context, userID, contentID int64) error {
	e, ok, err := s.activeEntitlement(ctx, userID, contentID)
	if err != nil || !ok {
		return err
	}
	return s.repo.IncrementAccess(ctx, e.ID, s.now())
}

// Revoke 标记为 refunded，不可恢复；重复撤销视为成功
func (s *EntitlementService) Revoke(ctx context.Context, tx *gorm.DB, entitlementID int64, reason string) error {
	e, err := s.repo.GetByID(ctx, tx, entitlementID)
	if err != nil {
		return err
	}
	if e.Status == model.EntitlementRefunded {
		return nil
	}
	remaining := e.Remaining(s.now())
	if _, err := s.repo.MarkRefunded(ctx, tx, e.ID, reason); err != nil {
		return fmt.Errorf("撤销权益失败: %w", err)
	}
	if err := s.pullForward(ctx, tx, e, remaining); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"entitlement_id": e.ID,
		"order_no":       e.OrderNo,
		"reason":         reason,
	}).Info("[Entitlement] 权益已撤销")
	return nil
}

// pullForward 续购在被撤销记录之后的限时权益前移 d
func (s *EntitlementService) pullForward(ctx context.Context, tx *gorm.DB, revoked *model.Entitlement, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	actives, err := s.repo.ListActive(ctx, tx, revoked.UserID, revoked.ContentID)
	if err != nil {
		return fmt.Errorf("查询权益失败: %w", err)
	}
	for _, e := range actives {
		if e.ID <= revoked.ID || e.IsPermanent() {
			continue
		}
		if err := s.repo.Shift(ctx, tx, e, d); err != nil {
			return fmt.Errorf("调整续购权益失败: %w", err)
		}
		log.WithFields(log.Fields{
			"entitlement_id": e.ID,
			"order_no":       e.OrderNo,
			"expire_time":    e.ExpireTime,
		}).Info("[Entitlement] 续购权益有效期已前移")
	}
	return nil
}

// RevokeByOrder 订单没有发放过权益时返回 nil, nil
func (s *EntitlementService) RevokeByOrder(ctx context.Context, tx *gorm.DB, orderNo, reason string) (*model.Entitlement, error) {
	e, err := s.repo.GetByOrderNo(ctx, tx, orderNo)
	if err != nil || e == nil {
		return nil, err
	}
	if err := s.Revoke(ctx, tx, e.ID, reason); err != nil {
		return nil, err
	}
	e.Status = model.EntitlementRefunded
	e.RevokeReason = reason
	return e, nil
}

// SweepExpired 批量翻转过期权益，仅用于统计报表
func (s *EntitlementService) SweepExpired(ctx context.Context, limit int) (int64, error) {
	ids, err := s.repo.FindExpiredIDs(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	return s.repo.MarkExpired(ctx, nil, ids)
}

func (s *EntitlementService) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Entitlement, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.ListByUserID(ctx, userID, page, pageSize)
}
