package repository

import (
	"context"
	"errors"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"gorm.io/gorm"
)

var ErrEntitlementNotFound = &bizerr.Error{Kind: bizerr.KindNotFound, Msg: "购买记录不存在"}

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func (r *EntitlementRepository) Create(ctx context.Context, tx *gorm.DB, e *model.Entitlement) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(e).Error
}

func (r *EntitlementRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Entitlement, error) {
	if tx == nil {
		tx = r.db
	}
	var e model.Entitlement
	err := tx.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntitlementNotFound
		}
		return nil, err
	}
	return &e, nil
}

// GetByOrderNo 不存在时返回 nil, nil
func (r *EntitlementRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Entitlement, error) {
	if tx == nil {
		tx = r.db
	}
	var e model.Entitlement
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListActive 状态为 active 的记录（可能已过期待翻转），按 id 倒序
func (r *EntitlementRepository) ListActive(ctx context.Context, tx *gorm.DB, userID, contentID int64) ([]*model.Entitlement, error) {
	if tx == nil {
		tx = r.db
	}
	var list []*model.Entitlement
	err := tx.WithContext(ctx).
		Where("user_id = ? AND content_id = ? AND status = ?", userID, contentID, model.EntitlementActive).
		Order("id DESC").
		Find(&list).Error
	return list, err
}

func (r *EntitlementRepository) MarkExpired(ctx context.Context, tx *gorm.DB, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("id IN ? AND status = ?", ids, model.EntitlementActive).
		Update("status", model.EntitlementExpired)
	return result.RowsAffected, result.Error
}

// MarkRefunded 已退款的记录不再变化
func (r *EntitlementRepository) MarkRefunded(ctx context.Context, tx *gorm.DB, id int64, reason string) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("id = ? AND status <> ?", id, model.EntitlementRefunded).
		Updates(map[string]interface{}{
			"status":        model.EntitlementRefunded,
			"revoke_reason": reason,
		})
	return result.RowsAffected, result.Error
}

// Shift 把有效期整体提前 d
func (r *EntitlementRepository) Shift(ctx context.Context, tx *gorm.DB, e *model.Entitlement, d time.Duration) error {
	if tx == nil {
		tx = r.db
	}
	start := e.StartTime.Add(-d)
	expire := e.ExpireTime.Add(-d)
	err := tx.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("id = ? AND status = ?", e.ID, model.EntitlementActive).
		Updates(map[string]interface{}{
			"start_time":  start,
			"expire_time": expire,
		}).Error
	if err != nil {
		return err
	}
	e.StartTime = start
	e.ExpireTime = &expire
	return nil
}

func (r *EntitlementRepository) IncrementAccess(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_access_time": at,
		}).Error
}

// FindExpiredIDs 已过期但仍为 active 的记录
func (r *EntitlementRepository) FindExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("status = ? AND expire_time IS NOT NULL AND expire_time <= ?", model.EntitlementActive, now).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *EntitlementRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Entitlement, int64, error) {
	var list []*model.Entitlement
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Entitlement{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}
