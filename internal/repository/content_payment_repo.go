package repository

import (
	"context"
	"errors"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrContentPaymentNotFound = &bizerr.Error{Kind: bizerr.KindNotFound, Msg: "内容付费配置不存在"}

type ContentPaymentRepository struct {
	db *gorm.DB
}

func NewContentPaymentRepository(db *gorm.DB) *ContentPaymentRepository {
	return &ContentPaymentRepository{db: db}
}

func (r *ContentPaymentRepository) GetByContentID(ctx context.Context, contentID int64) (*model.ContentPayment, error) {
	var cfg model.ContentPayment
	err := r.db.WithContext(ctx).Where("content_id = ?", contentID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContentPaymentNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// Upsert 按 content_id 新建或覆盖配置，销量统计字段不参与覆盖
func (r *ContentPaymentRepository) Upsert(ctx context.Context, cfg *model.ContentPayment) error {
	row := *cfg
	row.ID = 0
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"payment_type", "coin_price", "original_price", "vip_free", "vip_only",
				"trial_enabled", "trial_content", "trial_word_count", "is_permanent",
				"valid_days", "status", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (r *ContentPaymentRepository) UpdateStatus(ctx context.Context, contentID int64, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ContentPayment{}).
		Where("content_id = ?", contentID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrContentPaymentNotFound
	}
	return nil
}

// IncrementStats 累加销量与收入，退款时传负数
func (r *ContentPaymentRepository) IncrementStats(ctx context.Context, tx *gorm.DB, contentID int64, sales, revenue int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.ContentPayment{}).
		Where("content_id = ?", contentID).
		UpdateColumns(map[string]interface{}{
			"total_sales":   gorm.Expr("total_sales + ?", sales),
			"total_revenue": gorm.Expr("total_revenue + ?", revenue),
		}).Error
}
