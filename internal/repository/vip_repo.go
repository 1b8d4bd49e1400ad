package repository

import (
	"context"
	"errors"
	"time"

	"contentpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VipRepository struct {
	db *gorm.DB
}

func NewVipRepository(db *gorm.DB) *VipRepository {
	return &VipRepository{db: db}
}

// GetByUserID 不存在时返回 nil, nil
func (r *VipRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.VipMembership, error) {
	if tx == nil {
		tx = r.db
	}
	var vip model.VipMembership
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&vip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vip, nil
}

func (r *VipRepository) SetExpireAt(ctx context.Context, tx *gorm.DB, userID int64, expireAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	vip := &model.VipMembership{UserID: userID, ExpireAt: expireAt}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expire_at", "updated_at"}),
		}).
		Create(vip).Error
}
