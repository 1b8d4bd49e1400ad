package repository

import (
	"context"
	"errors"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound = &bizerr.Error{Kind: bizerr.KindNotFound, Msg: "钱包不存在"}
	ErrOptimisticLock = errors.New("乐观锁冲突，请重试")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.Wallet
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Ensure 钱包在第一次资金变动时懒创建
func (r *WalletRepository) Ensure(ctx context.Context, tx *gorm.DB, userID int64) error {
	if tx == nil {
		tx = r.db
	}
	wallet := &model.Wallet{
		UserID: userID,
		Status: model.WalletStatusActive,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

// SaveBalances 按版本号写回余额与累计字段，成功后 wallet.Version 自增
func (r *WalletRepository) SaveBalances(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, wallet.Version).
		Updates(map[string]interface{}{
			"cash_balance":       wallet.CashBalance,
			"frozen_cash":        wallet.FrozenCash,
			"cash_income_total":  wallet.CashIncomeTotal,
			"cash_expense_total": wallet.CashExpenseTotal,
			"coin_balance":       wallet.CoinBalance,
			"coin_earned_total":  wallet.CoinEarnedTotal,
			"coin_spent_total":   wallet.CoinSpentTotal,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	wallet.Version++
	return nil
}

func (r *WalletRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, userID int64, status string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}
