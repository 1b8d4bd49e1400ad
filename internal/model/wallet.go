package model

import (
	"fmt"
	"time"

	"contentpay/internal/bizerr"

	"github.com/shopspring/decimal"
)

const (
	WalletStatusActive = "active"
	WalletStatusFrozen = "frozen"
)

// Currency 钱包币种
type Currency string

const (
	CurrencyCash Currency = "cash" // 现金
	CurrencyCoin Currency = "coin" // 金币
)

// Wallet 用户钱包表
// 现金 + 金币双货币，所有余额变动只能通过下面的方法完成
//
// 【不变量】
// 1. coin_earned_total - coin_spent_total == coin_balance
// 2. 0 <= frozen_cash <= cash_balance
// 3. 累计类字段只增不减
type Wallet struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	CashBalance      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_balance"`       // 现金余额（含冻结）
	FrozenCash       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"frozen_cash"`        // 冻结现金
	CashIncomeTotal  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_income_total"`  // 累计现金收入
	CashExpenseTotal decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_expense_total"` // 累计现金支出
	CoinBalance      int64           `gorm:"not null;default:0" json:"coin_balance"`                          // 金币余额
	CoinEarnedTotal  int64           `gorm:"not null;default:0" json:"coin_earned_total"`                     // 累计获得金币
	CoinSpentTotal   int64           `gorm:"not null;default:0" json:"coin_spent_total"`                      // 累计消费金币
	Status           string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Version          int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "user_wallet"
}

// AvailableCash 可用现金 = 余额 - 冻结
func (w *Wallet) AvailableCash() decimal.Decimal {
	return w.CashBalance.Sub(w.FrozenCash)
}

func (w *Wallet) IsFrozen() bool {
	return w.Status == WalletStatusFrozen
}

func (w *Wallet) checkMutable() error {
	if w.IsFrozen() {
		return bizerr.Newf(bizerr.ErrWalletFrozen, "钱包已冻结: userID=%d", w.UserID)
	}
	return nil
}

func positive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "金额必须大于0: %s", amount.String())
	}
	return nil
}

// CreditCash 现金入账
func (w *Wallet) CreditCash(amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := w.checkMutable(); err != nil {
		return err
	}
	w.CashBalance = w.CashBalance.Add(amount)
	w.CashIncomeTotal = w.CashIncomeTotal.Add(amount)
	return nil
}

// DebitCash 现金出账，只能动用未冻结部分
func (w *Wallet) DebitCash(amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := w.checkMutable(); err != nil {
		return err
	}
	if w.AvailableCash().LessThan(amount) {
		return bizerr.Newf(bizerr.ErrInsufficientFunds, "可用现金不足: available=%s, need=%s",
			w.AvailableCash().String(), amount.String())
	}
	w.CashBalance = w.CashBalance.Sub(amount)
	w.CashExpenseTotal = w.CashExpenseTotal.Add(amount)
	return nil
}

// CreditCoin 金币入账，同步累计获得
func (w *Wallet) CreditCoin(amount int64) error {
	if amount <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "金币数量必须大于0: %d", amount)
	}
	if err := w.checkMutable(); err != nil {
		return err
	}
	w.CoinBalance += amount
	w.CoinEarnedTotal += amount
	return nil
}

// DebitCoin 金币出账，同步累计消费
func (w *Wallet) DebitCoin(amount int64) error {
	if amount <= 0 {
		return bizerr.Newf(bizerr.ErrInvalidAmount, "金币数量必须大于0: %d", amount)
	}
	if err := w.checkMutable(); err != nil {
		return err
	}
	if w.CoinBalance < amount {
		return bizerr.Newf(bizerr.ErrInsufficientFunds, "金币不足: balance=%d, need=%d", w.CoinBalance, amount)
	}
	w.CoinBalance -= amount
	w.CoinSpentTotal += amount
	return nil
}

// Freeze 冻结现金
func (w *Wallet) Freeze(amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := w.checkMutable(); err != nil {
		return err
	}
	if w.AvailableCash().LessThan(amount) {
		return bizerr.Newf(bizerr.ErrInsufficientFunds, "可用现金不足，无法冻结: available=%s, need=%s",
			w.AvailableCash().String(), amount.String())
	}
	w.FrozenCash = w.FrozenCash.Add(amount)
	return nil
}

// Unfreeze 解冻现金
// 钱包冻结状态下仍允许解冻，避免订单关闭时资金被卡住
func (w *Wallet) Unfreeze(amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if w.FrozenCash.LessThan(amount) {
		return bizerr.Newf(bizerr.ErrOverUnfreeze, "解冻金额超过冻结金额: frozen=%s, need=%s",
			w.FrozenCash.String(), amount.String())
	}
	w.FrozenCash = w.FrozenCash.Sub(amount)
	return nil
}

// CheckInvariants 校验钱包不变量，落库前调用
func (w *Wallet) CheckInvariants() error {
	if w.CoinEarnedTotal-w.CoinSpentTotal != w.CoinBalance {
		return fmt.Errorf("钱包不变量被破坏: userID=%d, earned=%d, spent=%d, balance=%d",
			w.UserID, w.CoinEarnedTotal, w.CoinSpentTotal, w.CoinBalance)
	}
	if w.CoinBalance < 0 || w.FrozenCash.IsNegative() || w.AvailableCash().IsNegative() {
		return fmt.Errorf("钱包余额异常: userID=%d, cash=%s, frozen=%s, coin=%d",
			w.UserID, w.CashBalance.String(), w.FrozenCash.String(), w.CoinBalance)
	}
	return nil
}
