package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerOp 钱包流水操作类型
type LedgerOp string

const (
	LedgerOpCashCredit LedgerOp = "cash_credit"
	LedgerOpCashDebit  LedgerOp = "cash_debit"
	LedgerOpCoinCredit LedgerOp = "coin_credit"
	LedgerOpCoinDebit  LedgerOp = "coin_debit"
	LedgerOpFreeze     LedgerOp = "freeze"
	LedgerOpUnfreeze   LedgerOp = "unfreeze"
)

var reverseOps = map[LedgerOp]LedgerOp{
	LedgerOpCashCredit: LedgerOpCashDebit,
	LedgerOpCashDebit:  LedgerOpCashCredit,
	LedgerOpCoinCredit: LedgerOpCoinDebit,
	LedgerOpCoinDebit:  LedgerOpCoinCredit,
	LedgerOpFreeze:     LedgerOpUnfreeze,
	LedgerOpUnfreeze:   LedgerOpFreeze,
}

// Reverse 冲正操作
func (op LedgerOp) Reverse() LedgerOp {
	return reverseOps[op]
}

func (op LedgerOp) Currency() Currency {
	switch op {
	case LedgerOpCoinCredit, LedgerOpCoinDebit:
		return CurrencyCoin
	}
	return CurrencyCash
}

// LedgerEntry 钱包流水表
// 每次成功的余额变动对应一条流水，dedup_key 唯一，重复请求直接返回已有流水
type LedgerEntry struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	DedupKey         string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	UserID           int64           `gorm:"index;not null" json:"user_id"`
	OrderNo          string          `gorm:"type:varchar(64);index;not null" json:"order_no"`
	Op               LedgerOp        `gorm:"type:varchar(20);not null" json:"op"`
	CashAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_amount"`
	CoinAmount       int64           `gorm:"not null;default:0" json:"coin_amount"`
	CashBalanceAfter decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_balance_after"`
	FrozenCashAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"frozen_cash_after"`
	CoinBalanceAfter int64           `gorm:"not null;default:0" json:"coin_balance_after"`
	Remark           string          `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "wallet_ledger_entry"
}

// LedgerDedupKey 幂等键：同一用户、同一操作、同一订单只生效一次
func LedgerDedupKey(userID int64, op LedgerOp, orderNo string) string {
	return fmt.Sprintf("%d:%s:%s", userID, op, orderNo)
}
