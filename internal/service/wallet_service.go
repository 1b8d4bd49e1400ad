package service

import (
	"context"
	"errors"
	"fmt"

	"contentpay/internal/bizerr"
	"contentpay/internal/infrastructure/lock"
	"contentpay/internal/model"
	"contentpay/internal/repository"
	"contentpay/pkg/idgen"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BalanceSnapshot 钱包余额快照
type BalanceSnapshot struct {
	UserID          int64           `json:"user_id"`
	Cash            decimal.Decimal `json:"cash"`
	FrozenCash      decimal.Decimal `json:"frozen_cash"`
	AvailableCash   decimal.Decimal `json:"available_cash"`
	Coin            int64           `json:"coin"`
	CoinEarnedTotal int64           `json:"coin_earned_total"`
	CoinSpentTotal  int64           `json:"coin_spent_total"`
	Status          string          `json:"status"`
}

func snapshotOf(w *model.Wallet) BalanceSnapshot {
	return BalanceSnapshot{
		UserID:          w.UserID,
		Cash:            w.CashBalance,
		FrozenCash:      w.FrozenCash,
		AvailableCash:   w.AvailableCash(),
		Coin:            w.CoinBalance,
		CoinEarnedTotal: w.CoinEarnedTotal,
		CoinSpentTotal:  w.CoinSpentTotal,
		Status:          w.Status,
	}
}

// MutationResult 一次余额变动的结果；Replayed 表示命中幂等键，没有再次入账
type MutationResult struct {
	Entry    *model.LedgerEntry
	Snapshot BalanceSnapshot
	Replayed bool
}

// Mutation 一次余额变动请求
// DedupRef 为空时使用 OrderNo 作为幂等键的一部分
type Mutation struct {
	UserID   int64
	Op       model.LedgerOp
	Amount   decimal.Decimal
	OrderNo  string
	DedupRef string
	Remark   string
}

func (m *Mutation) dedupKey() string {
	ref := m.DedupRef
	if ref == "" {
		ref = m.OrderNo
	}
	return model.LedgerDedupKey(m.UserID, m.Op, ref)
}

// WalletService 钱包账本，唯一允许改动余额的组件
type WalletService struct {
	db         *gorm.DB
	locker     *lock.Locker
	walletRepo *repository.WalletRepository
	ledgerRepo *repository.LedgerRepository
}

func NewWalletService(db *gorm.DB, locker *lock.Locker) *WalletService {
	return &WalletService{
		db:         db,
		locker:     locker,
		walletRepo: repository.NewWalletRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// GetBalance 未开户的用户返回零值快照，不会建钱包
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (*BalanceSnapshot, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return &BalanceSnapshot{UserID: userID, Status: model.WalletStatusActive}, nil
		}
		return nil, err
	}
	snap := snapshotOf(wallet)
	return &snap, nil
}

func (s *WalletService) Credit(ctx context.Context, userID int64, currency model.Currency, amount decimal.Decimal, orderNo string) (*MutationResult, error) {
	op := model.LedgerOpCashCredit
	if currency == model.CurrencyCoin {
		op = model.LedgerOpCoinCredit
	}
	return s.apply(ctx, &Mutation{UserID: userID, Op: op, Amount: amount, OrderNo: orderNo})
}

func (s *WalletService) Debit(ctx context.Context, userID int64, currency model.Currency, amount decimal.Decimal, orderNo string) (*MutationResult, error) {
	op := model.LedgerOpCashDebit
	if currency == model.CurrencyCoin {
		op = model.LedgerOpCoinDebit
	}
	return s.apply(ctx, &Mutation{UserID: userID, Op: op, Amount: amount, OrderNo: orderNo})
}

func (s *WalletService) Freeze(ctx context.Context, userID int64, amount decimal.Decimal, orderNo string) (*MutationResult, error) {
	return s.apply(ctx, &Mutation{UserID: userID, Op: model.LedgerOpFreeze, Amount: amount, OrderNo: orderNo})
}

func (s *WalletService) Unfreeze(ctx context.Context, userID int64, amount decimal.Decimal, orderNo string) (*MutationResult, error) {
	return s.apply(ctx, &Mutation{UserID: userID, Op: model.LedgerOpUnfreeze, Amount: amount, OrderNo: orderNo})
}

// apply 加钱包锁并开启独立事务
func (s *WalletService) apply(ctx context.Context, m *Mutation) (*MutationResult, error) {
	release, err := s.locker.AcquireOrdered(ctx, lock.WalletKey(m.UserID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MutationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.ApplyTx(ctx, tx, m)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyTx 在调用方事务内变动余额，调用方必须已持有该用户的钱包锁
//
// 流程：查幂等键 -> 锁钱包行 -> 领域方法改余额 -> 校验不变量 -> 按版本号写回 -> 写流水
func (s *WalletService) ApplyTx(ctx context.Context, tx *gorm.DB, m *Mutation) (*MutationResult, error) {
	if m.OrderNo == "" {
		return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "余额变动必须关联订单号")
	}

	existing, err := s.ledgerRepo.GetByDedupKey(ctx, tx, m.dedupKey())
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing != nil {
		wallet, err := s.walletRepo.GetByUserID(ctx, tx, m.UserID)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"user_id":  m.UserID,
			"op":       m.Op,
			"order_no": m.OrderNo,
		}).Info("[Wallet] 幂等命中，跳过重复入账")
		return &MutationResult{Entry: existing, Snapshot: snapshotOf(wallet), Replayed: true}, nil
	}

	wallet, err := s.lockWallet(ctx, tx, m.UserID)
	if err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryNo:  idgen.LedgerNo(),
		DedupKey: m.dedupKey(),
		UserID:   m.UserID,
		OrderNo:  m.OrderNo,
		Op:       m.Op,
		Remark:   m.Remark,
	}
	if err := mutate(wallet, m, entry); err != nil {
		return nil, err
	}
	if err := wallet.CheckInvariants(); err != nil {
		return nil, err
	}

	if err := s.walletRepo.SaveBalances(ctx, tx, wallet); err != nil {
		return nil, fmt.Errorf("更新钱包失败: %w", err)
	}

	entry.CashBalanceAfter = wallet.CashBalance
	entry.FrozenCashAfter = wallet.FrozenCash
	entry.CoinBalanceAfter = wallet.CoinBalance
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	return &MutationResult{Entry: entry, Snapshot: snapshotOf(wallet)}, nil
}

func (s *WalletService) lockWallet(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrWalletNotFound) {
		return nil, err
	}
	if err := s.walletRepo.Ensure(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("创建钱包失败: %w", err)
	}
	return s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
}

func coinUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsInteger() {
		return 0, bizerr.Newf(bizerr.ErrInvalidAmount, "金币数量必须为整数: %s", amount.String())
	}
	return amount.IntPart(), nil
}

func mutate(w *model.Wallet, m *Mutation, entry *model.LedgerEntry) error {
	switch m.Op {
	case model.LedgerOpCoinCredit, model.LedgerOpCoinDebit:
		coins, err := coinUnits(m.Amount)
		if err != nil {
			return err
		}
		entry.CoinAmount = coins
		if m.Op == model.LedgerOpCoinCredit {
			return w.CreditCoin(coins)
		}
		return w.DebitCoin(coins)
	case model.LedgerOpCashCredit:
		entry.CashAmount = m.Amount
		return w.CreditCash(m.Amount)
	case model.LedgerOpCashDebit:
		entry.CashAmount = m.Amount
		return w.DebitCash(m.Amount)
	case model.LedgerOpFreeze:
		entry.CashAmount = m.Amount
		return w.Freeze(m.Amount)
	case model.LedgerOpUnfreeze:
		entry.CashAmount = m.Amount
		return w.Unfreeze(m.Amount)
	}
	return bizerr.Newf(bizerr.ErrInvalidArgument, "未知的余额操作: %s", m.Op)
}

// SetStatus 冻结或解冻钱包
func (s *WalletService) SetStatus(ctx context.Context, userID int64, status string) error {
	if status != model.WalletStatusActive && status != model.WalletStatusFrozen {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "未知的钱包状态: %s", status)
	}
	release, err := s.locker.AcquireOrdered(ctx, lock.WalletKey(userID))
	if err != nil {
		return err
	}
	defer release()

	if err := s.walletRepo.UpdateStatus(ctx, nil, userID, status); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "status": status}).Info("[Wallet] 钱包状态已变更")
	return nil
}

func (s *WalletService) History(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
