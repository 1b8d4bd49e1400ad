package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"contentpay/internal/config"
	"contentpay/internal/gateway"
	"contentpay/internal/infrastructure/database"
	"contentpay/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db        *gorm.DB
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	cfg       *config.Config
	confirmer *gateway.MockConfirmer
	svc       *Services
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.PayResult = "contentpay.pay_result"
	cfg.Business.OrderTimeoutMinutes = 30
	cfg.Business.MaxRetryCount = 3
	cfg.Business.ShippedAutoCompleteDays = 7
	cfg.Business.LockTTLSeconds = 30
	cfg.Business.ConfigCacheTTLSeconds = 300
	cfg.Gateway.MockApprove = true
	cfg.Gateway.TimeoutSeconds = 1
	return cfg
}

// newTestEnv 内存 SQLite（单连接）+ miniredis
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	confirmer := gateway.NewMockConfirmer(true, 0)

	return &testEnv{
		db:        db,
		mr:        mr,
		rdb:       rdb,
		cfg:       cfg,
		confirmer: confirmer,
		svc:       New(db, rdb, cfg, confirmer),
	}
}

var seedSeq int64

func (e *testEnv) seedCoins(t *testing.T, userID, coins int64) {
	t.Helper()
	no := fmt.Sprintf("SEED-%d", atomic.AddInt64(&seedSeq, 1))
	_, err := e.svc.Wallet.Credit(context.Background(), userID, model.CurrencyCoin, decimal.NewFromInt(coins), no)
	require.NoError(t, err)
}

func (e *testEnv) seedCash(t *testing.T, userID int64, cash string) {
	t.Helper()
	no := fmt.Sprintf("SEED-%d", atomic.AddInt64(&seedSeq, 1))
	_, err := e.svc.Wallet.Credit(context.Background(), userID, model.CurrencyCash, decimal.RequireFromString(cash), no)
	require.NoError(t, err)
}

func (e *testEnv) saveContent(t *testing.T, cfg *model.ContentPayment) {
	t.Helper()
	require.NoError(t, e.svc.ContentPayment.SaveConfig(context.Background(), cfg))
}

func (e *testEnv) makeVip(t *testing.T, userID int64, days int) {
	t.Helper()
	_, err := e.svc.Vip.ExtendTx(context.Background(), e.db, userID, days)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID int64) *BalanceSnapshot {
	t.Helper()
	snap, err := e.svc.Wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return snap
}

func (e *testEnv) createContentOrder(t *testing.T, userID, contentID, coins int64) *model.Order {
	t.Helper()
	order, err := e.svc.Order.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:      userID,
		GoodsType:   model.GoodsTypeContent,
		PaymentMode: model.PaymentModeCoin,
		Amount:      decimal.NewFromInt(coins),
		GoodsRef:    GoodsRef{ContentID: contentID},
	})
	require.NoError(t, err)
	return order
}

func coinPay(contentID, price int64) *model.ContentPayment {
	return &model.ContentPayment{
		ContentID:     contentID,
		PaymentType:   model.PaymentTypeCoinPay,
		CoinPrice:     price,
		OriginalPrice: price,
		IsPermanent:   true,
	}
}

func requireWalletConsistent(t *testing.T, snap *BalanceSnapshot) {
	t.Helper()
	require.Equal(t, snap.CoinEarnedTotal-snap.CoinSpentTotal, snap.Coin)
	require.False(t, snap.AvailableCash.IsNegative())
	require.False(t, snap.FrozenCash.IsNegative())
}
