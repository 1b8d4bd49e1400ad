package job

import (
	"testing"

	"contentpay/internal/config"
	"contentpay/internal/gateway"
	"contentpay/internal/infrastructure/database"
	"contentpay/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.PayResult = "contentpay.pay_result"
	cfg.Business.OrderTimeoutMinutes = 30
	cfg.Business.MaxRetryCount = 2
	cfg.Business.ShippedAutoCompleteDays = 7
	cfg.Business.LockTTLSeconds = 30
	cfg.Business.ConfigCacheTTLSeconds = 300
	cfg.Gateway.TimeoutSeconds = 1
	cfg.Jobs.EntitlementSweepCron = "*/10 * * * *"
	cfg.Jobs.ShippedAutoCompleteCron = "0 3 * * *"
	cfg.Jobs.OutboxRequeueCron = "0 * * * *"
	return cfg
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestServices(t *testing.T, db *gorm.DB, cfg *config.Config) (*service.Services, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return service.New(db, rdb, cfg, gateway.NewMockConfirmer(true, 0)), mr
}
