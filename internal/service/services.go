package service

import (
	"time"

	"contentpay/internal/config"
	"contentpay/internal/gateway"
	"contentpay/internal/infrastructure/lock"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 结算核心的全部服务
type Services struct {
	Wallet         *WalletService
	ContentPayment *ContentPaymentService
	Entitlement    *EntitlementService
	Vip            *VipService
	Order          *OrderService
	Settlement     *SettlementService
	Payment        *PaymentService
	Access         *AccessService
}

func New(db *gorm.DB, rdb *redis.Client, cfg *config.Config, confirmer gateway.Confirmer) *Services {
	locker := lock.NewLocker(rdb, time.Duration(cfg.Business.LockTTLSeconds)*time.Second)

	wallet := NewWalletService(db, locker)
	content := NewContentPaymentService(db, rdb, time.Duration(cfg.Business.ConfigCacheTTLSeconds)*time.Second)
	entitlement := NewEntitlementService(db)
	vip := NewVipService(db)

	dispatcher := NewDispatcher(wallet, content, entitlement, vip)
	settlement := NewSettlementService(db, cfg, locker, wallet, dispatcher)

	return &Services{
		Wallet:         wallet,
		ContentPayment: content,
		Entitlement:    entitlement,
		Vip:            vip,
		Order:          NewOrderService(db, cfg, locker, dispatcher, wallet, settlement),
		Settlement:     settlement,
		Payment:        NewPaymentService(db, settlement, confirmer, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second),
		Access:         NewAccessService(content, entitlement, vip),
	}
}
