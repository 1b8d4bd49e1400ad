package job

import (
	"context"
	"fmt"

	"contentpay/internal/config"
	"contentpay/internal/repository"
	"contentpay/internal/service"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	sweepBatchSize    = 500
	completeBatchSize = 100
	requeueBatchSize  = 100
)

// Scheduler 低频的 cron 任务：权益过期清理、发货自动确认、失败消息重投
type Scheduler struct {
	cron        *cron.Cron
	cfg         *config.Config
	orders      *service.OrderService
	entitlement *service.EntitlementService
	outboxRepo  *repository.OutboxRepository
}

func NewScheduler(db *gorm.DB, cfg *config.Config, svc *service.Services) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		cfg:         cfg,
		orders:      svc.Order,
		entitlement: svc.Entitlement,
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// Register 注册全部任务，cron 表达式非法时返回错误
func (s *Scheduler) Register(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"entitlement_sweep", s.cfg.Jobs.EntitlementSweepCron, s.sweepEntitlements},
		{"shipped_auto_complete", s.cfg.Jobs.ShippedAutoCompleteCron, s.completeShippedOrders},
		{"outbox_requeue", s.cfg.Jobs.OutboxRequeueCron, s.requeueFailedMessages},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		fn := j.fn
		if _, err := s.cron.AddFunc(j.spec, func() { fn(ctx) }); err != nil {
			return fmt.Errorf("注册定时任务 %s 失败: %w", j.name, err)
		}
		log.WithFields(log.Fields{"job": j.name, "spec": j.spec}).Info("[Scheduler] 定时任务已注册")
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepEntitlements(ctx context.Context) {
	n, err := s.entitlement.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		log.WithError(err).Error("[Scheduler] 清理过期权益失败")
		return
	}
	if n > 0 {
		log.WithField("count", n).Info("[Scheduler] 过期权益已翻转")
	}
}

func (s *Scheduler) completeShippedOrders(ctx context.Context) {
	n, err := s.orders.CompleteShippedOrders(ctx, s.cfg.Business.ShippedAutoCompleteDays, completeBatchSize)
	if err != nil {
		log.WithError(err).Error("[Scheduler] 自动确认收货失败")
		return
	}
	if n > 0 {
		log.WithField("count", n).Info("[Scheduler] 订单已自动确认收货")
	}
}

func (s *Scheduler) requeueFailedMessages(ctx context.Context) {
	n, err := s.outboxRepo.RequeueFailed(ctx, requeueBatchSize)
	if err != nil {
		log.WithError(err).Error("[Scheduler] 重投失败消息出错")
		return
	}
	if n > 0 {
		log.WithField("count", n).Warn("[Scheduler] 失败消息已重新入队")
	}
}
