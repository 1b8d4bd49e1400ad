package job

import (
	"context"
	"time"

	"contentpay/internal/config"
	"contentpay/internal/infrastructure/mq"
	"contentpay/internal/model"
	"contentpay/internal/repository"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox 表，把结算事务里写入的订单事件投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   sarama.SyncProducer
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, producer sarama.SyncProducer, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 返回本轮发送成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.WithError(err).Error("[OutboxSender] 查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	fields := log.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey}

	err := mq.SendMessage(s.producer, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			log.WithError(updateErr).WithFields(fields).Error("[OutboxSender] 更新消息状态失败")
		} else {
			log.WithFields(fields).Debug("[OutboxSender] 消息发送成功")
		}
		return true
	}

	log.WithError(err).WithFields(fields).Warn("[OutboxSender] 消息发送失败")

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.WithError(err).WithFields(fields).Error("[OutboxSender] 标记消息失败状态失败")
		} else {
			log.WithFields(fields).Error("[OutboxSender] 消息超过最大重试次数，标记为失败")
		}
		return false
	}
	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.WithError(err).WithFields(fields).Error("[OutboxSender] 增加重试次数失败")
	}
	return false
}
