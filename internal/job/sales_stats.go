package job

import (
	"context"
	"encoding/json"
	"fmt"

	"contentpay/internal/model"
	"contentpay/internal/repository"
	"contentpay/internal/service"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SalesStatsConsumer 消费订单事件，累计内容销量与收入
// 同一条消息按 key 只计一次，退款事件回退销量
type SalesStatsConsumer struct {
	db           *gorm.DB
	consumedRepo *repository.ConsumedEventRepository
	content      *service.ContentPaymentService
}

func NewSalesStatsConsumer(db *gorm.DB, content *service.ContentPaymentService) *SalesStatsConsumer {
	return &SalesStatsConsumer{
		db:           db,
		consumedRepo: repository.NewConsumedEventRepository(db),
		content:      content,
	}
}

func (c *SalesStatsConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *SalesStatsConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *SalesStatsConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.Handle(session.Context(), msg); err != nil {
				// 不提交位点，rebalance 后重新投递
				log.WithError(err).WithFields(log.Fields{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("[SalesStats] 处理消息失败")
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Handle 处理单条订单事件；无法解析的消息记录后跳过
func (c *SalesStatsConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.WithError(err).WithField("offset", msg.Offset).Warn("[SalesStats] 消息格式错误，跳过")
		return nil
	}
	if event.GoodsType != model.GoodsTypeContent || event.ContentID == 0 {
		return nil
	}

	var sales int64
	switch event.Event {
	case model.EventOrderPaid:
		sales = 1
	case model.EventOrderRefunded:
		sales = -1
	default:
		return nil
	}

	key := string(msg.Key)
	if key == "" {
		key = fmt.Sprintf("%s:%s", event.OrderNo, event.Event)
	}

	applied := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := c.consumedRepo.MarkConsumed(ctx, tx, key, msg.Topic)
		if err != nil || !fresh {
			return err
		}
		applied = true
		return c.content.AddSales(ctx, tx, event.ContentID, sales, sales*event.CoinCost)
	})
	if err != nil {
		return fmt.Errorf("更新销量统计失败: %w", err)
	}
	if !applied {
		log.WithField("key", key).Debug("[SalesStats] 重复消息，忽略")
		return nil
	}

	c.content.Invalidate(ctx, event.ContentID)
	log.WithFields(log.Fields{
		"order_no":   event.OrderNo,
		"content_id": event.ContentID,
		"event":      event.Event,
	}).Debug("[SalesStats] 销量已更新")
	return nil
}

var _ sarama.ConsumerGroupHandler = (*SalesStatsConsumer)(nil)
