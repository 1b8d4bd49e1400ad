package mq

import (
	"context"
	"errors"

	"contentpay/internal/config"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

var KafkaProducer sarama.SyncProducer

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig())
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	KafkaProducer = producer
	log.Info("Kafka 生产者创建成功")
	return producer
}

// SendMessage 同步发送，key 保证同一订单的消息进入同一分区
func SendMessage(producer sarama.SyncProducer, topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := producer.SendMessage(msg)
	return err
}

func CloseKafka() {
	if KafkaProducer != nil {
		if err := KafkaProducer.Close(); err != nil {
			log.WithError(err).Warn("关闭 Kafka 生产者失败")
		}
	}
}

// NewConsumerGroup 创建消费组，从最早的未提交位点开始消费
func NewConsumerGroup(cfg *config.KafkaConfig) (sarama.ConsumerGroup, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true
	return sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
}

// RunConsumerGroup 循环消费直到 ctx 取消，每次 rebalance 后重新进入 Consume
func RunConsumerGroup(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler) {
	go func() {
		for err := range group.Errors() {
			log.WithError(err).Warn("[Consumer] 消费组错误")
		}
	}()

	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.WithError(err).Error("[Consumer] 消费失败")
		}
		if ctx.Err() != nil {
			return
		}
	}
}
