package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"contentpay/internal/config"
	"contentpay/internal/gateway"
	"contentpay/internal/handler"
	"contentpay/internal/infrastructure/cache"
	"contentpay/internal/infrastructure/database"
	"contentpay/internal/infrastructure/mq"
	"contentpay/internal/job"
	"contentpay/internal/service"
	"contentpay/pkg/idgen"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "雪花算法机器ID")
	flag.Parse()

	cfg := config.LoadConfig(*configPath)

	log.SetFormatter(&log.JSONFormatter{})
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	if err := idgen.Init(*workerID); err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	db := database.InitDB(&cfg.Database)
	redisClient := cache.InitRedis(&cfg.Redis)

	producer := mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	confirmer := gateway.NewMockConfirmer(cfg.Gateway.MockApprove, 0)
	svc := service.New(db, redisClient, cfg, confirmer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	var wg sync.WaitGroup
	outboxSender := job.NewOutboxSender(db, producer, cfg)
	orderTimeoutJob := job.NewOrderTimeoutJob(svc.Order)
	for _, start := range []func(context.Context){outboxSender.Start, orderTimeoutJob.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}

	scheduler := job.NewScheduler(db, cfg, svc)
	if err := scheduler.Register(ctx); err != nil {
		log.Fatalf("注册定时任务失败: %v", err)
	}
	scheduler.Start()

	consumerGroup, err := mq.NewConsumerGroup(&cfg.Kafka)
	if err != nil {
		log.Fatalf("创建 Kafka 消费组失败: %v", err)
	}
	salesStats := job.NewSalesStatsConsumer(db, svc.ContentPayment)
	wg.Add(1)
	go func() {
		defer wg.Done()
		mq.RunConsumerGroup(ctx, consumerGroup, []string{cfg.Kafka.Topic.PayResult}, salesStats)
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(svc),
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("服务关闭异常")
	}

	// HTTP 停止后再停后台任务，避免请求写入的消息无人发送
	cancel()
	scheduler.Stop()
	if err := consumerGroup.Close(); err != nil {
		log.WithError(err).Warn("关闭 Kafka 消费组失败")
	}
	wg.Wait()

	log.Info("服务已关闭")
}
