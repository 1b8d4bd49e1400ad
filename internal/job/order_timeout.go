package job

import (
	"context"
	"time"

	"contentpay/internal/service"

	log "github.com/sirupsen/logrus"
)

// OrderTimeoutJob 关闭超时未支付的订单，下单冻结的现金随之释放
type OrderTimeoutJob struct {
	orders    *service.OrderService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOrderTimeoutJob(orders *service.OrderService) *OrderTimeoutJob {
	return &OrderTimeoutJob{
		orders:    orders,
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
	}
}

func (j *OrderTimeoutJob) Start(ctx context.Context) {
	log.Info("[OrderTimeoutJob] 订单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[OrderTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Info("[OrderTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredOrders(ctx)
		}
	}
}

func (j *OrderTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *OrderTimeoutJob) closeExpiredOrders(ctx context.Context) int {
	closed, err := j.orders.CloseExpiredOrders(ctx, j.batchSize)
	if err != nil {
		log.WithError(err).Error("[OrderTimeoutJob] 查询超时订单失败")
		return 0
	}
	if closed > 0 {
		log.WithField("count", closed).Info("[OrderTimeoutJob] 本次关闭超时订单")
	}
	return closed
}
