package job

import (
	"context"
	"time"

	"gamemarket/internal/config"
	"gamemarket/internal/service"

	"go.uber.org/zap"
)

// OrderTimeoutJob 定时关闭超时未支付的订单
type OrderTimeoutJob struct {
	orders    *service.OrderService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOrderTimeoutJob(orders *service.OrderService, cfg *config.Config) *OrderTimeoutJob {
	interval := cfg.Business.OrderTimeoutScan
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &OrderTimeoutJob{
		orders:    orders,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 100,
	}
}

func (j *OrderTimeoutJob) Start(ctx context.Context) {
	zap.L().Info("[OrderTimeoutJob] 订单超时任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("[OrderTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			zap.L().Info("[OrderTimeoutJob] 任务停止")
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
		zap.L().Error("[OrderTimeoutJob] 关闭超时订单失败", zap.Error(err))
		return 0
	}
	if closed > 0 {
		zap.L().Info("[OrderTimeoutJob] 本次关闭超时订单", zap.Int("count", closed))
	}
	return closed
}
