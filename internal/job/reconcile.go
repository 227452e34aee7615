package job

import (
	"context"
	"time"

	"gamemarket/internal/config"
	"gamemarket/internal/repository"
	"gamemarket/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileJob 定时回放钱包流水，发现余额与流水不一致时告警
type ReconcileJob struct {
	walletRepo *repository.WalletRepository
	wallets    *service.WalletService
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewReconcileJob(db *gorm.DB, wallets *service.WalletService, cfg *config.Config) *ReconcileJob {
	interval := cfg.Business.ReconcileInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileJob{
		walletRepo: repository.NewWalletRepository(db),
		wallets:    wallets,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	zap.L().Info("[ReconcileJob] 对账任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			zap.L().Info("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcileAll(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// reconcileAll 按 id 分批遍历全部钱包，返回检查数和不一致的用户
func (j *ReconcileJob) reconcileAll(ctx context.Context) (int, []int64) {
	var (
		checked    int
		mismatched []int64
		afterID    int64
	)
	for {
		wallets, err := j.walletRepo.ListAfterID(ctx, afterID, j.batchSize)
		if err != nil {
			zap.L().Error("[ReconcileJob] 查询钱包失败", zap.Error(err))
			break
		}
		if len(wallets) == 0 {
			break
		}

		for _, w := range wallets {
			afterID = w.ID
			report, err := j.wallets.Reconcile(ctx, w.UserID)
			if err != nil {
				zap.L().Error("[ReconcileJob] 对账失败", zap.Int64("user_id", w.UserID), zap.Error(err))
				continue
			}
			checked++
			if !report.Consistent {
				mismatched = append(mismatched, w.UserID)
				zap.L().Error("[ReconcileJob] 余额与流水不一致",
					zap.Int64("user_id", w.UserID),
					zap.String("balance", report.Balance.StringFixed(2)),
					zap.String("ledger_sum", report.LedgerSum.StringFixed(2)),
					zap.Bool("chain_valid", report.ChainValid),
				)
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	zap.L().Info("[ReconcileJob] 本轮对账完成", zap.Int("checked", checked), zap.Int("mismatched", len(mismatched)))
	return checked, mismatched
}
