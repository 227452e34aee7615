package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamemarket/internal/config"
	"gamemarket/internal/handler"
	"gamemarket/internal/infrastructure/cache"
	"gamemarket/internal/infrastructure/database"
	"gamemarket/internal/infrastructure/lock"
	"gamemarket/internal/infrastructure/logger"
	"gamemarket/internal/infrastructure/mq"
	"gamemarket/internal/job"
	"gamemarket/internal/service"
	"gamemarket/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	_, syncLogger, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer syncLogger()

	if err := idgen.Init(cfg.Server.NodeID); err != nil {
		zap.L().Fatal("初始化ID生成器失败", zap.Error(err))
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		zap.L().Fatal("初始化数据库失败", zap.Error(err))
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := cache.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		zap.L().Fatal("初始化 Redis 失败", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	wallets := service.NewWalletService(db, cfg)
	orders := service.NewOrderService(db, wallets, lock.NewGuard(redisClient, cfg.Business.PayLockTTL), cfg)

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			zap.L().Fatal("初始化 Kafka 失败", zap.Error(err))
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, producer, cfg)
		go outboxSender.Start(ctx)
	}

	orderTimeoutJob := job.NewOrderTimeoutJob(orders, cfg)
	go orderTimeoutJob.Start(ctx)

	reconcileJob := job.NewReconcileJob(db, wallets, cfg)
	go reconcileJob.Start(ctx)

	router := handler.SetupRouter(wallets, orders)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zap.L().Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("服务关闭异常", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	zap.L().Info("服务已关闭")
}
