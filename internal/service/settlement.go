package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamemarket/internal/config"
	"gamemarket/internal/model"
	"gamemarket/internal/repository"
	"gamemarket/pkg/bizerr"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// settlement 结算事务
//
// 涉及订单、钱包、流水中任意两种数据的操作都在同一个数据库事务里完成：
//  1. 按固定顺序加锁：先订单行，再按 user_id 升序锁钱包行
//  2. 校验状态
//  3. 修改数据、追加流水、写本地消息
//  4. 提交
//
// 任何一步返回错误整个事务回滚，不会出现"扣了款订单没变"或"只转出没转入"。
type settlement struct {
	db         *gorm.DB
	timeout    time.Duration
	outboxRepo *repository.OutboxRepository
	publish    bool
	topics     config.KafkaTopicConfig
}

func newSettlement(db *gorm.DB, cfg *config.Config) *settlement {
	return &settlement{
		db:         db,
		timeout:    cfg.Business.TxTimeout,
		outboxRepo: repository.NewOutboxRepository(db),
		publish:    cfg.Kafka.Enabled,
		topics:     cfg.Kafka.Topic,
	}
}

// run 在一个事务里执行 fn，超时或出错时整体回滚
func (s *settlement) run(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
	return bizerr.System("数据库事务失败", err)
}

type orderEvent struct {
	Event         string          `json:"event"`
	OrderID       int64           `json:"order_id"`
	OrderNo       string          `json:"order_no"`
	UserID        int64           `json:"user_id"`
	GameID        int64           `json:"game_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type walletEvent struct {
	Event              string          `json:"event"`
	UserID             int64           `json:"user_id"`
	CounterpartyUserID int64           `json:"counterparty_user_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	BalanceAfter       decimal.Decimal `json:"balance_after"`
	BizNo              string          `json:"biz_no"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

func (s *settlement) orderEvent(ctx context.Context, tx *gorm.DB, event string, order *model.Order, reason string) error {
	return s.write(ctx, tx, s.topics.OrderEvent, event, order.OrderNo, orderEvent{
		Event:         event,
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		GameID:        order.GameID,
		Amount:        order.FinalPrice,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Reason:        reason,
		OccurredAt:    time.Now(),
	})
}

func (s *settlement) walletEvent(ctx context.Context, tx *gorm.DB, event string, entry *model.WalletTransaction) error {
	payload := walletEvent{
		Event:        event,
		UserID:       entry.UserID,
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		BizNo:        entry.BizNo,
		OccurredAt:   time.Now(),
	}
	if entry.CounterpartyUserID != nil {
		payload.CounterpartyUserID = *entry.CounterpartyUserID
	}
	return s.write(ctx, tx, s.topics.WalletEvent, event, entry.BizNo, payload)
}

func (s *settlement) write(ctx context.Context, tx *gorm.DB, topic, event, key string, payload interface{}) error {
	if !s.publish {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  event,
		Payload:    datatypes.JSON(data),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
