package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamemarket/internal/infrastructure/lock"
	"gamemarket/internal/model"
	"gamemarket/internal/repository"
	"gamemarket/pkg/bizerr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefundOrder 退款，只有已支付订单可以退款
//
// 钱包支付的订单按买家本人的扣款流水退回钱包并写一条 REFUND 流水，
// 该流水须与订单号和实付金额一致；
// 其它支付方式只推进订单状态，由外部渠道原路退回。
func (s *OrderService) RefundOrder(ctx context.Context, orderID int64, reason string) error {
	if orderID <= 0 {
		return bizerr.Params("订单ID不合法: %d", orderID)
	}
	if reason == "" {
		reason = defaultRefundReason
	}

	err := s.guard.Do(ctx, lock.OrderKey(orderID), func() error {
		return s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
			order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
			if err != nil {
				return orderError(err)
			}
			if order.Status != model.OrderStatusPaid {
				return bizerr.ErrOrderStatusInvalid.WithMessage("订单状态不允许退款，当前状态: %s", order.Status)
			}

			if order.PaidByWallet() {
				paidEntry, err := s.transactionRepo.GetByOrderID(ctx, tx, order.ID, order.UserID, model.TransactionTypeConsume)
				if err != nil {
					if errors.Is(err, repository.ErrTransactionNotFound) {
						return fmt.Errorf("订单 %s 缺少扣款流水", order.OrderNo)
					}
					return err
				}
				if paidEntry.BizNo != order.OrderNo || !paidEntry.Amount.Equal(order.FinalPrice) {
					return fmt.Errorf("订单 %s 扣款流水 %s 与订单不符", order.OrderNo, paidEntry.TransactionNo)
				}
				desc := fmt.Sprintf("订单退款-%s", order.OrderNo)
				if _, err := s.wallets.refund(ctx, tx, order.UserID, paidEntry.Amount, desc, order.ID, order.OrderNo); err != nil {
					return err
				}
			}

			now := time.Now()
			err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid, model.OrderStatusRefunded,
				map[string]interface{}{
					"refund_reason": reason,
					"refund_time":   now,
				})
			if err != nil {
				return orderError(err)
			}
			order.Status = model.OrderStatusRefunded
			order.RefundReason = reason
			order.RefundTime = &now

			return s.settle.orderEvent(ctx, tx, model.EventOrderRefunded, order, reason)
		})
	})
	if err != nil {
		return bizerr.System("退款失败", err)
	}

	zap.L().Info("退款成功", zap.Int64("order_id", orderID), zap.String("reason", reason))
	return nil
}
