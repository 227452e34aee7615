package service

import (
	"context"
	"fmt"
	"time"

	"gamemarket/internal/infrastructure/lock"
	"gamemarket/internal/model"
	"gamemarket/pkg/bizerr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PayOrder 支付订单
//
// 钱包支付时扣款、记流水、订单变为已支付在同一个事务内完成；
// 其它支付方式由外部渠道收款，这里只推进订单状态。
// paymentMethod 为空时沿用下单时的支付方式。
func (s *OrderService) PayOrder(ctx context.Context, orderID int64, paymentMethod string) (*model.Order, error) {
	if orderID <= 0 {
		return nil, bizerr.Params("订单ID不合法: %d", orderID)
	}

	var paid *model.Order
	err := s.guard.Do(ctx, lock.OrderKey(orderID), func() error {
		return s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
			// 先锁订单，再锁钱包
			order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
			if err != nil {
				return orderError(err)
			}
			if order.Status != model.OrderStatusPendingPayment {
				return bizerr.ErrOrderStatusInvalid.WithMessage("订单状态不允许支付，当前状态: %s", order.Status)
			}

			method := paymentMethod
			if method == "" {
				method = order.PaymentMethod
			}

			if method == model.PaymentMethodWallet {
				desc := fmt.Sprintf("订单支付-%s", order.OrderNo)
				if _, _, err := s.wallets.consume(ctx, tx, order.UserID, order.FinalPrice, desc, &order.ID, order.OrderNo); err != nil {
					return err
				}
			}

			now := time.Now()
			err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPendingPayment, model.OrderStatusPaid,
				map[string]interface{}{
					"payment_method": method,
					"payment_time":   now,
				})
			if err != nil {
				return orderError(err)
			}
			order.Status = model.OrderStatusPaid
			order.PaymentMethod = method
			order.PaymentTime = &now

			if err := s.settle.orderEvent(ctx, tx, model.EventOrderPaid, order, ""); err != nil {
				return err
			}
			paid = order
			return nil
		})
	})
	if err != nil {
		return nil, bizerr.System("支付失败", err)
	}

	zap.L().Info("支付成功",
		zap.Int64("order_id", paid.ID),
		zap.String("order_no", paid.OrderNo),
		zap.Int64("user_id", paid.UserID),
		zap.String("amount", paid.FinalPrice.StringFixed(2)),
		zap.String("payment_method", paid.PaymentMethod),
	)
	return paid, nil
}
