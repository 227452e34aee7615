package service

import (
	"context"
	"errors"
	"time"

	"gamemarket/internal/config"
	"gamemarket/internal/infrastructure/lock"
	"gamemarket/internal/model"
	"gamemarket/internal/repository"
	"gamemarket/pkg/bizerr"
	"gamemarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	orderNoRetries      = 3
	defaultCancelReason = "用户取消"
	timeoutCancelReason = "支付超时"
	defaultRefundReason = "用户申请退款"
	defaultExpireBatch  = 100
)

type OrderService struct {
	db              *gorm.DB
	cfg             *config.Config
	orderRepo       *repository.OrderRepository
	transactionRepo *repository.TransactionRepository
	wallets         *WalletService
	guard           *lock.Guard
	settle          *settlement
}

// NewOrderService guard 为 nil 时只依赖数据库行锁
func NewOrderService(db *gorm.DB, wallets *WalletService, guard *lock.Guard, cfg *config.Config) *OrderService {
	return &OrderService{
		db:              db,
		cfg:             cfg,
		orderRepo:       repository.NewOrderRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		wallets:         wallets,
		guard:           guard,
		settle:          newSettlement(db, cfg),
	}
}

type CreateOrderRequest struct {
	UserID         int64           `json:"user_id" binding:"required"`
	GameID         int64           `json:"game_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
}

func (r *CreateOrderRequest) validate() error {
	if r.UserID <= 0 {
		return bizerr.Params("用户ID不合法: %d", r.UserID)
	}
	if r.GameID <= 0 {
		return bizerr.Params("游戏ID不合法: %d", r.GameID)
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if r.DiscountAmount.IsNegative() {
		return bizerr.Params("优惠金额不能为负数")
	}
	if !r.DiscountAmount.Equal(r.DiscountAmount.Round(2)) {
		return bizerr.Params("优惠金额最多保留两位小数")
	}
	if r.DiscountAmount.GreaterThanOrEqual(r.Amount) {
		return bizerr.Params("优惠金额必须小于订单金额")
	}
	if r.PaymentMethod == "" {
		return bizerr.Params("支付方式不能为空")
	}
	return nil
}

// orderError 把仓储层错误转换为业务错误
func orderError(err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return bizerr.ErrOrderNotFound
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		return bizerr.ErrOrderStatusInvalid
	}
	return err
}

// CreateOrder 创建待支付订单，订单号冲突时换号重试
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		order *model.Order
		err   error
	)
	for attempt := 0; attempt < orderNoRetries; attempt++ {
		now := time.Now()
		order = &model.Order{
			OrderNo:        idgen.GenerateOrderNo(),
			UserID:         req.UserID,
			GameID:         req.GameID,
			OriginalPrice:  req.Amount,
			DiscountAmount: req.DiscountAmount,
			FinalPrice:     req.Amount.Sub(req.DiscountAmount),
			Status:         model.OrderStatusPendingPayment,
			PaymentMethod:  req.PaymentMethod,
			ExpiredAt:      now.Add(s.cfg.Business.OrderTimeout()),
		}
		err = s.orderRepo.Create(ctx, nil, order)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		zap.L().Warn("订单号冲突，重新生成", zap.String("order_no", order.OrderNo), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, bizerr.System("创建订单失败", err)
	}

	zap.L().Info("订单创建成功",
		zap.Int64("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.Int64("user_id", order.UserID),
		zap.String("final_price", order.FinalPrice.StringFixed(2)),
	)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	if orderID <= 0 {
		return nil, bizerr.Params("订单ID不合法: %d", orderID)
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, bizerr.System("查询订单失败", orderError(err))
	}
	return order, nil
}

func (s *OrderService) GetOrderByNo(ctx context.Context, orderNo string) (*model.Order, error) {
	if orderNo == "" {
		return nil, bizerr.Params("订单号不能为空")
	}
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, bizerr.System("查询订单失败", orderError(err))
	}
	return order, nil
}

func (s *OrderService) GetOrderStatus(ctx context.Context, orderID int64) (string, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	if err := validateUserID(userID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)

	orders, total, err := s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, bizerr.System("查询订单列表失败", err)
	}
	return orders, total, nil
}

// CancelOrder 取消待支付订单，其它状态一律拒绝
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) error {
	if orderID <= 0 {
		return bizerr.Params("订单ID不合法: %d", orderID)
	}
	if reason == "" {
		reason = defaultCancelReason
	}

	err := s.guard.Do(ctx, lock.OrderKey(orderID), func() error {
		return s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
			order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
			if err != nil {
				return orderError(err)
			}
			if order.Status != model.OrderStatusPendingPayment {
				return bizerr.ErrOrderStatusInvalid.WithMessage("订单状态不允许取消，当前状态: %s", order.Status)
			}

			err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPendingPayment, model.OrderStatusCancelled,
				map[string]interface{}{"cancel_reason": reason})
			if err != nil {
				return orderError(err)
			}
			order.Status = model.OrderStatusCancelled
			order.CancelReason = reason

			return s.settle.orderEvent(ctx, tx, model.EventOrderCancelled, order, reason)
		})
	})
	if err != nil {
		return bizerr.System("取消订单失败", err)
	}

	zap.L().Info("订单已取消", zap.Int64("order_id", orderID), zap.String("reason", reason))
	return nil
}

// CloseExpiredOrders 关闭超时未支付的订单，返回成功关闭的数量
//
// 扫描与关闭之间订单可能已被支付，这类订单跳过即可。
func (s *OrderService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpireBatch
	}

	orders, err := s.orderRepo.GetExpiredOrders(ctx, time.Now(), limit)
	if err != nil {
		return 0, bizerr.System("查询超时订单失败", err)
	}

	closed := 0
	for _, order := range orders {
		if err := s.CancelOrder(ctx, order.ID, timeoutCancelReason); err != nil {
			if errors.Is(err, bizerr.ErrOrderStatusInvalid) {
				zap.L().Debug("订单状态已变化，跳过", zap.Int64("order_id", order.ID))
				continue
			}
			zap.L().Error("关闭超时订单失败", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}
