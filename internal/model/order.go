package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusCancelled      = "CANCELLED"
	OrderStatusRefunded       = "REFUNDED"
)

// ValidStatusTransitions 订单状态机，未列出的流转一律非法
var ValidStatusTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	PaymentMethodWallet = "wallet"
	PaymentMethodAlipay = "alipay"
	PaymentMethodWechat = "wechat"
)

// Order 游戏购买订单
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"order_id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	GameID         int64           `gorm:"index;not null" json:"game_id"`
	OriginalPrice  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"original_price"`
	FinalPrice     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"final_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"discount_amount"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod  string          `gorm:"type:varchar(32)" json:"payment_method"`
	PaymentTime    *time.Time      `json:"payment_time,omitempty"`
	CancelReason   string          `gorm:"type:varchar(256)" json:"cancel_reason,omitempty"`
	RefundReason   string          `gorm:"type:varchar(256)" json:"refund_reason,omitempty"`
	RefundTime     *time.Time      `json:"refund_time,omitempty"`
	ExpiredAt      time.Time       `gorm:"index;not null" json:"expired_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_time"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"update_time"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) PaidByWallet() bool {
	return o.PaymentMethod == PaymentMethodWallet
}
