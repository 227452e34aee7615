package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeRecharge    = "RECHARGE"     // 充值
	TransactionTypeConsume     = "CONSUME"      // 消费（订单扣款）
	TransactionTypeTransferIn  = "TRANSFER_IN"  // 转入
	TransactionTypeTransferOut = "TRANSFER_OUT" // 转出
	TransactionTypeRefund      = "REFUND"       // 订单退款退回钱包
)

// WalletTransaction 钱包流水表
//
// 只追加，不修改，不删除。Amount 永远是正数，方向由 Type 决定。
// 按 id 顺序回放某个用户的全部流水，结果必须等于钱包当前余额。
type WalletTransaction struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"transaction_id"`
	TransactionNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID             int64           `gorm:"index;not null" json:"user_id"`
	Type               string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceBefore      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	Description        string          `gorm:"type:varchar(256)" json:"description"`
	BizNo              string          `gorm:"type:varchar(64);index" json:"biz_no"`               // 订单号/转账单号/充值单号
	RelatedOrderID     *int64          `gorm:"index" json:"related_order_id,omitempty"`            // 关联订单
	CounterpartyUserID *int64          `json:"counterparty_user_id,omitempty"`                     // 转账对方
	ThirdPartyRef      *string         `gorm:"type:varchar(128)" json:"third_party_ref,omitempty"` // 第三方支付流水号
	Method             string          `gorm:"type:varchar(32)" json:"method,omitempty"`           // 充值渠道
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

// IsCredit 入账类型返回 true
func IsCredit(txType string) bool {
	switch txType {
	case TransactionTypeRecharge, TransactionTypeTransferIn, TransactionTypeRefund:
		return true
	}
	return false
}

// SignedAmount 带方向的金额，入账为正，出账为负
func (t *WalletTransaction) SignedAmount() decimal.Decimal {
	if IsCredit(t.Type) {
		return t.Amount
	}
	return t.Amount.Neg()
}
