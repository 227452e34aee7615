package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WalletStatusActive = "ACTIVE"
	WalletStatusFrozen = "FROZEN"
)

// Wallet 用户钱包表，一个用户一个钱包
//
// balance 只能在持有该行排他锁的事务中修改，且永远不小于 0。
type Wallet struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"wallet_id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Status    string          `gorm:"type:varchar(16);not null;default:ACTIVE" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
