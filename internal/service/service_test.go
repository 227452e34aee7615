package service

import (
	"context"
	"testing"

	"gamemarket/internal/config"
	"gamemarket/internal/model"
	"gamemarket/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	wallets *WalletService
	orders  *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Kafka.Enabled = true

	db := testutil.NewDB(t)
	wallets := NewWalletService(db, cfg)
	return &fixture{
		db:      db,
		wallets: wallets,
		orders:  NewOrderService(db, wallets, nil, cfg),
	}
}

func (f *fixture) recharge(t *testing.T, userID int64, amount string) {
	t.Helper()
	_, err := f.wallets.Recharge(context.Background(), &RechargeRequest{
		UserID: userID,
		Amount: testutil.Dec(amount),
		Method: "alipay",
	})
	require.NoError(t, err)
}

func (f *fixture) createOrder(t *testing.T, userID int64, amount, discount, method string) *model.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:         userID,
		GameID:         1001,
		Amount:         testutil.Dec(amount),
		DiscountAmount: testutil.Dec(discount),
		PaymentMethod:  method,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) ledger(t *testing.T, userID int64) []*model.WalletTransaction {
	t.Helper()
	var list []*model.WalletTransaction
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("id ASC").Find(&list).Error)
	return list
}

func (f *fixture) outbox(t *testing.T, eventType string) []*model.OutboxMessage {
	t.Helper()
	var list []*model.OutboxMessage
	require.NoError(t, f.db.Where("event_type = ?", eventType).Order("id ASC").Find(&list).Error)
	return list
}

func (f *fixture) balance(t *testing.T, userID int64) string {
	t.Helper()
	b, err := f.wallets.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b.StringFixed(2)
}
