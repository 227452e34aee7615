package service

import (
	"context"
	"sync"
	"testing"

	"gamemarket/internal/model"
	"gamemarket/internal/testutil"
	"gamemarket/pkg/bizerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 充值、下单、支付、重复支付依次执行
func TestRechargeOrderPayFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.recharge(t, 1, "100.00")
	entries := f.ledger(t, 1)
	require.Len(t, entries, 1)
	testutil.AssertAmount(t, "100.00", entries[0].BalanceAfter)

	order, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		UserID:        1,
		GameID:        5,
		Amount:        testutil.Dec("49.99"),
		PaymentMethod: model.PaymentMethodWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)

	_, err = f.orders.PayOrder(ctx, order.ID, model.PaymentMethodWallet)
	require.NoError(t, err)
	assert.Equal(t, "50.01", f.balance(t, 1))

	status, err := f.orders.GetOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, status)

	var consumes []*model.WalletTransaction
	require.NoError(t, f.db.Where("related_order_id = ? AND type = ?", order.ID, model.TransactionTypeConsume).Find(&consumes).Error)
	require.Len(t, consumes, 1)
	testutil.AssertAmount(t, "49.99", consumes[0].Amount)

	_, err = f.orders.PayOrder(ctx, order.ID, model.PaymentMethodWallet)
	assert.ErrorIs(t, err, bizerr.ErrOrderStatusInvalid)
	assert.Equal(t, "50.01", f.balance(t, 1))
}

func TestTwoConcurrentConsumesOneWins(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, 1, "100.00")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.wallets.Consume(context.Background(), 1, testutil.Dec("60.00"), "", nil)
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if assert.ErrorIs(t, err, bizerr.ErrInsufficientBalance) {
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, "40.00", f.balance(t, 1))
}

func TestTransferBetweenFundedWallets(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, 1, "50.00")
	f.recharge(t, 2, "10.00")

	transferNo, err := f.wallets.Transfer(context.Background(), 1, 2, testutil.Dec("30.00"), "")
	require.NoError(t, err)
	assert.Equal(t, "20.00", f.balance(t, 1))
	assert.Equal(t, "40.00", f.balance(t, 2))

	pair, err := f.wallets.GetTransfer(context.Background(), transferNo)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, model.TransactionTypeTransferOut, pair[0].Type)
	assert.Equal(t, model.TransactionTypeTransferIn, pair[1].Type)

	for _, userID := range []int64{1, 2} {
		report, err := f.wallets.Reconcile(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, report.Consistent)
	}
}
