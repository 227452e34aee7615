package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gamemarket/internal/model"
	"gamemarket/internal/testutil"
	"gamemarket/pkg/bizerr"
	"gamemarket/pkg/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	before := time.Now()
	order := f.createOrder(t, 1, "100", "10", model.PaymentMethodWallet)

	assert.Positive(t, order.ID)
	assert.True(t, strings.HasPrefix(order.OrderNo, idgen.PrefixOrder))
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)
	testutil.AssertAmount(t, "100", order.OriginalPrice)
	testutil.AssertAmount(t, "10", order.DiscountAmount)
	testutil.AssertAmount(t, "90", order.FinalPrice)
	assert.WithinDuration(t, before.Add(30*time.Minute), order.ExpiredAt, 5*time.Second)

	status, err := f.orders.GetOrderStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, status)

	byNo, err := f.orders.GetOrderByNo(context.Background(), order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byNo.ID)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"bad user", CreateOrderRequest{UserID: 0, GameID: 1, Amount: testutil.Dec("10"), PaymentMethod: "wallet"}},
		{"bad game", CreateOrderRequest{UserID: 1, GameID: 0, Amount: testutil.Dec("10"), PaymentMethod: "wallet"}},
		{"zero amount", CreateOrderRequest{UserID: 1, GameID: 1, Amount: testutil.Dec("0"), PaymentMethod: "wallet"}},
		{"negative discount", CreateOrderRequest{UserID: 1, GameID: 1, Amount: testutil.Dec("10"), DiscountAmount: testutil.Dec("-1"), PaymentMethod: "wallet"}},
		{"discount equals amount", CreateOrderRequest{UserID: 1, GameID: 1, Amount: testutil.Dec("10"), DiscountAmount: testutil.Dec("10"), PaymentMethod: "wallet"}},
		{"empty method", CreateOrderRequest{UserID: 1, GameID: 1, Amount: testutil.Dec("10")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.orders.CreateOrder(context.Background(), &req)
			assert.ErrorIs(t, err, bizerr.ErrParams)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPayOrderWithWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "100", "10", model.PaymentMethodWallet)

	paid, err := f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentMethodWallet, paid.PaymentMethod)
	require.NotNil(t, paid.PaymentTime)

	assert.Equal(t, "10.00", f.balance(t, 1))

	entries := f.ledger(t, 1)
	require.Len(t, entries, 2)
	consume := entries[1]
	assert.Equal(t, model.TransactionTypeConsume, consume.Type)
	testutil.AssertAmount(t, "90", consume.Amount)
	assert.Equal(t, order.OrderNo, consume.BizNo)
	require.NotNil(t, consume.RelatedOrderID)
	assert.Equal(t, order.ID, *consume.RelatedOrderID)

	stored, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaymentTime)

	events := f.outbox(t, model.EventOrderPaid)
	require.Len(t, events, 1)
	assert.Equal(t, order.OrderNo, events[0].MessageKey)
	assert.Equal(t, "game-order-event", events[0].Topic)
}

func TestPayOrderInsufficientBalanceRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "50")
	order := f.createOrder(t, 1, "100", "0", model.PaymentMethodWallet)

	_, err := f.orders.PayOrder(ctx, order.ID, model.PaymentMethodWallet)
	assert.ErrorIs(t, err, bizerr.ErrInsufficientBalance)

	status, err := f.orders.GetOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, status)
	assert.Equal(t, "50.00", f.balance(t, 1))
	assert.Len(t, f.ledger(t, 1), 1)
	assert.Empty(t, f.outbox(t, model.EventOrderPaid))
}

func TestPayOrderExternalMethod(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 3, "60", "0", model.PaymentMethodWallet)

	paid, err := f.orders.PayOrder(context.Background(), order.ID, model.PaymentMethodAlipay)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentMethodAlipay, paid.PaymentMethod)
	assert.Empty(t, f.ledger(t, 3))
}

func TestConcurrentPayChargesOnce(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "40", "0", model.PaymentMethodWallet)

	const workers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		invalid int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.PayOrder(context.Background(), order.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, bizerr.ErrOrderStatusInvalid):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, invalid)
	assert.Equal(t, "60.00", f.balance(t, 1))
	assert.Len(t, f.ledger(t, 1), 2)
}

func TestPayOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.PayOrder(context.Background(), 9999, "")
	assert.ErrorIs(t, err, bizerr.ErrOrderNotFound)

	_, err = f.orders.GetOrderStatus(context.Background(), 9999)
	assert.ErrorIs(t, err, bizerr.ErrOrderNotFound)

	_, err = f.orders.PayOrder(context.Background(), 0, "")
	assert.ErrorIs(t, err, bizerr.ErrParams)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "30", "0", model.PaymentMethodWallet)

	require.NoError(t, f.orders.CancelOrder(ctx, order.ID, ""))

	stored, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, defaultCancelReason, stored.CancelReason)
	assert.Len(t, f.outbox(t, model.EventOrderCancelled), 1)

	assert.ErrorIs(t, f.orders.CancelOrder(ctx, order.ID, "再次取消"), bizerr.ErrOrderStatusInvalid)

	_, err = f.orders.PayOrder(ctx, order.ID, "")
	assert.ErrorIs(t, err, bizerr.ErrOrderStatusInvalid)
	assert.Equal(t, "100.00", f.balance(t, 1))
}

func TestCancelPaidOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "30", "0", model.PaymentMethodWallet)
	_, err := f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)

	err = f.orders.CancelOrder(ctx, order.ID, "")
	assert.ErrorIs(t, err, bizerr.ErrOrderStatusInvalid)
	assert.Equal(t, bizerr.KindState, bizerr.KindOf(err))
}

func TestRefundOrderCreditsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "80", "5.5", model.PaymentMethodWallet)
	_, err := f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "25.50", f.balance(t, 1))

	require.NoError(t, f.orders.RefundOrder(ctx, order.ID, "不想玩了"))

	stored, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, stored.Status)
	assert.Equal(t, "不想玩了", stored.RefundReason)
	assert.NotNil(t, stored.RefundTime)
	assert.Equal(t, "100.00", f.balance(t, 1))

	entries := f.ledger(t, 1)
	require.Len(t, entries, 3)
	refund := entries[2]
	assert.Equal(t, model.TransactionTypeRefund, refund.Type)
	testutil.AssertAmount(t, "74.5", refund.Amount)
	require.NotNil(t, refund.RelatedOrderID)
	assert.Equal(t, order.ID, *refund.RelatedOrderID)

	assert.ErrorIs(t, f.orders.RefundOrder(ctx, order.ID, ""), bizerr.ErrOrderStatusInvalid)
	assert.Len(t, f.outbox(t, model.EventOrderRefunded), 1)

	report, err := f.wallets.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestRefundCreditsBuyerPaymentOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	f.recharge(t, 2, "100")
	order := f.createOrder(t, 1, "49.99", "0", model.PaymentMethodWallet)

	_, err := f.wallets.Consume(ctx, 2, testutil.Dec("1.00"), "", &order.ID)
	require.Error(t, err)

	_, err = f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.orders.RefundOrder(ctx, order.ID, ""))

	assert.Equal(t, "100.00", f.balance(t, 1))
	assert.Equal(t, "100.00", f.balance(t, 2))

	var linked int64
	require.NoError(t, f.db.Model(&model.WalletTransaction{}).
		Where("related_order_id = ? AND type = ?", order.ID, model.TransactionTypeConsume).
		Count(&linked).Error)
	assert.EqualValues(t, 1, linked)

	entries := f.ledger(t, 1)
	require.Len(t, entries, 3)
	testutil.AssertAmount(t, "49.99", entries[2].Amount)
	assert.Equal(t, order.OrderNo, entries[2].BizNo)
}

func TestRefundRequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1, "10", "0", model.PaymentMethodWallet)

	err := f.orders.RefundOrder(context.Background(), order.ID, "")
	assert.ErrorIs(t, err, bizerr.ErrOrderStatusInvalid)
}

func TestRefundToFrozenWalletIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recharge(t, 1, "100")
	order := f.createOrder(t, 1, "40", "0", model.PaymentMethodWallet)
	_, err := f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.wallets.FreezeWallet(ctx, 1))

	err = f.orders.RefundOrder(ctx, order.ID, "")
	assert.ErrorIs(t, err, bizerr.ErrWalletFrozen)

	status, err := f.orders.GetOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, status)
	assert.Equal(t, "60.00", f.balance(t, 1))
}

func TestRefundExternalPaymentLeavesWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 5, "40", "0", model.PaymentMethodWechat)
	_, err := f.orders.PayOrder(ctx, order.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.orders.RefundOrder(ctx, order.ID, ""))
	assert.Empty(t, f.ledger(t, 5))
}

func TestCloseExpiredOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expired := f.createOrder(t, 1, "10", "0", model.PaymentMethodWallet)
	fresh := f.createOrder(t, 1, "20", "0", model.PaymentMethodWallet)

	require.NoError(t, f.db.Model(&model.Order{}).
		Where("id = ?", expired.ID).
		Update("expired_at", time.Now().Add(-time.Minute)).Error)

	closed, err := f.orders.CloseExpiredOrders(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stored, err := f.orders.GetOrder(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, timeoutCancelReason, stored.CancelReason)

	status, err := f.orders.GetOrderStatus(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, status)

	closed, err = f.orders.CloseExpiredOrders(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestListUserOrders(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createOrder(t, 1, "10", "0", model.PaymentMethodWallet)
	}
	f.createOrder(t, 2, "10", "0", model.PaymentMethodWallet)

	orders, total, err := f.orders.ListUserOrders(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orders, 2)
	assert.Greater(t, orders[0].ID, orders[1].ID)

	_, _, err = f.orders.ListUserOrders(context.Background(), 0, 1, 10)
	assert.ErrorIs(t, err, bizerr.ErrParams)
}
