package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_CreatesPendingPayment(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder(t, "ORD-1", "149.90")

	res, err := h.checkout.Initiate(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, res.Reused)

	p := res.Payment
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(order.TotalAmount))
	assert.Equal(t, "INR", p.Currency)
	assert.NotEmpty(t, p.GatewayOrderID)
	assert.Contains(t, p.CheckoutURL, p.GatewayOrderID)
	assert.Equal(t, 1, h.gateway.CreateCalls())
}

func TestCheckout_ReusesPendingPayment(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder(t, "ORD-1", "149.90")
	ctx := context.Background()

	first, err := h.checkout.Initiate(ctx, order.ID)
	require.NoError(t, err)
	second, err := h.checkout.Initiate(ctx, order.ID)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.CheckoutURL, second.Payment.CheckoutURL)
	assert.Equal(t, 1, h.gateway.CreateCalls())
}

func TestCheckout_ConcurrentRequestsCreateOneGatewayOrder(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder(t, "ORD-1", "149.90")
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan uint, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.checkout.Initiate(ctx, order.ID)
			if err == nil {
				ids <- res.Payment.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, h.gateway.CreateCalls())

	all, err := h.payments.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCheckout_RefusesPaidOrder(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")
	ctx := context.Background()

	_, err := h.reconciler.Apply(ctx, ByPaymentID(payment.ID), paid())
	require.NoError(t, err)

	_, err = h.checkout.Initiate(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)
	assert.Equal(t, 1, h.gateway.CreateCalls())
}

func TestCheckout_NewAttemptAfterExpiry(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")
	ctx := context.Background()

	_, err := h.reconciler.Apply(ctx, ByPaymentID(payment.ID), gateway.NotFound())
	require.NoError(t, err)

	res, err := h.checkout.Initiate(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.NotEqual(t, payment.ID, res.Payment.ID)
	assert.NotEqual(t, payment.GatewayOrderID, res.Payment.GatewayOrderID)
}

func TestCheckout_GatewayAmountMismatch(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder(t, "ORD-1", "149.90")
	h.gateway.EchoAmount = func(spec gateway.OrderSpec) decimal.Decimal {
		return spec.Amount.Sub(decimal.NewFromInt(1))
	}

	_, err := h.checkout.Initiate(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = h.payments.FindPendingByOrderID(context.Background(), order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckout_GatewayDown(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder(t, "ORD-1", "149.90")
	h.gateway.CreateErr = gateway.ErrUnavailable

	_, err := h.checkout.Initiate(context.Background(), order.ID)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCheckout_RejectsCancelledAndMissingOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.Initiate(ctx, 4242)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cancelled := &models.Order{
		OrderNumber:   "ORD-X",
		TotalAmount:   decimal.RequireFromString("10.00"),
		Status:        models.OrderStatusCancelled,
		PaymentStatus: models.OrderPaymentPending,
	}
	require.NoError(t, h.orders.Create(ctx, cancelled))

	_, err = h.checkout.Initiate(ctx, cancelled.ID)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestKeyedLocker_SerializesPerKey(t *testing.T) {
	var (
		locks   keyedLocker
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locks.locks)
}
