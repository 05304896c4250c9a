package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paid() gateway.LookupResult {
	return gateway.Observed(gateway.NewState(gateway.StatePaid), decimal.Zero, []byte(`{"status":"paid"}`))
}

func TestReconciler_PaidCompletesPaymentAndOrder(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")

	outcome, err := h.reconciler.Apply(context.Background(), ByPaymentID(payment.ID), paid())
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome.Kind)
	assert.True(t, outcome.Transitioned)

	order, payment = h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.OrderPaymentPaid, order.PaymentStatus)
	assert.Equal(t, 1, h.notifier.Notified(order.ID))
	assert.Equal(t, int64(0), h.cartSize(t, order))
}

func TestReconciler_ReplayIsNoop(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")
	ctx := context.Background()

	_, err := h.reconciler.Apply(ctx, ByPaymentID(payment.ID), paid())
	require.NoError(t, err)
	_, first := h.reload(t, order, payment)

	for i := 0; i < 5; i++ {
		outcome, err := h.reconciler.Apply(ctx, ByGatewayOrderID(payment.GatewayOrderID), paid())
		require.NoError(t, err)
		assert.False(t, outcome.Transitioned)
		assert.Equal(t, OutcomePaid, outcome.Kind)
		assert.Empty(t, outcome.Decision.Effects)
	}

	_, after := h.reload(t, order, payment)
	assert.Equal(t, first.Version, after.Version)
	assert.Equal(t, 1, h.notifier.Notified(order.ID))
	assert.Equal(t, 1, h.notifier.Cleared(order.ID))
}

func TestReconciler_TransientLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")

	_, err := h.reconciler.Apply(context.Background(), ByPaymentID(payment.ID), gateway.TransientError(errors.New("dial tcp: i/o timeout")))
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	_, reloaded := h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusPending, reloaded.Status)
	assert.Equal(t, payment.Version, reloaded.Version)
}

func TestReconciler_MissingOrderIsDataIntegrityError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	orphan := &models.Payment{
		OrderID:        9999,
		Gateway:        "razorpay",
		GatewayOrderID: "order_orphan",
		Amount:         decimal.RequireFromString("10.00"),
		Status:         models.PaymentStatusPending,
	}
	require.NoError(t, h.payments.Create(ctx, orphan))

	_, err := h.reconciler.Apply(ctx, ByPaymentID(orphan.ID), paid())
	assert.ErrorIs(t, err, ErrDataIntegrity)

	reloaded, err := h.payments.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, reloaded.Status)
}

func TestReconciler_UnknownPaymentIsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconciler.Apply(context.Background(), ByGatewayOrderID("order_nope"), paid())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconciler_RefundAfterCompletion(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")
	ctx := context.Background()

	_, err := h.reconciler.Apply(ctx, ByPaymentID(payment.ID), paid())
	require.NoError(t, err)

	refund := gateway.Observed(gateway.NewState(gateway.StateRefunded), decimal.Zero, nil)
	outcome, err := h.reconciler.Apply(ctx, ByPaymentID(payment.ID), refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, outcome.Kind)

	order, payment = h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, models.OrderPaymentRefunded, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
}

func TestReconciler_AmountMismatchHeldForReview(t *testing.T) {
	h := newHarness(t, withPolicy(reconcile.Policy{HoldOnAmountMismatch: true}))
	order, payment := h.checkedOut(t, "ORD-1", "149.90")

	short := gateway.Observed(gateway.NewState(gateway.StatePaid), decimal.RequireFromString("100.00"), nil)
	outcome, err := h.reconciler.Apply(context.Background(), ByPaymentID(payment.ID), short)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome.Kind)
	assert.True(t, outcome.Decision.AmountMismatch)

	order, payment = h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.True(t, payment.NeedsReview)
	assert.NotEmpty(t, payment.ReviewReason)
	assert.Equal(t, models.OrderPaymentPending, order.PaymentStatus)
	assert.Zero(t, h.notifier.Notified(order.ID))
}

func TestReconciler_AmountMismatchToleratedByDefault(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")

	short := gateway.Observed(gateway.NewState(gateway.StatePaid), decimal.RequireFromString("100.00"), nil)
	outcome, err := h.reconciler.Apply(context.Background(), ByPaymentID(payment.ID), short)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome.Kind)

	_, payment = h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.NeedsReview)
}

// Webhook and poll paths racing on the same paid fact produce one set of effects.
func TestReconciler_ConcurrentDeliveriesFireEffectsOnce(t *testing.T) {
	h := newHarness(t)
	order, payment := h.checkedOut(t, "ORD-1", "149.90")
	h.gateway.SetState(payment.GatewayOrderID, gateway.StatePaid)
	ctx := context.Background()

	var wg sync.WaitGroup
	transitions := make(chan bool, 20)
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := h.webhooks.Ingest(ctx, gateway.Event{
				Type:           gateway.EventOrderStatusChanged,
				ObjectID:       payment.GatewayOrderID,
				GatewayOrderID: payment.GatewayOrderID,
				State:          "paid",
			})
			if err != nil {
				errs <- err
				return
			}
			transitions <- res.Outcome.Transitioned
		}()
		go func() {
			defer wg.Done()
			outcome, err := h.reconciler.Sync(ctx, ByGatewayOrderID(payment.GatewayOrderID))
			if err != nil {
				errs <- err
				return
			}
			transitions <- outcome.Transitioned
		}()
	}
	wg.Wait()
	close(transitions)
	close(errs)

	// only lost races may fail a delivery
	for err := range errs {
		assert.ErrorIs(t, err, store.ErrConflict)
	}

	moved := 0
	for transitioned := range transitions {
		if transitioned {
			moved++
		}
	}
	assert.Equal(t, 1, moved)
	assert.Equal(t, 1, h.notifier.Notified(order.ID))
	assert.Equal(t, 1, h.notifier.Cleared(order.ID))

	_, payment = h.reload(t, order, payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
}
