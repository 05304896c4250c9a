package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One failing gateway call does not stop the rest of the sweep.
func TestSweep_IsolatesItemFailures(t *testing.T) {
	h := newHarness(t)
	order1, p1 := h.checkedOut(t, "ORD-1", "149.90")
	order2, p2 := h.checkedOut(t, "ORD-2", "20.00")
	order3, p3 := h.checkedOut(t, "ORD-3", "35.50")

	h.gateway.SetState(p1.GatewayOrderID, gateway.StatePaid)
	h.gateway.Script(p2.GatewayOrderID, gateway.TransientError(errors.New("network is unreachable")))
	h.gateway.Script(p3.GatewayOrderID, gateway.NotFound())

	summary, err := h.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, summary.Items, 3)
	assert.Equal(t, SweepSynced, summary.Items[0].Result)
	assert.Equal(t, SweepError, summary.Items[1].Result)
	assert.Contains(t, summary.Items[1].Error, "network is unreachable")
	assert.Equal(t, SweepExpired, summary.Items[2].Result)

	order1, p1 = h.reload(t, order1, p1)
	assert.Equal(t, models.PaymentStatusCompleted, p1.Status)
	assert.Equal(t, models.OrderStatusConfirmed, order1.Status)

	_, p2 = h.reload(t, order2, p2)
	assert.Equal(t, models.PaymentStatusPending, p2.Status)

	order3, p3 = h.reload(t, order3, p3)
	assert.Equal(t, models.PaymentStatusExpired, p3.Status)
	assert.Equal(t, models.OrderStatusPending, order3.Status)
}

func TestSweep_UnchangedAndEmpty(t *testing.T) {
	h := newHarness(t)

	summary, err := h.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)

	h.checkedOut(t, "ORD-1", "149.90")
	summary, err = h.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unchanged)
}

// Repeated sweeps converge and stop touching settled payments.
func TestSweep_Converges(t *testing.T) {
	h := newHarness(t)
	_, p1 := h.checkedOut(t, "ORD-1", "149.90")
	_, p2 := h.checkedOut(t, "ORD-2", "20.00")
	h.gateway.SetState(p1.GatewayOrderID, gateway.StatePaid)
	h.gateway.SetState(p2.GatewayOrderID, gateway.StateRejected)

	first, err := h.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Synced)

	second, err := h.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Total)
}

func TestSweep_ScheduleRunsUntilCancelled(t *testing.T) {
	h := newHarness(t)
	_, payment := h.checkedOut(t, "ORD-1", "149.90")
	h.gateway.SetState(payment.GatewayOrderID, gateway.StatePaid)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sweeper.Schedule(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		p, err := h.payments.FindByID(context.Background(), payment.ID)
		return err == nil && p.Status == models.PaymentStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
