// Package services runs the reconciliation cycle behind the HTTP API:
// checkout, webhook ingress, interactive polling and the batch sweep all go
// through Reconciler so there is one place where gateway state becomes
// local state.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/sirupsen/logrus"
)

const maxConflictRetries = 3

// Target identifies the payment to reconcile, by row id or gateway order id.
type Target struct {
	PaymentID      uint
	GatewayOrderID string
}

func ByPaymentID(id uint) Target {
	return Target{PaymentID: id}
}

func ByGatewayOrderID(id string) Target {
	return Target{GatewayOrderID: id}
}

func (t Target) String() string {
	if t.PaymentID != 0 {
		return fmt.Sprintf("payment %d", t.PaymentID)
	}
	return "gateway order " + t.GatewayOrderID
}

// OutcomeKind is what a customer is told about a payment.
type OutcomeKind string

const (
	OutcomePaid     OutcomeKind = "paid"
	OutcomePending  OutcomeKind = "pending"
	OutcomeExpired  OutcomeKind = "expired"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeRefunded OutcomeKind = "refunded"
)

// Outcome is the state of a payment after one reconciliation cycle.
type Outcome struct {
	Kind OutcomeKind
	// Transitioned is true only for the cycle whose write moved the payment.
	Transitioned bool
	Payment      *models.Payment
	Order        *models.Order
	Decision     reconcile.Decision
}

// Terminal reports whether polling can stop.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomePending
}

func outcomeKind(status models.PaymentStatus) OutcomeKind {
	switch status {
	case models.PaymentStatusCompleted:
		return OutcomePaid
	case models.PaymentStatusExpired:
		return OutcomeExpired
	case models.PaymentStatusFailed:
		return OutcomeRejected
	case models.PaymentStatusRefunded:
		return OutcomeRefunded
	}
	return OutcomePending
}

// Reconciler applies gateway observations to stored payments.
type Reconciler struct {
	payments *store.PaymentStore
	orders   *store.OrderStore
	gateway  gateway.Client
	engine   *reconcile.Engine
	notifier Notifier
}

func NewReconciler(payments *store.PaymentStore, orders *store.OrderStore, gw gateway.Client, engine *reconcile.Engine, notifier Notifier) *Reconciler {
	return &Reconciler{
		payments: payments,
		orders:   orders,
		gateway:  gw,
		engine:   engine,
		notifier: notifier,
	}
}

// Find loads the payment a target refers to.
func (r *Reconciler) Find(ctx context.Context, target Target) (*models.Payment, error) {
	var (
		payment *models.Payment
		err     error
	)
	if target.PaymentID != 0 {
		payment, err = r.payments.FindByID(ctx, target.PaymentID)
	} else {
		payment, err = r.payments.FindByGatewayOrderID(ctx, target.GatewayOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", target, err)
	}
	return payment, nil
}

func (r *Reconciler) load(ctx context.Context, target Target) (*models.Payment, *models.Order, error) {
	payment, err := r.Find(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	order, err := r.orders.FindByID(ctx, payment.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		utils.LogError("Payment %d references missing order %d", payment.ID, payment.OrderID)
		return nil, nil, fmt.Errorf("%w: payment %d references missing order %d", ErrDataIntegrity, payment.ID, payment.OrderID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load order %d: %w", payment.OrderID, err)
	}
	return payment, order, nil
}

// Current reports the stored state of the target without asking the gateway.
func (r *Reconciler) Current(ctx context.Context, target Target) (Outcome, error) {
	payment, order, err := r.load(ctx, target)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: outcomeKind(payment.Status), Payment: payment, Order: order}, nil
}

// Lookup asks the gateway about one payment, bounded by timeout when set.
func (r *Reconciler) Lookup(ctx context.Context, payment *models.Payment, timeout time.Duration) gateway.LookupResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.gateway.Get(ctx, payment.GatewayOrderID)
}

// Sync asks the gateway about the target's payment and applies the answer.
func (r *Reconciler) Sync(ctx context.Context, target Target) (Outcome, error) {
	payment, err := r.Find(ctx, target)
	if err != nil {
		return Outcome{}, err
	}
	result := r.Lookup(ctx, payment, 0)
	return r.Apply(ctx, ByPaymentID(payment.ID), result)
}

// Apply runs decide-then-persist for one observation. A lost
// compare-and-swap re-reads local state and decides again, so effects only
// fire for the cycle that actually moved the payment.
func (r *Reconciler) Apply(ctx context.Context, target Target, result gateway.LookupResult) (Outcome, error) {
	if result.Kind == gateway.LookupTransient {
		return Outcome{}, fmt.Errorf("reconcile %s: %w", target, result.Err)
	}

	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		payment, order, err := r.load(ctx, target)
		if err != nil {
			return Outcome{}, err
		}
		if attempt == 1 {
			r.rememberCharge(ctx, payment, result.Order.ChargeID)
		}

		decision, err := r.engine.Decide(result, reconcile.Local{Payment: *payment, Order: *order})
		if err != nil {
			return Outcome{}, err
		}

		if !decision.Changed(payment.Status) {
			r.recordUnchanged(ctx, payment, decision, result.Order.Raw)
			return Outcome{
				Kind:     outcomeKind(payment.Status),
				Payment:  payment,
				Order:    order,
				Decision: decision,
			}, nil
		}

		updated, err := r.payments.CompareAndSwapStatus(ctx, store.Transition{
			Payment:            payment,
			Next:               decision.NextPaymentStatus,
			OrderFrom:          order.Status,
			OrderStatus:        decision.NextOrderStatus,
			OrderPaymentStatus: decision.NextOrderPaymentStatus,
			NeedsReview:        decision.NeedsReview,
			ReviewReason:       decision.Reason,
			Raw:                result.Order.Raw,
		})
		if errors.Is(err, store.ErrConflict) {
			utils.LogDebug("Conflict reconciling payment %d (attempt %d), retrying", payment.ID, attempt)
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("persist payment %d: %w", payment.ID, err)
		}

		if order, err = r.orders.FindByID(ctx, updated.OrderID); err != nil {
			return Outcome{}, fmt.Errorf("reload order %d: %w", updated.OrderID, err)
		}

		entry := utils.Log().WithFields(logrus.Fields{
			"payment_id":       updated.ID,
			"gateway_order_id": updated.GatewayOrderID,
			"from":             payment.Status,
			"to":               updated.Status,
			"effects":          decision.Effects,
		})
		if decision.NeedsReview {
			entry.Warnf("Payment reconciled, needs review: %s", decision.Reason)
		} else {
			entry.Info("Payment reconciled")
		}

		r.dispatch(ctx, decision, order, updated)
		return Outcome{
			Kind:         outcomeKind(updated.Status),
			Transitioned: true,
			Payment:      updated,
			Order:        order,
			Decision:     decision,
		}, nil
	}
	return Outcome{}, fmt.Errorf("reconcile %s: %w after %d attempts", target, store.ErrConflict, maxConflictRetries)
}

// rememberCharge stores the gateway charge id on a payment that has none, so
// later charge and refund events can find it.
func (r *Reconciler) rememberCharge(ctx context.Context, payment *models.Payment, chargeID string) {
	if chargeID == "" || payment.TransactionID != nil {
		return
	}
	if err := r.payments.AttachTransactionID(ctx, payment.ID, chargeID); err != nil {
		utils.LogWarn("Failed to attach charge %s to payment %d: %v", chargeID, payment.ID, err)
		return
	}
	payment.TransactionID = &chargeID
}

func (r *Reconciler) recordUnchanged(ctx context.Context, payment *models.Payment, decision reconcile.Decision, raw []byte) {
	if err := r.payments.AppendGatewayResponse(ctx, payment.ID, raw); err != nil {
		utils.LogWarn("Failed to record gateway response for payment %d: %v", payment.ID, err)
	}
	if decision.NeedsReview && !payment.NeedsReview {
		utils.LogWarn("Payment %d flagged for review: %s", payment.ID, decision.Reason)
		if err := r.payments.MarkNeedsReview(ctx, payment.ID, decision.Reason); err != nil {
			utils.LogWarn("Failed to flag payment %d for review: %v", payment.ID, err)
		} else {
			payment.NeedsReview = true
			payment.ReviewReason = decision.Reason
		}
	}
}

// dispatch runs effects after commit. Failures are logged and never undo
// the state change.
func (r *Reconciler) dispatch(ctx context.Context, decision reconcile.Decision, order *models.Order, payment *models.Payment) {
	if r.notifier == nil || len(decision.Effects) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, effect := range decision.Effects {
		var err error
		switch effect {
		case reconcile.EffectClearCart:
			err = r.notifier.ClearCart(ctx, order)
		case reconcile.EffectNotifyCustomer:
			err = r.notifier.NotifyCustomer(ctx, order, payment)
		case reconcile.EffectMarkOrderConfirmed:
			// written with the payment transition
		}
		if err != nil {
			utils.LogError("Effect %s failed for order %s: %v", effect, order.OrderNumber, err)
		}
	}
}
