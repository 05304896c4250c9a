// Package reconcile decides how a gateway-reported state changes local
// payment and order state. Decide is pure: it performs no I/O and is the
// single authority for both the webhook and the polling paths.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
)

// ErrNoDecision is returned when the gateway could not be consulted.
// Local state must stay untouched and the caller retries.
var ErrNoDecision = errors.New("no reconciliation decision")

type Effect string

const (
	EffectMarkOrderConfirmed Effect = "mark_order_confirmed"
	EffectClearCart          Effect = "clear_cart"
	EffectNotifyCustomer     Effect = "notify_customer"
)

// Decision is the output of applying one gateway observation to local state.
type Decision struct {
	NextPaymentStatus      models.PaymentStatus
	NextOrderStatus        *models.OrderStatus
	NextOrderPaymentStatus *models.OrderPaymentStatus
	Effects                []Effect

	AmountMismatch bool
	NeedsReview    bool
	Reason         string
}

// Changed reports whether the decision moves the payment off from.
func (d Decision) Changed(from models.PaymentStatus) bool {
	return d.NextPaymentStatus != from
}

// Has reports whether e is among the decision's effects.
func (d Decision) Has(e Effect) bool {
	for _, effect := range d.Effects {
		if effect == e {
			return true
		}
	}
	return false
}

// Local is the state Decide reads.
type Local struct {
	Payment models.Payment
	Order   models.Order
}

// Policy holds the tunable parts of the decision table.
type Policy struct {
	// HoldOnAmountMismatch keeps a payment pending (flagged for review)
	// when the gateway reports a paid amount different from the local one.
	HoldOnAmountMismatch bool
}

type Engine struct {
	Policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{Policy: policy}
}

// Decide maps (gateway observation, local state) to a Decision.
func (e *Engine) Decide(result gateway.LookupResult, local Local) (Decision, error) {
	current := local.Payment.Status
	noop := Decision{NextPaymentStatus: current}

	switch result.Kind {
	case gateway.LookupTransient:
		return Decision{}, fmt.Errorf("%w: %v", ErrNoDecision, result.Err)
	case gateway.LookupNotFound:
		if !current.IsTerminal() {
			return Decision{NextPaymentStatus: models.PaymentStatusExpired, Reason: "gateway order not found"}, nil
		}
		return noop, nil
	}

	state := result.Order.State
	if state.Kind == gateway.StateRefunded {
		return e.decideRefund(local), nil
	}

	// Once completed, no gateway input produces effects again.
	if current == models.PaymentStatusCompleted {
		return noop, nil
	}

	if current.IsTerminal() {
		if state.Kind == gateway.StatePaid {
			noop.NeedsReview = true
			noop.Reason = fmt.Sprintf("gateway reports paid for %s payment", current)
		}
		return noop, nil
	}

	switch state.Kind {
	case gateway.StatePaid:
		return e.decidePaid(result.Order, local), nil
	case gateway.StateExpired:
		return Decision{NextPaymentStatus: models.PaymentStatusExpired}, nil
	case gateway.StateRejected:
		return Decision{NextPaymentStatus: models.PaymentStatusFailed}, nil
	case gateway.StateCreated, gateway.StatePending:
		return noop, nil
	}

	noop.Reason = "unrecognised gateway state " + state.String()
	return noop, nil
}

func (e *Engine) decidePaid(observed gateway.Order, local Local) Decision {
	d := Decision{NextPaymentStatus: models.PaymentStatusCompleted}

	if !observed.Amount.IsZero() && !observed.Amount.Equal(local.Payment.Amount) {
		d.AmountMismatch = true
		d.NeedsReview = true
		d.Reason = fmt.Sprintf("gateway amount %s differs from local amount %s",
			observed.Amount.StringFixed(2), local.Payment.Amount.StringFixed(2))
		if e.Policy.HoldOnAmountMismatch {
			d.NextPaymentStatus = models.PaymentStatusPending
			return d
		}
	}

	paid := models.OrderPaymentPaid
	d.NextOrderPaymentStatus = &paid

	switch {
	case local.Order.Status == models.OrderStatusPending:
		confirmed := models.OrderStatusConfirmed
		d.NextOrderStatus = &confirmed
		d.Effects = []Effect{EffectMarkOrderConfirmed, EffectClearCart, EffectNotifyCustomer}
	case local.Order.Status.IsPaidCompatible():
		d.Effects = []Effect{EffectClearCart, EffectNotifyCustomer}
	default:
		// Captured money for a cancelled order: record it, leave the order alone.
		d.NextOrderPaymentStatus = nil
		d.NeedsReview = true
		d.Reason = joinReason(d.Reason, fmt.Sprintf("payment captured for %s order", local.Order.Status))
	}
	return d
}

func (e *Engine) decideRefund(local Local) Decision {
	if local.Payment.Status != models.PaymentStatusCompleted {
		return Decision{NextPaymentStatus: local.Payment.Status}
	}
	refunded := models.OrderPaymentRefunded
	return Decision{
		NextPaymentStatus:      models.PaymentStatusRefunded,
		NextOrderPaymentStatus: &refunded,
	}
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
