package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMalformedEvent is returned for webhook bodies that cannot be understood.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Canonical event types. Razorpay deliveries are normalised onto these.
const (
	EventOrderStatusChanged = "order.status.changed"
	EventChargeSucceeded    = "charge.succeeded"
	EventChargeFailed       = "charge.failed"
	EventRefundCreated      = "refund.created"
)

// Event is a webhook delivery reduced to what reconciliation needs.
type Event struct {
	ID   string
	Type string
	// ObjectID is data.id: the gateway order for order events, the charge
	// for charge events, the refund for refund events.
	ObjectID string
	// GatewayOrderID is the order the event refers to, when the payload names it.
	GatewayOrderID string
	// ChargeID correlates charge and refund events to a payment.
	ChargeID string
	State    string
	Amount   decimal.Decimal
	Metadata map[string]interface{}
	Raw      []byte
}

// IsChargeLevel reports whether the event correlates through a charge id.
func (e Event) IsChargeLevel() bool {
	switch e.Type {
	case EventChargeSucceeded, EventChargeFailed, EventRefundCreated:
		return true
	}
	return false
}

// VerifySignature checks the hex HMAC-SHA256 of body under secret.
func VerifySignature(body []byte, signature, secret string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the signature VerifySignature accepts.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type envelope struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Event   string           `json:"event"`
	Data    *eventData       `json:"data"`
	Payload *razorpayPayload `json:"payload"`
}

type eventData struct {
	ID       string                 `json:"id"`
	State    string                 `json:"state"`
	Amount   json.Number            `json:"amount"`
	OrderID  string                 `json:"order_id"`
	ChargeID string                 `json:"charge_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

type razorpayEntity struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Amount     json.Number `json:"amount"`
	AmountPaid json.Number `json:"amount_paid"`
	OrderID    string      `json:"order_id"`
	PaymentID  string      `json:"payment_id"`
}

type razorpayWrapper struct {
	Entity *razorpayEntity `json:"entity"`
}

type razorpayPayload struct {
	Order   *razorpayWrapper `json:"order"`
	Payment *razorpayWrapper `json:"payment"`
	Refund  *razorpayWrapper `json:"refund"`
}

// ParseEvent decodes either the canonical envelope
// {type, data:{id, state?, metadata?}} or a razorpay {event, payload} body.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if env.Type == "" && env.Event != "" {
		return parseRazorpay(env, body)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if env.Data == nil || env.Data.ID == "" {
		return Event{}, fmt.Errorf("%w: missing data.id", ErrMalformedEvent)
	}

	ev := Event{
		ID:       env.ID,
		Type:     env.Type,
		ObjectID: env.Data.ID,
		State:    env.Data.State,
		Amount:   fromMinorUnits(env.Data.Amount),
		Metadata: env.Data.Metadata,
		Raw:      body,
	}
	switch ev.Type {
	case EventOrderStatusChanged:
		ev.GatewayOrderID = env.Data.ID
		ev.ChargeID = env.Data.ChargeID
	case EventChargeSucceeded, EventChargeFailed:
		ev.ChargeID = env.Data.ID
		ev.GatewayOrderID = firstNonEmpty(env.Data.OrderID, metadataString(env.Data.Metadata, "gateway_order_id"))
	case EventRefundCreated:
		ev.ChargeID = env.Data.ChargeID
		ev.GatewayOrderID = firstNonEmpty(env.Data.OrderID, metadataString(env.Data.Metadata, "gateway_order_id"))
		if ev.ChargeID == "" && ev.GatewayOrderID == "" {
			return Event{}, fmt.Errorf("%w: refund without charge_id", ErrMalformedEvent)
		}
	}
	return ev, nil
}

func parseRazorpay(env envelope, body []byte) (Event, error) {
	ev := Event{ID: env.ID, Type: env.Event, Raw: body}
	p := env.Payload

	switch env.Event {
	case "order.paid":
		order := entity(p, func(p *razorpayPayload) *razorpayWrapper { return p.Order })
		if order == nil {
			return Event{}, fmt.Errorf("%w: order.paid without order entity", ErrMalformedEvent)
		}
		ev.Type = EventOrderStatusChanged
		ev.ObjectID = order.ID
		ev.GatewayOrderID = order.ID
		ev.State = firstNonEmpty(order.Status, "paid")
		ev.Amount = fromMinorUnits(firstNumber(order.AmountPaid, order.Amount))
		if payment := entity(p, func(p *razorpayPayload) *razorpayWrapper { return p.Payment }); payment != nil {
			ev.ChargeID = payment.ID
		}
	case "payment.captured", "payment.failed":
		payment := entity(p, func(p *razorpayPayload) *razorpayWrapper { return p.Payment })
		if payment == nil {
			return Event{}, fmt.Errorf("%w: %s without payment entity", ErrMalformedEvent, env.Event)
		}
		ev.Type = EventChargeSucceeded
		if env.Event == "payment.failed" {
			ev.Type = EventChargeFailed
		}
		ev.ObjectID = payment.ID
		ev.ChargeID = payment.ID
		ev.GatewayOrderID = payment.OrderID
		ev.State = payment.Status
		ev.Amount = fromMinorUnits(payment.Amount)
	case "refund.created", "refund.processed":
		refund := entity(p, func(p *razorpayPayload) *razorpayWrapper { return p.Refund })
		if refund == nil {
			return Event{}, fmt.Errorf("%w: %s without refund entity", ErrMalformedEvent, env.Event)
		}
		ev.Type = EventRefundCreated
		ev.ObjectID = refund.ID
		ev.ChargeID = refund.PaymentID
		ev.Amount = fromMinorUnits(refund.Amount)
	}
	return ev, nil
}

func entity(p *razorpayPayload, pick func(*razorpayPayload) *razorpayWrapper) *razorpayEntity {
	if p == nil {
		return nil
	}
	w := pick(p)
	if w == nil || w.Entity == nil || w.Entity.ID == "" {
		return nil
	}
	return w.Entity
}

func metadataString(md map[string]interface{}, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(values ...json.Number) json.Number {
	for _, v := range values {
		if v != "" && v != "0" {
			return v
		}
	}
	return ""
}
