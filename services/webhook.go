package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type IngestStatus string

const (
	IngestHandled IngestStatus = "handled"
	IngestIgnored IngestStatus = "ignored"
)

// IngestResult reports what a webhook delivery did. Outcome is nil for
// ignored events.
type IngestResult struct {
	Status  IngestStatus
	Outcome *Outcome
}

// WebhookIngress turns gateway webhook deliveries into reconciliation input.
type WebhookIngress struct {
	reconciler *Reconciler
	payments   *store.PaymentStore
	events     *store.WebhookEventStore
	secret     string
}

func NewWebhookIngress(reconciler *Reconciler, payments *store.PaymentStore, events *store.WebhookEventStore, secret string) *WebhookIngress {
	return &WebhookIngress{
		reconciler: reconciler,
		payments:   payments,
		events:     events,
		secret:     secret,
	}
}

// Receive verifies and parses a raw delivery, then ingests it. The
// signature is only checked when a webhook secret is configured.
func (w *WebhookIngress) Receive(ctx context.Context, body []byte, signature string) (IngestResult, error) {
	if w.secret != "" && !gateway.VerifySignature(body, signature, w.secret) {
		w.audit(ctx, gateway.Event{Type: "unverified", Raw: body}, models.WebhookEventRejected, ErrInvalidSignature.Error())
		return IngestResult{}, ErrInvalidSignature
	}

	event, err := gateway.ParseEvent(body)
	if err != nil {
		w.audit(ctx, gateway.Event{Type: "malformed", Raw: body}, models.WebhookEventRejected, err.Error())
		return IngestResult{}, &ValidationError{Reason: err.Error()}
	}
	return w.Ingest(ctx, event)
}

// Ingest applies one parsed event. Unknown event types are acknowledged and
// dropped; an event for a payment that is already settled is a successful
// no-op.
func (w *WebhookIngress) Ingest(ctx context.Context, event gateway.Event) (IngestResult, error) {
	record, err := w.record(ctx, event)
	if err != nil {
		return IngestResult{}, err
	}

	result, err := w.ingest(ctx, event)
	switch {
	case err == nil && result.Status == IngestIgnored:
		w.mark(ctx, record, models.WebhookEventIgnored, "")
	case err == nil:
		w.mark(ctx, record, models.WebhookEventHandled, "")
	case isValidation(err):
		w.mark(ctx, record, models.WebhookEventRejected, err.Error())
	default:
		w.mark(ctx, record, models.WebhookEventFailed, err.Error())
	}
	return result, err
}

func (w *WebhookIngress) ingest(ctx context.Context, event gateway.Event) (IngestResult, error) {
	var (
		target Target
		state  gateway.State
	)

	switch {
	case event.Type == gateway.EventOrderStatusChanged:
		if event.GatewayOrderID == "" {
			return IngestResult{}, invalid("data.id", "is required")
		}
		if event.State == "" {
			return IngestResult{}, invalid("data.state", "is required")
		}
		target = ByGatewayOrderID(event.GatewayOrderID)
		state = gateway.ParseState(event.State)

	case event.IsChargeLevel():
		payment, err := w.resolveCharge(ctx, event)
		if err != nil {
			return IngestResult{}, err
		}
		target = ByPaymentID(payment.ID)
		state = chargeState(event.Type)

	default:
		utils.LogInfo("Ignoring webhook event %s (%s)", event.ID, event.Type)
		return IngestResult{Status: IngestIgnored}, nil
	}

	observed := gateway.Observed(state, event.Amount, event.Raw).WithCharge(event.ChargeID)
	outcome, err := w.reconciler.Apply(ctx, target, observed)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Status: IngestHandled, Outcome: &outcome}, nil
}

// resolveCharge finds the payment a charge-level event belongs to. The
// charge id is authoritative; the gateway order id is the fallback for the
// first event of a charge, after which the charge id is remembered.
func (w *WebhookIngress) resolveCharge(ctx context.Context, event gateway.Event) (*models.Payment, error) {
	if event.ChargeID == "" && event.GatewayOrderID == "" {
		return nil, invalid("data.id", "does not identify a charge")
	}

	if event.ChargeID != "" {
		payment, err := w.payments.FindByTransactionID(ctx, event.ChargeID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if event.GatewayOrderID == "" {
		return nil, fmt.Errorf("charge %s: %w", event.ChargeID, store.ErrNotFound)
	}

	payment, err := w.payments.FindByGatewayOrderID(ctx, event.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("gateway order %s: %w", event.GatewayOrderID, err)
	}
	if event.ChargeID != "" && payment.TransactionID == nil {
		if err := w.payments.AttachTransactionID(ctx, payment.ID, event.ChargeID); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

func chargeState(eventType string) gateway.State {
	switch eventType {
	case gateway.EventChargeSucceeded:
		return gateway.NewState(gateway.StatePaid)
	case gateway.EventChargeFailed:
		return gateway.NewState(gateway.StateRejected)
	}
	return gateway.NewState(gateway.StateRefunded)
}

func (w *WebhookIngress) record(ctx context.Context, event gateway.Event) (*models.WebhookEvent, error) {
	if w.events == nil {
		return nil, nil
	}
	eventID := event.ID
	if eventID == "" {
		// Deliveries without an id still get a traceable audit row.
		eventID = "local_" + uuid.NewString()
	}
	record := &models.WebhookEvent{
		EventID:        eventID,
		Type:           event.Type,
		GatewayOrderID: event.GatewayOrderID,
		Status:         models.WebhookEventReceived,
	}
	if json.Valid(event.Raw) {
		record.Payload = datatypes.JSON(event.Raw)
	}
	if err := w.events.Record(ctx, record); err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	return record, nil
}

func (w *WebhookIngress) mark(ctx context.Context, record *models.WebhookEvent, status models.WebhookEventStatus, errMsg string) {
	if record == nil {
		return
	}
	if err := w.events.MarkStatus(ctx, record.ID, status, errMsg); err != nil {
		utils.LogWarn("Failed to update webhook event %d: %v", record.ID, err)
	}
}

func (w *WebhookIngress) audit(ctx context.Context, event gateway.Event, status models.WebhookEventStatus, errMsg string) {
	record, err := w.record(ctx, event)
	if err != nil {
		utils.LogWarn("Failed to audit rejected webhook: %v", err)
		return
	}
	w.mark(ctx, record, status, errMsg)
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
