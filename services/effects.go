package services

import (
	"context"
	"fmt"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
)

// Notifier performs the side effects of a completed payment. Implementations
// are called after the state change is committed; errors are logged only.
type Notifier interface {
	NotifyCustomer(ctx context.Context, order *models.Order, payment *models.Payment) error
	ClearCart(ctx context.Context, order *models.Order) error
}

// EffectDispatcher sends the confirmation email and clears the customer's cart.
type EffectDispatcher struct {
	Mailer *utils.Mailer
	Carts  *store.CartStore
}

func NewEffectDispatcher(mailer *utils.Mailer, carts *store.CartStore) *EffectDispatcher {
	return &EffectDispatcher{Mailer: mailer, Carts: carts}
}

func (d *EffectDispatcher) NotifyCustomer(ctx context.Context, order *models.Order, payment *models.Payment) error {
	if d.Mailer == nil || order.CustomerEmail == "" {
		utils.LogDebug("Skipping confirmation email for order %s", order.OrderNumber)
		return nil
	}
	subject := fmt.Sprintf("Payment received for order %s", order.OrderNumber)
	amount := payment.Amount.StringFixed(2)
	if payment.Currency != "" {
		amount = payment.Currency + " " + amount
	}
	body := utils.PaymentConfirmationBody(order.CustomerName, order.OrderNumber, amount)
	return d.Mailer.Send(order.CustomerEmail, subject, body)
}

func (d *EffectDispatcher) ClearCart(ctx context.Context, order *models.Order) error {
	if d.Carts == nil || order.CustomerPhone == "" {
		return nil
	}
	removed, err := d.Carts.ClearByPhone(ctx, order.CustomerPhone)
	if err != nil {
		return err
	}
	utils.LogInfo("Cleared %d cart items for order %s", removed, order.OrderNumber)
	return nil
}
