package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"gorm.io/datatypes"
)

// CheckoutResult is the payment a customer should pay through.
type CheckoutResult struct {
	Payment *models.Payment
	Reused  bool
}

// CheckoutService opens gateway orders for local orders, at most one
// pending payment per order.
type CheckoutService struct {
	payments *store.PaymentStore
	orders   *store.OrderStore
	gateway  gateway.Client
	currency string
	locks    keyedLocker
}

func NewCheckoutService(payments *store.PaymentStore, orders *store.OrderStore, gw gateway.Client, currency string) *CheckoutService {
	if currency == "" {
		currency = "INR"
	}
	return &CheckoutService{
		payments: payments,
		orders:   orders,
		gateway:  gw,
		currency: currency,
	}
}

// Initiate returns the order's pending payment, creating the gateway order
// the first time.
func (s *CheckoutService) Initiate(ctx context.Context, orderID uint) (CheckoutResult, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.PaymentStatus == models.OrderPaymentPaid || order.PaymentStatus == models.OrderPaymentRefunded {
		return CheckoutResult{}, fmt.Errorf("order %s: %w", order.OrderNumber, ErrOrderAlreadyPaid)
	}
	if order.Status == models.OrderStatusCancelled {
		return CheckoutResult{}, invalid("order_id", "refers to a cancelled order")
	}
	if !order.TotalAmount.IsPositive() {
		return CheckoutResult{}, invalid("order_id", "refers to an order with no amount due")
	}

	existing, err := s.payments.FindPendingByOrderID(ctx, order.ID)
	if err == nil {
		utils.LogInfo("Reusing pending payment %d for order %s", existing.ID, order.OrderNumber)
		return CheckoutResult{Payment: existing, Reused: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return CheckoutResult{}, err
	}

	gwOrder, err := s.gateway.Create(ctx, gateway.OrderSpec{
		Amount:   order.TotalAmount,
		Currency: s.currency,
		Receipt:  order.OrderNumber,
		Notes: map[string]string{
			"order_id":     strconv.FormatUint(uint64(order.ID), 10),
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create gateway order for %s: %w", order.OrderNumber, err)
	}
	if !gwOrder.Amount.IsZero() && !gwOrder.Amount.Equal(order.TotalAmount) {
		utils.LogError("Gateway order %s amount %s does not match order %s total %s",
			gwOrder.ID, gwOrder.Amount.StringFixed(2), order.OrderNumber, order.TotalAmount.StringFixed(2))
		return CheckoutResult{}, fmt.Errorf("gateway order %s: %w", gwOrder.ID, ErrAmountMismatch)
	}

	payment := &models.Payment{
		OrderID:         order.ID,
		Gateway:         utils.GatewayName,
		GatewayOrderID:  gwOrder.ID,
		Amount:          order.TotalAmount,
		Currency:        s.currency,
		Status:          models.PaymentStatusPending,
		CheckoutURL:     gwOrder.CheckoutURL,
		GatewayResponse: datatypes.JSON(gwOrder.Raw),
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Another process won the insert; its payment is the one to use.
			if existing, findErr := s.payments.FindPendingByOrderID(ctx, order.ID); findErr == nil {
				utils.LogWarn("Discarding gateway order %s, order %s already has payment %d", gwOrder.ID, order.OrderNumber, existing.ID)
				return CheckoutResult{Payment: existing, Reused: true}, nil
			}
		}
		return CheckoutResult{}, fmt.Errorf("store payment for %s: %w", order.OrderNumber, err)
	}

	utils.LogInfo("Created payment %d (gateway order %s) for order %s", payment.ID, payment.GatewayOrderID, order.OrderNumber)
	return CheckoutResult{Payment: payment}, nil
}

// keyedLocker hands out one mutex per key and forgets it once unused.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[uint]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedLocker) Lock(key uint) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
