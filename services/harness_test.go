package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// recordingNotifier counts effects and forwards them to the real dispatcher.
type recordingNotifier struct {
	inner Notifier

	mu       sync.Mutex
	notified map[uint]int
	cleared  map[uint]int
}

func newRecordingNotifier(inner Notifier) *recordingNotifier {
	return &recordingNotifier{
		inner:    inner,
		notified: make(map[uint]int),
		cleared:  make(map[uint]int),
	}
}

func (n *recordingNotifier) NotifyCustomer(ctx context.Context, order *models.Order, payment *models.Payment) error {
	n.mu.Lock()
	n.notified[order.ID]++
	n.mu.Unlock()
	return n.inner.NotifyCustomer(ctx, order, payment)
}

func (n *recordingNotifier) ClearCart(ctx context.Context, order *models.Order) error {
	n.mu.Lock()
	n.cleared[order.ID]++
	n.mu.Unlock()
	return n.inner.ClearCart(ctx, order)
}

func (n *recordingNotifier) Notified(orderID uint) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notified[orderID]
}

func (n *recordingNotifier) Cleared(orderID uint) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cleared[orderID]
}

type harness struct {
	payments *store.PaymentStore
	orders   *store.OrderStore
	carts    *store.CartStore
	events   *store.WebhookEventStore

	gateway  *gateway.Fake
	notifier *recordingNotifier

	reconciler  *Reconciler
	checkout    *CheckoutService
	webhooks    *WebhookIngress
	coordinator *Coordinator
	sweeper     *Sweeper
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	policy reconcile.Policy
	poll   PollConfig
	secret string
}

func withPolicy(p reconcile.Policy) harnessOption {
	return func(c *harnessConfig) { c.policy = p }
}

func withPoll(p PollConfig) harnessOption {
	return func(c *harnessConfig) { c.poll = p }
}

func withSecret(secret string) harnessOption {
	return func(c *harnessConfig) { c.secret = secret }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		poll: PollConfig{Interval: time.Millisecond, MaxAttempts: 120, CallTimeout: time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := storetest.NewDB(t)
	h := &harness{
		payments: store.NewPaymentStore(db),
		orders:   store.NewOrderStore(db),
		carts:    store.NewCartStore(db),
		events:   store.NewWebhookEventStore(db),
		gateway:  gateway.NewFake(),
	}
	h.notifier = newRecordingNotifier(NewEffectDispatcher(nil, h.carts))
	h.reconciler = NewReconciler(h.payments, h.orders, h.gateway, reconcile.NewEngine(cfg.policy), h.notifier)
	h.checkout = NewCheckoutService(h.payments, h.orders, h.gateway, "INR")
	h.webhooks = NewWebhookIngress(h.reconciler, h.payments, h.events, cfg.secret)
	h.coordinator = NewCoordinator(h.reconciler, cfg.poll)
	h.sweeper = NewSweeper(h.reconciler, h.payments, 4, time.Second)
	return h
}

func (h *harness) newOrder(t *testing.T, number, amount string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   number,
		CustomerName:  "Asha",
		CustomerPhone: "+91-" + number,
		CustomerEmail: "asha@example.com",
		TotalAmount:   decimal.RequireFromString(amount),
		Status:        models.OrderStatusPending,
		PaymentStatus: models.OrderPaymentPending,
	}
	require.NoError(t, h.orders.Create(context.Background(), order))
	require.NoError(t, h.carts.Add(context.Background(), &models.CartItem{CustomerPhone: order.CustomerPhone, ProductID: 1, Quantity: 2}))
	return order
}

// checkedOut creates an order and its pending payment.
func (h *harness) checkedOut(t *testing.T, number, amount string) (*models.Order, *models.Payment) {
	t.Helper()
	order := h.newOrder(t, number, amount)
	res, err := h.checkout.Initiate(context.Background(), order.ID)
	require.NoError(t, err)
	return order, res.Payment
}

func (h *harness) reload(t *testing.T, order *models.Order, payment *models.Payment) (*models.Order, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	o, err := h.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	p, err := h.payments.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	return o, p
}

func (h *harness) cartSize(t *testing.T, order *models.Order) int64 {
	t.Helper()
	n, err := h.carts.CountByPhone(context.Background(), order.CustomerPhone)
	require.NoError(t, err)
	return n
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
