package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Fake is a scripted in-memory gateway for tests and local runs.
type Fake struct {
	mu          sync.Mutex
	seq         int
	orders      map[string]Order
	scripts     map[string][]LookupResult
	getCalls    map[string]int
	createCalls int

	// CreateErr, when set, is returned by every Create call.
	CreateErr error

	// EchoAmount, when set, replaces the amount Create echoes back.
	EchoAmount func(spec OrderSpec) decimal.Decimal

	CheckoutURL string
}

func NewFake() *Fake {
	return &Fake{
		orders:      make(map[string]Order),
		scripts:     make(map[string][]LookupResult),
		getCalls:    make(map[string]int),
		CheckoutURL: "https://checkout.test/pay",
	}
}

func (f *Fake) Create(ctx context.Context, spec OrderSpec) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.CreateErr != nil {
		return Order{}, f.CreateErr
	}
	f.seq++
	id := fmt.Sprintf("order_fake_%d", f.seq)
	order := Order{
		ID:          id,
		CheckoutURL: f.CheckoutURL + "/" + id,
		State:       NewState(StateCreated),
		Amount:      spec.Amount,
		Currency:    spec.Currency,
		Raw:         []byte(fmt.Sprintf(`{"id":%q,"status":"created"}`, id)),
	}
	if f.EchoAmount != nil {
		order.Amount = f.EchoAmount(spec)
	}
	f.orders[id] = order
	return order, nil
}

// Get pops the next scripted result for id. The last scripted result
// repeats; without a script the stored order (or NotFound) is returned.
func (f *Fake) Get(ctx context.Context, gatewayOrderID string) LookupResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls[gatewayOrderID]++
	if err := ctx.Err(); err != nil {
		return TransientError(err)
	}
	if script := f.scripts[gatewayOrderID]; len(script) > 0 {
		next := script[0]
		if len(script) > 1 {
			f.scripts[gatewayOrderID] = script[1:]
		}
		return next
	}
	if order, ok := f.orders[gatewayOrderID]; ok {
		return Found(order)
	}
	return NotFound()
}

// Put stores or replaces a gateway order.
func (f *Fake) Put(order Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
}

// SetState moves a stored order to kind.
func (f *Fake) SetState(gatewayOrderID string, kind StateKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := f.orders[gatewayOrderID]
	order.ID = gatewayOrderID
	order.State = NewState(kind)
	f.orders[gatewayOrderID] = order
}

// Capture marks a stored order paid by chargeID.
func (f *Fake) Capture(gatewayOrderID, chargeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := f.orders[gatewayOrderID]
	order.ID = gatewayOrderID
	order.State = NewState(StatePaid)
	order.ChargeID = chargeID
	f.orders[gatewayOrderID] = order
}

// Script queues results returned by Get for gatewayOrderID.
func (f *Fake) Script(gatewayOrderID string, results ...LookupResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[gatewayOrderID] = append(f.scripts[gatewayOrderID], results...)
}

func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *Fake) GetCalls(gatewayOrderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[gatewayOrderID]
}
