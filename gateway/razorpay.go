package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// orderAPI is the part of the razorpay order resource we call.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayClient implements Client over the razorpay orders API.
type RazorpayClient struct {
	orders      orderAPI
	timeout     time.Duration
	checkoutURL string
}

// NewRazorpayClient builds a client. timeout bounds every single gateway
// call; checkoutURL is the hosted checkout page the order id is appended to.
func NewRazorpayClient(key, secret string, timeout time.Duration, checkoutURL string) *RazorpayClient {
	client := razorpay.NewClient(key, secret)
	return newRazorpayClient(client.Order, timeout, checkoutURL)
}

func newRazorpayClient(orders orderAPI, timeout time.Duration, checkoutURL string) *RazorpayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RazorpayClient{
		orders:      orders,
		timeout:     timeout,
		checkoutURL: strings.TrimRight(checkoutURL, "/"),
	}
}

// Create opens a gateway order for spec.Amount.
func (r *RazorpayClient) Create(ctx context.Context, spec OrderSpec) (Order, error) {
	notes := make(map[string]interface{}, len(spec.Notes))
	for k, v := range spec.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          toMinorUnits(spec.Amount),
		"currency":        spec.Currency,
		"receipt":         spec.Receipt,
		"payment_capture": 1,
		"notes":           notes,
	}

	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.orders.Create(data, nil)
	})
	if err != nil {
		return Order{}, fmt.Errorf("create gateway order: %w", TransientError(err).Err)
	}

	order := r.toOrder(body)
	if order.ID == "" {
		return Order{}, fmt.Errorf("create gateway order: response without id")
	}
	return order, nil
}

// Get looks up a gateway order by id.
func (r *RazorpayClient) Get(ctx context.Context, gatewayOrderID string) LookupResult {
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.orders.Fetch(gatewayOrderID, nil, nil)
	})
	if err != nil {
		if isNotFound(err) {
			return NotFound()
		}
		return TransientError(err)
	}
	order := r.toOrder(body)
	if order.State.Kind == StatePaid {
		order.ChargeID = r.capturedCharge(ctx, gatewayOrderID)
	}
	return Found(order)
}

// capturedCharge returns the id of the captured payment on a paid order.
// A failed listing leaves the charge unknown; the order state still stands.
func (r *RazorpayClient) capturedCharge(ctx context.Context, gatewayOrderID string) string {
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.orders.Payments(gatewayOrderID, nil, nil)
	})
	if err != nil {
		return ""
	}
	items, _ := body["items"].([]interface{})
	var fallback string
	for _, item := range items {
		payment, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch stringField(payment, "status") {
		case "captured":
			return stringField(payment, "id")
		case "refunded":
			if fallback == "" {
				fallback = stringField(payment, "id")
			}
		}
	}
	return fallback
}

// call runs fn under the per-call timeout. The SDK is not context aware, so a
// timed out call is abandoned rather than interrupted.
func (r *RazorpayClient) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := fn()
		ch <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-ch:
		return res.body, res.err
	}
}

func (r *RazorpayClient) toOrder(body map[string]interface{}) Order {
	order := Order{
		ID:       stringField(body, "id"),
		State:    ParseState(stringField(body, "status")),
		Amount:   fromMinorUnits(body["amount"]),
		Currency: stringField(body, "currency"),
	}
	if order.ID != "" && r.checkoutURL != "" {
		order.CheckoutURL = r.checkoutURL + "/" + order.ID
	}
	if raw, err := json.Marshal(body); err == nil {
		order.Raw = raw
	}
	return order
}

// isNotFound recognises the gateway's "unknown order" answers. This is the
// only place error text is inspected.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "parameter_error")
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n).Shift(-2)
	case int64:
		return decimal.NewFromInt(n).Shift(-2)
	case int:
		return decimal.NewFromInt(int64(n)).Shift(-2)
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d.Shift(-2)
		}
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d.Shift(-2)
		}
	}
	return decimal.Zero
}
