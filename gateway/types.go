// Package gateway is the typed boundary over the external payment gateway.
// Untyped gateway payloads are parsed here exactly once; callers only ever
// see State and LookupResult.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnavailable marks transient gateway failures (network, timeouts, 5xx).
var ErrUnavailable = errors.New("gateway unavailable")

// StateKind enumerates the gateway order states the reconciler understands.
type StateKind int

const (
	StateUnknown StateKind = iota
	StateCreated
	StatePending
	StatePaid
	StateExpired
	StateRejected
	StateRefunded
)

var stateNames = map[StateKind]string{
	StateUnknown:  "unknown",
	StateCreated:  "created",
	StatePending:  "pending",
	StatePaid:     "paid",
	StateExpired:  "expired",
	StateRejected: "rejected",
	StateRefunded: "refunded",
}

// State is a parsed gateway state. Raw keeps the original value so an
// Unknown state can still be logged.
type State struct {
	Kind StateKind
	Raw  string
}

// ParseState maps a raw gateway status onto a State.
func ParseState(raw string) State {
	s := State{Raw: raw}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "created":
		s.Kind = StateCreated
	case "pending", "attempted":
		s.Kind = StatePending
	case "paid", "captured", "succeeded":
		s.Kind = StatePaid
	case "expired":
		s.Kind = StateExpired
	case "rejected", "failed":
		s.Kind = StateRejected
	case "refunded":
		s.Kind = StateRefunded
	default:
		s.Kind = StateUnknown
	}
	return s
}

// NewState builds a State from a known kind.
func NewState(kind StateKind) State {
	return State{Kind: kind, Raw: stateNames[kind]}
}

func (s State) String() string {
	if s.Kind == StateUnknown && s.Raw != "" {
		return "unknown(" + s.Raw + ")"
	}
	return stateNames[s.Kind]
}

// Order is the gateway's view of a checkout attempt.
type Order struct {
	ID          string
	CheckoutURL string
	State       State
	// Amount in major currency units; zero when the gateway did not report one.
	Amount   decimal.Decimal
	Currency string
	// ChargeID is the captured charge behind a paid order, when known.
	ChargeID string
	Raw      []byte
}

// OrderSpec describes a gateway order to create.
type OrderSpec struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

type LookupKind int

const (
	LookupFound LookupKind = iota
	LookupNotFound
	LookupTransient
)

// LookupResult is the outcome of asking the gateway about one order:
// Found(order), NotFound, or Transient(cause).
type LookupResult struct {
	Kind  LookupKind
	Order Order
	Err   error
}

func Found(order Order) LookupResult {
	return LookupResult{Kind: LookupFound, Order: order}
}

func NotFound() LookupResult {
	return LookupResult{Kind: LookupNotFound}
}

// TransientError wraps cause so errors.Is(err, ErrUnavailable) holds.
func TransientError(cause error) LookupResult {
	if cause == nil {
		cause = ErrUnavailable
	} else if !errors.Is(cause, ErrUnavailable) {
		cause = &transientError{cause: cause}
	}
	return LookupResult{Kind: LookupTransient, Err: cause}
}

// Observed is a Found result built from a pushed state rather than a lookup.
func Observed(state State, amount decimal.Decimal, raw []byte) LookupResult {
	return Found(Order{State: state, Amount: amount, Raw: raw})
}

// WithCharge returns r with the order's charge id set.
func (r LookupResult) WithCharge(chargeID string) LookupResult {
	r.Order.ChargeID = chargeID
	return r
}

func (r LookupResult) String() string {
	switch r.Kind {
	case LookupFound:
		return "found(" + r.Order.State.String() + ")"
	case LookupNotFound:
		return "not_found"
	}
	return "transient"
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *transientError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *transientError) Unwrap() error {
	return e.cause
}

// Client is the gateway order API.
type Client interface {
	Create(ctx context.Context, spec OrderSpec) (Order, error)
	Get(ctx context.Context, gatewayOrderID string) LookupResult
}
