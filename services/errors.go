package services

import (
	"errors"
	"fmt"
)

var (
	// ErrDataIntegrity means a payment points at an order that does not exist.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrPollInProgress is returned when a payment already has an active poll.
	ErrPollInProgress = errors.New("poll already in progress for payment")
	// ErrOrderAlreadyPaid is returned when checkout is requested for a paid order.
	ErrOrderAlreadyPaid = errors.New("order already paid")
	// ErrAmountMismatch is returned when the gateway echoed a different amount.
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	// ErrInvalidSignature is returned for webhook bodies that fail verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ValidationError rejects a request that can never succeed as sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
