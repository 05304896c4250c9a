package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/google/uuid"
)

// PollConfig bounds an interactive poll.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// CallTimeout bounds each gateway call, independent of the loop.
	CallTimeout time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    time.Second,
		MaxAttempts: 120,
		CallTimeout: 10 * time.Second,
	}
}

// PollResult is how a poll ended. A poll never fails because the gateway
// kept saying pending: that is Exhausted, and Cancelled when the owner gave
// up first. Err holds the last recoverable error of an attempt, if any: an
// unavailable gateway or a reconcile that kept losing update races.
type PollResult struct {
	Outcome   Outcome
	Attempts  int
	Exhausted bool
	Cancelled bool
	Err       error
}

// PollSession is one running interactive poll for one payment.
type PollSession struct {
	ID             string
	PaymentID      uint
	GatewayOrderID string

	cancel context.CancelFunc
	// oneShot sessions hold the admission for a single attempt and cannot
	// be cancelled.
	oneShot bool
	done    chan struct{}
	result  PollResult
	err     error
}

// Cancel stops the poll; Wait then reports a cancelled pending result.
func (s *PollSession) Cancel() {
	s.cancel()
}

// Done is closed when the poll loop has exited.
func (s *PollSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the poll ends or ctx is done.
func (s *PollSession) Wait(ctx context.Context) (PollResult, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return PollResult{}, ctx.Err()
	}
}

// Coordinator runs interactive polls, at most one per payment.
type Coordinator struct {
	reconciler *Reconciler
	cfg        PollConfig

	// try makes one reconciliation attempt.
	try func(ctx context.Context, payment *models.Payment) (Outcome, error)

	mu     sync.Mutex
	active map[uint]*PollSession
}

func NewCoordinator(reconciler *Reconciler, cfg PollConfig) *Coordinator {
	def := DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	c := &Coordinator{
		reconciler: reconciler,
		cfg:        cfg,
		active:     make(map[uint]*PollSession),
	}
	c.try = c.attempt
	return c
}

// Start begins polling the payment behind gatewayOrderID. The loop stops
// when ctx is done, on Cancel, on a terminal outcome or after MaxAttempts.
func (c *Coordinator) Start(ctx context.Context, gatewayOrderID string) (*PollSession, error) {
	if gatewayOrderID == "" {
		return nil, invalid("gateway_order_id", "is required")
	}
	payment, err := c.reconciler.Find(ctx, ByGatewayOrderID(gatewayOrderID))
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	session := &PollSession{
		ID:             uuid.New().String(),
		PaymentID:      payment.ID,
		GatewayOrderID: payment.GatewayOrderID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	if err := c.admit(session); err != nil {
		cancel()
		return nil, err
	}

	utils.LogInfo("Poll %s started for payment %d", session.ID, payment.ID)
	go c.run(pollCtx, session, payment)
	return session, nil
}

// VerifyOnce makes a single reconciliation attempt, under the same
// one-poll-per-payment rule as Start.
func (c *Coordinator) VerifyOnce(ctx context.Context, gatewayOrderID string) (PollResult, error) {
	if gatewayOrderID == "" {
		return PollResult{}, invalid("gateway_order_id", "is required")
	}
	payment, err := c.reconciler.Find(ctx, ByGatewayOrderID(gatewayOrderID))
	if err != nil {
		return PollResult{}, err
	}

	session := &PollSession{
		ID:             uuid.New().String(),
		PaymentID:      payment.ID,
		GatewayOrderID: payment.GatewayOrderID,
		cancel:         func() {},
		oneShot:        true,
		done:           make(chan struct{}),
	}
	if err := c.admit(session); err != nil {
		return PollResult{}, err
	}
	defer c.release(session)

	current, err := c.reconciler.Current(ctx, ByPaymentID(payment.ID))
	if err != nil {
		return PollResult{}, err
	}
	if current.Terminal() {
		return PollResult{Outcome: current}, nil
	}

	outcome, err := c.try(ctx, current.Payment)
	if recoverable(err) {
		return PollResult{Outcome: current, Attempts: 1, Err: err}, nil
	}
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Outcome: outcome, Attempts: 1}, nil
}

// Cancel stops the active poll for gatewayOrderID and reports whether
// there was one. A VerifyOnce in flight is not a poll and is left alone.
func (c *Coordinator) Cancel(gatewayOrderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range c.active {
		if session.GatewayOrderID == gatewayOrderID && !session.oneShot {
			session.Cancel()
			return true
		}
	}
	return false
}

// Active reports whether a poll is running for gatewayOrderID.
func (c *Coordinator) Active(gatewayOrderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range c.active {
		if session.GatewayOrderID == gatewayOrderID {
			return true
		}
	}
	return false
}

func (c *Coordinator) admit(session *PollSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[session.PaymentID]; busy {
		return fmt.Errorf("payment %d: %w", session.PaymentID, ErrPollInProgress)
	}
	c.active[session.PaymentID] = session
	return nil
}

func (c *Coordinator) release(session *PollSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[session.PaymentID] == session {
		delete(c.active, session.PaymentID)
	}
}

// recoverable reports whether a failed attempt leaves the poll running.
func recoverable(err error) bool {
	return errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, store.ErrConflict)
}

func (c *Coordinator) attempt(ctx context.Context, payment *models.Payment) (Outcome, error) {
	result := c.reconciler.Lookup(ctx, payment, c.cfg.CallTimeout)
	return c.reconciler.Apply(ctx, ByPaymentID(payment.ID), result)
}

func (c *Coordinator) run(ctx context.Context, session *PollSession, payment *models.Payment) {
	defer close(session.done)
	defer c.release(session)
	defer session.cancel()

	result, err := c.loop(ctx, payment)
	session.result, session.err = result, err

	switch {
	case err != nil:
		utils.LogError("Poll %s for payment %d failed: %v", session.ID, payment.ID, err)
	case result.Cancelled:
		utils.LogInfo("Poll %s for payment %d cancelled after %d attempts", session.ID, payment.ID, result.Attempts)
	case result.Exhausted:
		utils.LogWarn("Poll %s for payment %d still pending after %d attempts", session.ID, payment.ID, result.Attempts)
	default:
		utils.LogInfo("Poll %s for payment %d ended %s after %d attempts", session.ID, payment.ID, result.Outcome.Kind, result.Attempts)
	}
}

func (c *Coordinator) loop(ctx context.Context, payment *models.Payment) (PollResult, error) {
	var result PollResult

	current, err := c.reconciler.Current(ctx, ByPaymentID(payment.ID))
	if err != nil {
		return result, err
	}
	result.Outcome = current
	if current.Terminal() {
		return result, nil
	}

	for {
		result.Attempts++
		outcome, err := c.try(ctx, current.Payment)
		if err == nil {
			result.Outcome = outcome
			result.Err = nil
			if outcome.Terminal() {
				return result, nil
			}
		}
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		switch {
		case err == nil:
		case recoverable(err):
			utils.LogDebug("Attempt %d for payment %d failed, polling on: %v", result.Attempts, payment.ID, err)
			result.Err = err
		default:
			return result, err
		}

		if result.Attempts >= c.cfg.MaxAttempts {
			result.Exhausted = true
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.Cancelled = true
			return result, nil
		case <-time.After(c.cfg.Interval):
		}
	}
}
