package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type SweepItemResult string

const (
	SweepSynced    SweepItemResult = "synced"
	SweepExpired   SweepItemResult = "expired"
	SweepUnchanged SweepItemResult = "unchanged"
	SweepSkipped   SweepItemResult = "skipped"
	SweepError     SweepItemResult = "error"
)

// SweepItem is the result for one pending payment.
type SweepItem struct {
	PaymentID      uint                 `json:"payment_id"`
	GatewayOrderID string               `json:"gateway_order_id"`
	Result         SweepItemResult      `json:"result"`
	From           models.PaymentStatus `json:"from"`
	To             models.PaymentStatus `json:"to,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type SweepSummary struct {
	Total     int           `json:"total"`
	Synced    int           `json:"synced"`
	Expired   int           `json:"expired"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Items     []SweepItem   `json:"items"`
	Duration  time.Duration `json:"duration"`
}

// Sweeper reconciles every pending payment against the gateway.
type Sweeper struct {
	reconciler  *Reconciler
	payments    *store.PaymentStore
	concurrency int
	callTimeout time.Duration

	running sync.Mutex
}

func NewSweeper(reconciler *Reconciler, payments *store.PaymentStore, concurrency int, callTimeout time.Duration) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{
		reconciler:  reconciler,
		payments:    payments,
		concurrency: concurrency,
		callTimeout: callTimeout,
	}
}

// Run sweeps once. A failing item is recorded in the summary and never
// stops the others; the error return is only for failing to list work.
func (s *Sweeper) Run(ctx context.Context) (SweepSummary, error) {
	s.running.Lock()
	defer s.running.Unlock()

	start := time.Now()
	pending, err := s.payments.ListPending(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list pending payments: %w", err)
	}

	items := make([]SweepItem, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range pending {
		i := i
		g.Go(func() error {
			items[i] = s.sweepOne(gctx, &pending[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := SweepSummary{Total: len(items), Items: items}
	for _, item := range items {
		switch item.Result {
		case SweepSynced:
			summary.Synced++
		case SweepExpired:
			summary.Expired++
		case SweepUnchanged:
			summary.Unchanged++
		case SweepSkipped:
			summary.Skipped++
		case SweepError:
			summary.Errors++
		}
	}
	summary.Duration = time.Since(start)

	utils.Log().WithFields(logrus.Fields{
		"total":     summary.Total,
		"synced":    summary.Synced,
		"expired":   summary.Expired,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
	}).Info("Payment sweep finished")
	return summary, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, payment *models.Payment) SweepItem {
	item := SweepItem{
		PaymentID:      payment.ID,
		GatewayOrderID: payment.GatewayOrderID,
		From:           payment.Status,
	}
	if payment.GatewayOrderID == "" {
		item.Result = SweepSkipped
		return item
	}

	result := s.reconciler.Lookup(ctx, payment, s.callTimeout)
	outcome, err := s.reconciler.Apply(ctx, ByPaymentID(payment.ID), result)
	if err != nil {
		utils.LogError("Sweep failed for payment %d: %v", payment.ID, err)
		item.Result = SweepError
		item.Error = err.Error()
		return item
	}

	item.To = outcome.Payment.Status
	switch {
	case !outcome.Transitioned:
		item.Result = SweepUnchanged
	case outcome.Kind == OutcomeExpired:
		item.Result = SweepExpired
	default:
		item.Result = SweepSynced
	}
	return item
}

// Schedule runs the sweep every interval until ctx is done. A zero
// interval disables it.
func (s *Sweeper) Schedule(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	utils.LogInfo("Scheduled payment sweep every %s", every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				utils.LogError("Scheduled sweep failed: %v", err)
			}
		}
	}
}
