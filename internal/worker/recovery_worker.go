package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
)

// Recoverer continues an interrupted checkout attempt.
type Recoverer interface {
	Recover(ctx context.Context, tempOrderID string) (*domain.CheckoutResult, error)
}

// RecoveryWorker finishes attempts that stopped before a terminal outcome:
// interrupted allocations and settlements, verifications cut short, and
// failures whose reserved credit was never returned. Attempts waiting on the
// buyer at the gateway are only reported.
type RecoveryWorker struct {
	attempts   ports.CheckoutRepository
	recoverer  Recoverer
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewRecoveryWorker(
	attempts ports.CheckoutRepository,
	recoverer Recoverer,
	interval time.Duration,
	batchSize int,
	staleAfter time.Duration,
	logger *slog.Logger,
) *RecoveryWorker {
	return &RecoveryWorker{
		attempts:   attempts,
		recoverer:  recoverer,
		interval:   interval,
		batchSize:  batchSize,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

func (w *RecoveryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting checkout recovery worker",
		"interval", w.interval,
		"batch_size", w.batchSize,
		"stale_after", w.staleAfter,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping checkout recovery worker")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single recovery cycle and returns how many attempts
// reached a terminal state.
func (w *RecoveryWorker) RunOnce(ctx context.Context) int {
	recovered := 0
	for _, state := range []domain.CheckoutState{domain.StateInit, domain.StateCreditReserved, domain.StateVerifying} {
		stale, err := w.attempts.FindStale(ctx, state, w.staleAfter, w.batchSize)
		if err != nil {
			w.logger.Error("failed to find stale checkouts", "state", state, "error", err)
			continue
		}
		recovered += w.recoverAll(ctx, stale)
	}

	uncompensated, err := w.attempts.FindUncompensated(ctx, w.staleAfter, w.batchSize)
	if err != nil {
		w.logger.Error("failed to find uncompensated checkouts", "error", err)
	} else {
		recovered += w.recoverAll(ctx, uncompensated)
	}

	w.reportWaiting(ctx)

	if recovered > 0 {
		w.logger.Info("recovered interrupted checkouts", "count", recovered)
	}
	return recovered
}

func (w *RecoveryWorker) recoverAll(ctx context.Context, attempts []*domain.CheckoutAttempt) int {
	recovered := 0
	for _, a := range attempts {
		if ctx.Err() != nil {
			return recovered
		}
		res, err := w.recoverer.Recover(ctx, a.TempOrderID)
		switch {
		case err == nil && res.Order != nil:
			recovered++
		case err == nil:
			// Back at the gateway; the buyer's callback settles it.
			w.logger.Info("recovered checkout awaits gateway payment", "temp_order_id", a.TempOrderID)
		case domain.IsErrorCode(err, domain.ErrCodeInvalidTransition), domain.IsErrorCode(err, domain.ErrCodeCheckoutInProgress):
			w.logger.Debug("checkout already progressed", "temp_order_id", a.TempOrderID)
		default:
			var failure *domain.CheckoutFailure
			if errors.As(err, &failure) {
				recovered++
				w.logger.Warn("recovered checkout failed",
					"temp_order_id", a.TempOrderID,
					"code", domain.ErrorCode(err),
				)
				continue
			}
			w.logger.Error("checkout recovery failed",
				"temp_order_id", a.TempOrderID,
				"state", a.State,
				"error", err,
			)
		}
	}
	return recovered
}

func (w *RecoveryWorker) reportWaiting(ctx context.Context) {
	waiting, err := w.attempts.FindStale(ctx, domain.StateGatewayPending, w.staleAfter, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending gateway checkouts", "error", err)
		return
	}
	for _, a := range waiting {
		var gatewayOrderID string
		if a.GatewayOrderID != nil {
			gatewayOrderID = *a.GatewayOrderID
		}
		w.logger.Warn("checkout still awaiting gateway payment",
			"temp_order_id", a.TempOrderID,
			"gateway_order_id", gatewayOrderID,
			"age", time.Since(a.UpdatedAt).Round(time.Second),
		)
	}
}
