package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
)

// OutboxRelay forwards stored checkout events to the broker in insertion order.
type OutboxRelay struct {
	outbox    ports.OutboxRepository
	writer    ports.MessageWriter
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewOutboxRelay(
	outbox ports.OutboxRepository,
	writer ports.MessageWriter,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		outbox:    outbox,
		writer:    writer,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("outbox relay failed", "error", err)
			}
		}
	}
}

// RunOnce relays one batch. It stops at the first delivery failure so later
// events of the same checkout are never sent ahead of earlier ones.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	records, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}

	sent := 0
	for _, rec := range records {
		if err := r.writer.Write(ctx, rec.Key, rec.Payload); err != nil {
			return sent, fmt.Errorf("relay event %s: %w", rec.EventID, err)
		}
		// A failure here re-sends the event next cycle; consumers dedupe on event_id.
		if err := r.outbox.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		r.logger.Debug("relayed outbox events", "count", sent)
	}
	return sent, nil
}
