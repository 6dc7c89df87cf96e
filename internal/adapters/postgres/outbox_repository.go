package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// OutboxRepository stores checkout events for the relay. It is both the
// orchestrator's EventPublisher and the relay's OutboxRepository.
type OutboxRepository struct {
	q     Executor
	topic string
}

func NewOutboxRepository(q Executor, topic string) *OutboxRepository {
	return &OutboxRepository{q: q, topic: topic}
}

func (r *OutboxRepository) Publish(ctx context.Context, event domain.CheckoutEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = r.q.Exec(ctx,
		`INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4) ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, r.topic, event.TempOrderID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OutboxRecord, error) {
		var rec domain.OutboxRecord
		var payload []byte
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &payload, &rec.CreatedAt, &rec.SentAt)
		rec.Payload = payload
		return rec, err
	})
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox %d sent: %w", id, err)
	}
	return nil
}
