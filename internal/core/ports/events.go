package ports

import (
	"context"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// EventPublisher records checkout events for asynchronous delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.CheckoutEvent) error
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	MarkSent(ctx context.Context, id int64) error
}

// MessageWriter delivers relayed outbox records to the broker.
type MessageWriter interface {
	Write(ctx context.Context, key string, payload []byte) error
}
