package ports

import (
	"context"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/google/uuid"
)

// OrderWriter persists an order and its items as one unit.
type OrderWriter interface {
	// WritePrimary writes under the caller's authorization context taken from ctx.
	WritePrimary(ctx context.Context, order *domain.Order) (uuid.UUID, error)
	// WriteFallback writes with the elevated credential. Only call it after
	// WritePrimary failed with ErrCodeAuthorizationDenied.
	WriteFallback(ctx context.Context, order *domain.Order) (uuid.UUID, error)
}
