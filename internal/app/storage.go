package app

import (
	"context"
	"log/slog"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/postgres"
	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"go.uber.org/fx"
)

// StorageModule wires both database pools and the repositories built on them.
var StorageModule = fx.Options(
	fx.Provide(
		newDatabases,
		func(dbs *Databases) postgres.Pool { return dbs.Primary.Pool },
		func(p postgres.Pool) ports.CheckoutRepository { return postgres.NewCheckoutRepository(p) },
		func(p postgres.Pool) ports.GatewayPaymentRepository { return postgres.NewGatewayPaymentRepository(p) },
		func(p postgres.Pool) ports.ReconciliationRepository { return postgres.NewReconciliationRepository(p) },
		func(p postgres.Pool, logger *slog.Logger) ports.LedgerRepository {
			return postgres.NewLedgerRepository(p, logger)
		},
		newOrderWriter,
		newOutbox,
		func(o *postgres.OutboxRepository) ports.EventPublisher { return o },
		func(o *postgres.OutboxRepository) ports.OutboxRepository { return o },
	),
)

// Databases holds the primary pool and the optional elevated pool used by the
// order fallback path.
type Databases struct {
	Primary  *postgres.DB
	Fallback *postgres.DB
}

func newDatabases(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*Databases, error) {
	ctx := context.Background()

	primary, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	fallback, err := postgres.ConnectFallback(ctx, &cfg.Database, cfg.FallbackDatabase, logger)
	if err != nil {
		primary.Close()
		return nil, err
	}

	dbs := &Databases{Primary: primary, Fallback: fallback}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if dbs.Fallback != nil {
				dbs.Fallback.Close()
			}
			dbs.Primary.Close()
			return nil
		},
	})
	return dbs, nil
}

type orderWriterParams struct {
	fx.In

	Databases *Databases
	Config    *config.Config
	Logger    *slog.Logger
}

func newOrderWriter(p orderWriterParams) ports.OrderWriter {
	// A nil *DB must reach the writer as a nil interface.
	var fallback postgres.Pool
	if p.Databases.Fallback != nil {
		fallback = p.Databases.Fallback.Pool
	}
	return postgres.NewOrderWriter(p.Databases.Primary.Pool, fallback, p.Config.Database.PrimaryRole, p.Logger)
}

func newOutbox(p postgres.Pool, cfg *config.Config) *postgres.OutboxRepository {
	return postgres.NewOutboxRepository(p, cfg.Kafka.Topic)
}
