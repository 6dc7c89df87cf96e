package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/kafka"
	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/service"
	"github.com/DanielPopoola/ficmart-checkout/internal/worker"
	"go.uber.org/fx"
)

// WorkerModule wires the background loops: checkout recovery always, and the
// outbox relay when a Kafka topic is configured.
var WorkerModule = fx.Options(
	fx.Provide(
		newRecoveryWorker,
		newOutboxRelay,
	),
	fx.Invoke(registerWorkerLifecycle),
)

type recoveryWorkerParams struct {
	fx.In

	Config       *config.Config
	Attempts     ports.CheckoutRepository
	Orchestrator *service.Orchestrator
	Logger       *slog.Logger
}

func newRecoveryWorker(p recoveryWorkerParams) *worker.RecoveryWorker {
	return worker.NewRecoveryWorker(
		p.Attempts,
		p.Orchestrator,
		p.Config.Worker.Interval,
		p.Config.Worker.BatchSize,
		p.Config.Worker.StaleAfter,
		p.Logger,
	)
}

type outboxRelayParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Outbox    ports.OutboxRepository
	Logger    *slog.Logger
}

// newOutboxRelay returns nil when Kafka is not configured; events then stay
// in the outbox table until a relay is enabled.
func newOutboxRelay(p outboxRelayParams) *worker.OutboxRelay {
	if !p.Config.Kafka.Enabled() {
		p.Logger.Warn("kafka not configured, checkout events are kept in the outbox")
		return nil
	}

	publisher := kafka.NewPublisher(p.Config.Kafka, p.Logger)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return worker.NewOutboxRelay(
		p.Outbox,
		publisher,
		p.Config.Worker.Interval,
		p.Config.Worker.BatchSize,
		p.Logger,
	)
}

type workerLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Recovery  *worker.RecoveryWorker
	Relay     *worker.OutboxRelay
}

type runner interface {
	Start(ctx context.Context)
}

func registerWorkerLifecycle(p workerLifecycleParams) {
	runners := []runner{p.Recovery}
	if p.Relay != nil {
		runners = append(runners, p.Relay)
	}

	var (
		wg     sync.WaitGroup
		cancel context.CancelFunc
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			for _, r := range runners {
				wg.Add(1)
				go func(r runner) {
					defer wg.Done()
					r.Start(ctx)
				}(r)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
