package app

import (
	"log/slog"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/gateway"
	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/service"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
	"go.uber.org/fx"
)

// GatewayModule wires the gateway HTTP client behind retries and the adapter
// that records and verifies gateway payments.
var GatewayModule = fx.Options(
	fx.Provide(newGatewayAdapter),
)

type gatewayParams struct {
	fx.In

	Config   *config.Config
	Payments ports.GatewayPaymentRepository
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

func newGatewayAdapter(p gatewayParams) ports.GatewayAdapter {
	client := gateway.NewRetryClient(gateway.NewHTTPClient(p.Config.Gateway), p.Config.Retry)
	verifier := gateway.NewHMACVerifier(p.Config.Gateway.KeySecret)
	return gateway.NewAdapter(client, verifier, p.Payments, p.Metrics, p.Logger)
}

// ServiceModule wires the credit ledger and the checkout orchestrator.
var ServiceModule = fx.Options(
	fx.Provide(
		service.NewLedgerService,
		func(s *service.LedgerService) ports.CreditLedger { return s },
		newOrchestrator,
	),
)

type orchestratorParams struct {
	fx.In

	Config   *config.Config
	Attempts ports.CheckoutRepository
	Ledger   ports.CreditLedger
	Gateway  ports.GatewayAdapter
	Orders   ports.OrderWriter
	Recon    ports.ReconciliationRepository
	Events   ports.EventPublisher
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

func newOrchestrator(p orchestratorParams) *service.Orchestrator {
	return service.NewOrchestrator(
		p.Attempts,
		p.Ledger,
		p.Gateway,
		p.Orders,
		p.Recon,
		p.Events,
		p.Config.Worker.StaleAfter,
		p.Metrics,
		p.Logger,
	)
}
