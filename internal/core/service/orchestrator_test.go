package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	ledgerRepo *mocks.MockLedgerRepository
	ledger     *LedgerService
	attempts   *mocks.MockCheckoutRepository
	gateway    *mocks.MockGatewayAdapter
	orders     *mocks.MockOrderWriter
	recon      *mocks.MockReconciliationRepository
	events     *mocks.MockEventPublisher
	orch       *Orchestrator
}

func newOrchestratorFixture(t *testing.T, replayAfter time.Duration) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		ledgerRepo: mocks.NewMockLedgerRepository(),
		attempts:   mocks.NewMockCheckoutRepository(),
		gateway:    mocks.NewMockGatewayAdapter(),
		orders:     mocks.NewMockOrderWriter(),
		recon:      &mocks.MockReconciliationRepository{},
		events:     &mocks.MockEventPublisher{},
	}
	f.ledger = NewLedgerService(f.ledgerRepo, nil, discardLogger())
	f.orch = NewOrchestrator(f.attempts, f.ledger, f.gateway, f.orders, f.recon, f.events, replayAfter, nil, discardLogger())
	return f
}

func (f *orchestratorFixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *orchestratorFixture) state(t *testing.T, tempOrderID string) domain.CheckoutState {
	t.Helper()
	a, err := f.attempts.FindByTempOrderID(context.Background(), tempOrderID)
	require.NoError(t, err)
	return a.State
}

func testCart(userID string, lines ...domain.CartItem) domain.Cart {
	var uid *string
	if userID != "" {
		uid = &userID
	}
	return domain.Cart{
		UserID:          uid,
		Contact:         domain.Contact{Name: "Ada", Email: "ada@example.com"},
		Items:           lines,
		Currency:        "INR",
		ShippingAddress: "12 Market Road, Pune",
		BillingAddress:  "12 Market Road, Pune",
	}
}

func physical(price int64) domain.CartItem {
	return domain.CartItem{ProductID: "p-" + fmt.Sprint(price), Title: "Mug", Quantity: 1, UnitPrice: price, ProductType: domain.ProductPhysical}
}

func digital(price int64) domain.CartItem {
	return domain.CartItem{ProductID: "d-" + fmt.Sprint(price), Title: "E-book", Quantity: 1, UnitPrice: price, ProductType: domain.ProductDigital}
}

func request(temp string, cart domain.Cart, method domain.PaymentMethod, useCredit bool) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		TempOrderID:          temp,
		Cart:                 cart,
		Selection:            domain.PaymentSelection{Method: method},
		StoreCreditRequested: useCredit,
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, domain.IsErrorCode(err, code), "expected %s, got %v", code, err)
}

// Scenario A: credit covers the whole cart.
func TestCompleteCheckout_CreditCoversTotal(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 500)

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-a", testCart("u1", physical(500)), domain.MethodGateway, true), &mocks.MockOutcomeAwaiter{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodStoreCredit, res.PaymentMethod)
	assert.Equal(t, "CREDIT_temp-a", res.PaymentID)
	assert.Equal(t, int64(500), res.CreditApplied)
	assert.Equal(t, domain.OrderCompleted, res.Status)
	assert.Equal(t, int64(0), f.balance(t, "u1"))
	assert.Equal(t, 0, f.gateway.GetCalls("RegisterOrder"))

	debits := 0
	for _, tx := range f.ledgerRepo.Transactions("u1") {
		if tx.Type == domain.TxDebit {
			debits++
			assert.Equal(t, int64(-500), tx.Amount)
			assert.Equal(t, "payment:temp-a", tx.Description)
		}
	}
	assert.Equal(t, 1, debits)

	order := f.orders.Order("temp-a")
	require.NotNil(t, order)
	assert.Equal(t, res.OrderID, order.ID)
	assert.Equal(t, "CREDIT_temp-a", order.PaymentID)
	assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-a"))
}

// Scenario B: hybrid credit plus gateway.
func TestCompleteCheckout_HybridGatewaySuccess(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	f.gateway.RegisterOrderFn = func(ctx context.Context, amount int64, currency, correlationID string) (string, error) {
		// Credit is reserved before the buyer is sent to the gateway.
		assert.Equal(t, int64(0), f.balance(t, "u1"))
		assert.Equal(t, int64(700), amount)
		assert.Equal(t, "temp-b", correlationID)
		return "order_gw_b", nil
	}
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.SuccessOutcome("order_gw_b", "pay_b", "sig")}

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-b", testCart("u1", physical(600), digital(400)), domain.MethodGateway, true), awaiter)
	require.NoError(t, err)

	assert.Equal(t, domain.MethodGateway, res.PaymentMethod)
	assert.Equal(t, "pay_b", res.PaymentID)
	assert.Equal(t, int64(300), res.CreditApplied)
	assert.Equal(t, int64(1000), res.TotalAmount)
	assert.Equal(t, 1, awaiter.GetCalls("Await"))
	assert.Equal(t, 1, f.gateway.GetCalls("VerifySignature"))

	a, err := f.orch.Status(context.Background(), "temp-b")
	require.NoError(t, err)
	assert.Equal(t, a.TotalAmount, a.CreditApplied+a.GatewayAmount)

	order := f.orders.Order("temp-b")
	require.NotNil(t, order)
	assert.Equal(t, int64(300), order.CreditApplied)
	assert.Equal(t, domain.OrderCompleted, order.Status)
	assert.Contains(t, f.events.Types(), domain.EventOrderConfirmed)
}

// Scenario C: hybrid checkout cancelled at the gateway.
func TestCompleteCheckout_HybridGatewayCancelled(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.CancelledOutcome()}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-c", testCart("u1", physical(1000)), domain.MethodGateway, true), awaiter)
	requireCode(t, err, domain.ErrCodePaymentCancelled)

	var failure *domain.CheckoutFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, int64(1000), failure.AttemptedAmount)
	assert.Equal(t, "temp-c", failure.TempOrderID)

	assert.Equal(t, int64(300), f.balance(t, "u1"))
	txs := f.ledgerRepo.Transactions("u1")
	require.Len(t, txs, 3)
	assert.Equal(t, domain.TxRefund, txs[2].Type)
	assert.Equal(t, int64(300), txs[2].Amount)
	require.NotNil(t, txs[2].IdempotencyKey)
	assert.Equal(t, domain.ReversalKey("temp-c"), *txs[2].IdempotencyKey)

	assert.Nil(t, f.orders.Order("temp-c"))
	assert.Equal(t, "cancelled", f.gateway.Failures["order_temp-c"])
	assert.Equal(t, domain.StateFailed, f.state(t, "temp-c"))
}

// Scenario D: authorization rejection on the primary write.
func TestCompleteCheckout_FallbackAfterAuthorizationDenied(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.orders.WritePrimaryFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewAuthorizationDeniedError(errors.New("new row violates row-level security policy"))
	}

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-d", testCart("", physical(250)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	require.NoError(t, err)

	order := f.orders.Order("temp-d")
	require.NotNil(t, order)
	assert.Equal(t, order.ID, res.OrderID)
	assert.Len(t, f.orders.Orders, 1)
	assert.Equal(t, 1, f.orders.GetCalls("WritePrimary"))
	assert.Equal(t, 1, f.orders.GetCalls("WriteFallback"))
}

func TestCompleteCheckout_COD(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-cod", testCart("u1", physical(300), digital(100)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodCOD, res.PaymentMethod)
	assert.Equal(t, domain.CODPendingPaymentID, res.PaymentID)
	assert.Equal(t, domain.OrderPending, res.Status)
	assert.Equal(t, int64(0), res.CreditApplied)
	assert.Empty(t, f.ledgerRepo.Transactions("u1"))
	assert.Equal(t, 0, f.gateway.GetCalls("RegisterOrder"))
}

func TestCompleteCheckout_CODWithPartialCredit(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-cod-credit", testCart("u1", physical(400)), domain.MethodCOD, true), &mocks.MockOutcomeAwaiter{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodCOD, res.PaymentMethod)
	assert.Equal(t, int64(100), res.CreditApplied)
	assert.Equal(t, int64(0), f.balance(t, "u1"))
}

func TestCompleteCheckout_CODRejectedForDigitalOnlyCart(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-digital", testCart("u1", digital(100)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeCODNotAllowed)

	_, findErr := f.attempts.FindByTempOrderID(context.Background(), "temp-digital")
	assert.True(t, domain.IsErrorCode(findErr, domain.ErrCodeCheckoutNotFound), "no attempt should be created")
	assert.Equal(t, 0, f.orders.GetCalls("WritePrimary"))
}

func TestCompleteCheckout_EmptyCart(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-empty", testCart("u1"), domain.MethodGateway, true), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeEmptyCart)
	assert.Equal(t, 0, f.gateway.GetCalls("RegisterOrder"))
}

func TestCompleteCheckout_GeneratesTempOrderID(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	res, err := f.orch.CompleteCheckout(context.Background(),
		request("", testCart("", physical(100)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TempOrderID)
	assert.NotNil(t, f.orders.Order(res.TempOrderID))
}

func TestCompleteCheckout_StoreCreditInsufficient(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 50)

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-short", testCart("u1", physical(100)), domain.MethodStoreCredit, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeInsufficientCredit)

	assert.Equal(t, int64(50), f.balance(t, "u1"))
	assert.Nil(t, f.orders.Order("temp-short"))
	assert.Equal(t, domain.StateFailed, f.state(t, "temp-short"))
}

func TestCompleteCheckout_CreditLimitCapsCredit(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 500)
	limit := int64(120)
	req := request("temp-cap", testCart("u1", physical(400)), domain.MethodGateway, true)
	req.Selection.CreditLimit = &limit
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.SuccessOutcome("order_temp-cap", "pay_cap", "sig")}

	res, err := f.orch.CompleteCheckout(context.Background(), req, awaiter)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.CreditApplied)
	assert.Equal(t, int64(380), f.balance(t, "u1"))
}

func TestCompleteCheckout_ConcurrentCreditCheckouts(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)
	f.ledgerRepo.Delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := range 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.CompleteCheckout(context.Background(),
				request(fmt.Sprintf("temp-tab-%d", i), testCart("u1", physical(80)), domain.MethodStoreCredit, false),
				&mocks.MockOutcomeAwaiter{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		requireCode(t, err, domain.ErrCodeInsufficientCredit)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, int64(20), f.balance(t, "u1"))
	assert.Len(t, f.orders.Orders, 1)
}

func TestResume_GatewayDeclined(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 200)

	begin, err := f.orch.Begin(context.Background(), request("temp-decl", testCart("u1", physical(500)), domain.MethodGateway, true))
	require.NoError(t, err)
	require.NotNil(t, begin.Pending)
	assert.Equal(t, int64(300), begin.Pending.Amount)
	assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-decl"))

	_, err = f.orch.Resume(context.Background(), "temp-decl", domain.FailedOutcome("card declined"))
	requireCode(t, err, domain.ErrCodePaymentFailed)
	assert.Equal(t, int64(200), f.balance(t, "u1"))
	assert.Equal(t, "card declined", f.gateway.Failures["order_temp-decl"])

	// A late duplicate callback reports the stored failure.
	_, err = f.orch.Resume(context.Background(), "temp-decl", domain.SuccessOutcome("order_temp-decl", "pay_late", "sig"))
	requireCode(t, err, domain.ErrCodePaymentFailed)
	assert.Equal(t, int64(200), f.balance(t, "u1"))
	assert.Equal(t, 0, f.orders.GetCalls("WritePrimary"))
}

func TestResume_InvalidSignature(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 200)
	f.gateway.VerifySignatureFn = func(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
		return false, nil
	}
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.SuccessOutcome("order_temp-sig", "pay_forged", "bad")}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-sig", testCart("u1", physical(500)), domain.MethodGateway, true), awaiter)
	requireCode(t, err, domain.ErrCodePaymentVerification)

	assert.Equal(t, int64(200), f.balance(t, "u1"), "pre-debited credit must be returned")
	assert.Nil(t, f.orders.Order("temp-sig"))
	assert.Equal(t, []domain.ReconciliationKind{domain.ReconVerificationFailed}, f.recon.Kinds())
	assert.Contains(t, f.events.Types(), domain.EventReconciliationRequired)
}

func TestResume_CompensationFailureEscalates(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)
	f.ledgerRepo.BeforeApply = func(ctx context.Context, entry domain.LedgerEntry) error {
		if entry.Type == domain.TxRefund {
			return errors.New("ledger unavailable")
		}
		return nil
	}
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.CancelledOutcome()}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-recon", testCart("u1", physical(1000)), domain.MethodGateway, true), awaiter)
	requireCode(t, err, domain.ErrCodeReconciliationNeeded)

	assert.Equal(t, int64(0), f.balance(t, "u1"))
	assert.Equal(t, []domain.ReconciliationKind{domain.ReconCompensationFailed}, f.recon.Kinds())
	assert.Equal(t, int64(300), f.recon.Items[0].Amount)

	a, err := f.orch.Status(context.Background(), "temp-recon")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, a.State)
	require.NotNil(t, a.FailureCode)
	assert.Equal(t, domain.ErrCodeReconciliationNeeded, *a.FailureCode)
}

func TestResume_GatewayOrderMismatchKeepsPending(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	_, err := f.orch.Begin(context.Background(), request("temp-mm", testCart("", physical(100)), domain.MethodGateway, false))
	require.NoError(t, err)

	_, err = f.orch.Resume(context.Background(), "temp-mm", domain.SuccessOutcome("order_other", "pay_x", "sig"))
	requireCode(t, err, domain.ErrCodeGatewayOrderMismatch)
	assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-mm"))
	assert.Equal(t, 0, f.gateway.GetCalls("VerifySignature"))
}

func TestResume_DuplicateSuccessCallback(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	_, err := f.orch.Begin(context.Background(), request("temp-dup", testCart("", physical(100)), domain.MethodGateway, false))
	require.NoError(t, err)

	outcome := domain.SuccessOutcome("order_temp-dup", "pay_dup", "sig")
	first, err := f.orch.Resume(context.Background(), "temp-dup", outcome)
	require.NoError(t, err)
	second, err := f.orch.Resume(context.Background(), "temp-dup", outcome)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, f.orders.GetCalls("WritePrimary"))
}

func TestCompleteCheckout_GatewayUnavailableCompensates(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)
	f.gateway.RegisterOrderFn = func(ctx context.Context, amount int64, currency, correlationID string) (string, error) {
		return "", domain.NewGatewayUnavailableError(errors.New("dial tcp: i/o timeout"))
	}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-unavail", testCart("u1", physical(300)), domain.MethodGateway, true), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeGatewayUnavailable)
	assert.Equal(t, int64(100), f.balance(t, "u1"))
}

func TestCompleteCheckout_AwaitErrorLeavesAttemptPending(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)
	awaiter := &mocks.MockOutcomeAwaiter{
		AwaitFn: func(ctx context.Context, pending *domain.PendingPayment) (domain.GatewayOutcome, error) {
			return domain.GatewayOutcome{}, context.DeadlineExceeded
		},
	}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-wait", testCart("u1", physical(300)), domain.MethodGateway, true), awaiter)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-wait"))
	assert.Equal(t, int64(0), f.balance(t, "u1"))

	res, err := f.orch.Resume(context.Background(), "temp-wait", domain.SuccessOutcome("order_temp-wait", "pay_w", "sig"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.CreditApplied)
}

func TestCompleteCheckout_FallbackUnavailable(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)
	f.orders.WritePrimaryFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewAuthorizationDeniedError(errors.New("permission denied for table orders"))
	}
	f.orders.WriteFallbackFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewFallbackUnavailableError()
	}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-nofb", testCart("u1", physical(100)), domain.MethodStoreCredit, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeFallbackUnavailable)
	assert.Equal(t, int64(100), f.balance(t, "u1"))
}

func TestCompleteCheckout_WriteErrorIsNotRetriedViaFallback(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.orders.WritePrimaryFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewOrderWriteError(errors.New("value too long for type character varying(255)"))
	}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-val", testCart("", physical(100)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeOrderWriteFailed)
	assert.Equal(t, 0, f.orders.GetCalls("WriteFallback"))
}

func TestCompleteCheckout_PaidOrderWriteFailureNeedsReconciliation(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.orders.WritePrimaryFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewOrderWriteError(errors.New("connection refused"))
	}
	awaiter := &mocks.MockOutcomeAwaiter{Outcome: domain.SuccessOutcome("order_temp-paid", "pay_p", "sig")}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-paid", testCart("", physical(100)), domain.MethodGateway, false), awaiter)
	requireCode(t, err, domain.ErrCodeReconciliationNeeded)
	assert.Equal(t, []domain.ReconciliationKind{domain.ReconChargedWithoutOrder}, f.recon.Kinds())
}

func TestCompleteCheckout_OrderIncomplete(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 100)
	f.orders.WritePrimaryFn = func(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
		return uuid.Nil, domain.NewOrderIncompleteError(uuid.NewString(), 0, len(order.Items))
	}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-partial", testCart("u1", physical(100)), domain.MethodStoreCredit, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeReconciliationNeeded)

	// The order row exists, so the credit is not handed back automatically.
	assert.Equal(t, int64(0), f.balance(t, "u1"))
	assert.Equal(t, []domain.ReconciliationKind{domain.ReconOrderIncomplete}, f.recon.Kinds())
}

func TestBegin_ReplayConfirmed(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 500)
	req := request("temp-replay", testCart("u1", physical(200)), domain.MethodStoreCredit, false)

	first, err := f.orch.Begin(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Begin(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.OrderID, second.Order.OrderID)
	assert.Equal(t, int64(300), f.balance(t, "u1"))
	assert.Equal(t, 1, f.orders.GetCalls("WritePrimary"))
}

func TestBegin_ReplayPendingReturnsSameSession(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	req := request("temp-pend", testCart("", physical(200)), domain.MethodGateway, false)

	first, err := f.orch.Begin(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Begin(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Pending.GatewayOrderID, second.Pending.GatewayOrderID)
	assert.Equal(t, 1, f.gateway.GetCalls("RegisterOrder"))
}

func TestBegin_ReplayWithDifferentCart(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)

	_, err := f.orch.Begin(context.Background(), request("temp-mismatch", testCart("", physical(200)), domain.MethodCOD, false))
	require.NoError(t, err)

	_, err = f.orch.Begin(context.Background(), request("temp-mismatch", testCart("", physical(300)), domain.MethodCOD, false))
	requireCode(t, err, domain.ErrCodeIdempotencyMismatch)
}

func TestBegin_ReplayFailedReturnsStoredFailure(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 10)
	req := request("temp-failed", testCart("u1", physical(200)), domain.MethodStoreCredit, false)

	_, err := f.orch.Begin(context.Background(), req)
	requireCode(t, err, domain.ErrCodeInsufficientCredit)

	_, err = f.orch.Begin(context.Background(), req)
	requireCode(t, err, domain.ErrCodeInsufficientCredit)
}

// crashAfterDebit fails the first persist of CREDIT_RESERVED, as if the
// process died right after the ledger debit committed.
func crashAfterDebit(f *orchestratorFixture) {
	crashed := false
	f.attempts.UpdateFn = func(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error {
		if attempt.State == domain.StateCreditReserved && !crashed {
			crashed = true
			return errors.New("process killed")
		}
		return f.attempts.Store(ctx, attempt, from)
	}
}

func TestBegin_ReplayAfterCrashCompletesOnce(t *testing.T) {
	f := newOrchestratorFixture(t, 0)
	f.ledgerRepo.Seed("u1", 500)
	crashAfterDebit(f)
	req := request("temp-crash", testCart("u1", physical(200)), domain.MethodStoreCredit, false)

	_, err := f.orch.Begin(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.StateInit, f.state(t, "temp-crash"))
	assert.Equal(t, int64(300), f.balance(t, "u1"))

	res, err := f.orch.Begin(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	assert.Equal(t, int64(300), f.balance(t, "u1"), "debit must be applied exactly once")
	assert.Len(t, f.orders.Orders, 1)
	assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-crash"))
}

func TestBegin_ReplayInsideLeaseIsInProgress(t *testing.T) {
	f := newOrchestratorFixture(t, time.Hour)
	f.ledgerRepo.Seed("u1", 500)
	crashAfterDebit(f)
	req := request("temp-lease", testCart("u1", physical(200)), domain.MethodStoreCredit, false)

	_, err := f.orch.Begin(context.Background(), req)
	require.Error(t, err)

	_, err = f.orch.Begin(context.Background(), req)
	requireCode(t, err, domain.ErrCodeCheckoutInProgress)
}

func TestRecover_ResumesInterruptedAttempt(t *testing.T) {
	f := newOrchestratorFixture(t, time.Hour)
	f.ledgerRepo.Seed("u1", 500)
	crashAfterDebit(f)
	req := request("temp-recover", testCart("u1", physical(200)), domain.MethodGateway, true)

	_, err := f.orch.Begin(context.Background(), req)
	require.Error(t, err)

	res, err := f.orch.Recover(context.Background(), "temp-recover")
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, domain.MethodStoreCredit, res.Order.PaymentMethod)
	assert.Equal(t, int64(300), f.balance(t, "u1"))

	_, err = f.orch.Recover(context.Background(), "temp-recover")
	requireCode(t, err, domain.ErrCodeInvalidTransition)
}

func TestBegin_AmbiguousDebitLeavesAttemptInInit(t *testing.T) {
	f := newOrchestratorFixture(t, 0)
	f.ledgerRepo.Seed("u1", 500)
	dropped := false
	f.ledgerRepo.BeforeApply = func(ctx context.Context, entry domain.LedgerEntry) error {
		if entry.Type == domain.TxDebit && !dropped {
			dropped = true
			return errors.New("connection reset by peer")
		}
		return nil
	}
	req := request("temp-ambig", testCart("u1", physical(200)), domain.MethodStoreCredit, false)

	_, err := f.orch.Begin(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.StateInit, f.state(t, "temp-ambig"))
	assert.Empty(t, f.recon.Items)

	_, err = f.orch.Begin(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(300), f.balance(t, "u1"))
}

func TestResume_CancelWhileVerifyingIsRefused(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	begin, err := f.orch.Begin(context.Background(), request("temp-race", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)
	require.NotNil(t, begin.Pending)

	var cancelErr error
	f.gateway.VerifySignatureFn = func(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
		_, cancelErr = f.orch.Resume(ctx, "temp-race", domain.CancelledOutcome())
		return true, nil
	}

	res, err := f.orch.Resume(context.Background(), "temp-race", domain.SuccessOutcome(begin.Pending.GatewayOrderID, "pay_1", "sig"))
	require.NoError(t, err)
	requireCode(t, cancelErr, domain.ErrCodeCheckoutInProgress)

	assert.Equal(t, int64(300), res.CreditApplied)
	assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-race"))
	assert.Equal(t, int64(0), f.balance(t, "u1"), "credit applied to the order must stay debited")
	assert.Empty(t, f.gateway.Failures)
	for _, tx := range f.ledgerRepo.Transactions("u1") {
		assert.NotEqual(t, domain.TxRefund, tx.Type)
	}
}

func TestResume_SecondSuccessWhileVerifyingIsRefused(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	begin, err := f.orch.Begin(context.Background(), request("temp-twice", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)

	var forgedErr error
	f.gateway.VerifySignatureFn = func(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
		if signature == "forged" {
			t.Error("second callback must not reach verification")
			return false, nil
		}
		_, forgedErr = f.orch.Resume(ctx, "temp-twice", domain.SuccessOutcome(gatewayOrderID, "pay_2", "forged"))
		return true, nil
	}

	_, err = f.orch.Resume(context.Background(), "temp-twice", domain.SuccessOutcome(begin.Pending.GatewayOrderID, "pay_1", "sig"))
	require.NoError(t, err)
	requireCode(t, forgedErr, domain.ErrCodeCheckoutInProgress)
	assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-twice"))
	assert.Equal(t, int64(0), f.balance(t, "u1"))
	assert.Empty(t, f.recon.Items)
}

func TestResume_CancelAfterGatewayMarkedPaidIsRefused(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	begin, err := f.orch.Begin(context.Background(), request("temp-paid-cancel", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)
	f.gateway.MarkPaid(begin.Pending.GatewayOrderID, "pay_1")

	_, err = f.orch.Resume(context.Background(), "temp-paid-cancel", domain.FailedOutcome("late decline"))
	requireCode(t, err, domain.ErrCodeCheckoutInProgress)

	assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-paid-cancel"))
	assert.Equal(t, int64(0), f.balance(t, "u1"))
	assert.Empty(t, f.gateway.Failures)
}

func TestResume_VerificationErrorReopensSession(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	begin, err := f.orch.Begin(context.Background(), request("temp-timeout", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)
	outcome := domain.SuccessOutcome(begin.Pending.GatewayOrderID, "pay_1", "sig")

	f.gateway.VerifySignatureFn = func(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
		return false, context.DeadlineExceeded
	}
	_, err = f.orch.Resume(context.Background(), "temp-timeout", outcome)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-timeout"))

	f.gateway.VerifySignatureFn = nil
	res, err := f.orch.Resume(context.Background(), "temp-timeout", outcome)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", res.PaymentID)
	assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-timeout"))
}

func TestConfirm_LostConfirmationToConcurrentWriterReturnsStoredOrder(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 500)

	var storedOrderID uuid.UUID
	f.attempts.UpdateFn = func(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error {
		if attempt.State == domain.StateConfirmed {
			// Another writer confirmed the same idempotent order first.
			winner := *attempt
			storedOrderID = *attempt.OrderID
			f.attempts.Put(winner)
			return domain.NewCheckoutInProgressError(attempt.TempOrderID)
		}
		return f.attempts.Store(ctx, attempt, from)
	}

	res, err := f.orch.Begin(context.Background(), request("temp-lost", testCart("u1", physical(200)), domain.MethodStoreCredit, false))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, storedOrderID, res.Order.OrderID)
	assert.Empty(t, f.recon.Items)
}

func TestConfirm_LostConfirmationToFailureEscalates(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	begin, err := f.orch.Begin(context.Background(), request("temp-conflict", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)

	f.attempts.UpdateFn = func(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error {
		if attempt.State == domain.StateConfirmed {
			failed := *attempt
			failed.State = domain.StateFailed
			failed.OrderID = nil
			code := domain.ErrCodePaymentCancelled
			failed.FailureCode = &code
			f.attempts.Put(failed)
		}
		return f.attempts.Store(ctx, attempt, from)
	}

	_, err = f.orch.Resume(context.Background(), "temp-conflict", domain.SuccessOutcome(begin.Pending.GatewayOrderID, "pay_1", "sig"))
	requireCode(t, err, domain.ErrCodeReconciliationNeeded)

	assert.Equal(t, []domain.ReconciliationKind{domain.ReconSettlementConflict}, f.recon.Kinds())
	assert.Equal(t, int64(1000), f.recon.Items[0].Amount)
	assert.Contains(t, f.events.Types(), domain.EventReconciliationRequired)
}

func TestRecover_ReturnsCreditOfUncompensatedFailure(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	f.ledgerRepo.Seed("u1", 300)

	_, err := f.orch.Begin(context.Background(), request("temp-owed", testCart("u1", physical(1000)), domain.MethodGateway, true))
	require.NoError(t, err)

	a, err := f.attempts.FindByTempOrderID(context.Background(), "temp-owed")
	require.NoError(t, err)
	a.State = domain.StateFailed
	a.Fail(domain.NewPaymentCancelledError())
	f.attempts.Put(*a)

	_, err = f.orch.Recover(context.Background(), "temp-owed")
	requireCode(t, err, domain.ErrCodePaymentCancelled)
	assert.Equal(t, int64(300), f.balance(t, "u1"))

	settled, err := f.attempts.FindByTempOrderID(context.Background(), "temp-owed")
	require.NoError(t, err)
	assert.True(t, settled.Compensated)

	_, err = f.orch.Recover(context.Background(), "temp-owed")
	requireCode(t, err, domain.ErrCodePaymentCancelled)
	assert.Equal(t, int64(300), f.balance(t, "u1"))
}

func TestRecover_VerifyingAttempt(t *testing.T) {
	stuckInVerifying := func(t *testing.T) *orchestratorFixture {
		f := newOrchestratorFixture(t, time.Minute)
		f.ledgerRepo.Seed("u1", 300)
		_, err := f.orch.Begin(context.Background(), request("temp-v", testCart("u1", physical(1000)), domain.MethodGateway, true))
		require.NoError(t, err)
		a, err := f.attempts.FindByTempOrderID(context.Background(), "temp-v")
		require.NoError(t, err)
		a.State = domain.StateVerifying
		f.attempts.Put(*a)
		return f
	}

	t.Run("paid gateway order is confirmed", func(t *testing.T) {
		f := stuckInVerifying(t)
		f.gateway.MarkPaid("order_temp-v", "pay_9")

		res, err := f.orch.Recover(context.Background(), "temp-v")
		require.NoError(t, err)
		require.NotNil(t, res.Order)
		assert.Equal(t, "pay_9", res.Order.PaymentID)
		assert.Equal(t, domain.StateConfirmed, f.state(t, "temp-v"))
		assert.Equal(t, int64(0), f.balance(t, "u1"))
	})

	t.Run("unverified gateway order is reopened", func(t *testing.T) {
		f := stuckInVerifying(t)

		res, err := f.orch.Recover(context.Background(), "temp-v")
		require.NoError(t, err)
		require.NotNil(t, res.Pending)
		assert.Equal(t, int64(700), res.Pending.Amount)
		assert.Equal(t, domain.StateGatewayPending, f.state(t, "temp-v"))
		assert.Nil(t, f.orders.Order("temp-v"))
	})
}

func TestCompleteCheckout_RejectsOverflowingCart(t *testing.T) {
	f := newOrchestratorFixture(t, time.Minute)
	huge := domain.CartItem{ProductID: "big", Quantity: 4, UnitPrice: 1 << 62, ProductType: domain.ProductPhysical}

	_, err := f.orch.CompleteCheckout(context.Background(),
		request("temp-overflow", testCart("", huge, physical(100)), domain.MethodCOD, false), &mocks.MockOutcomeAwaiter{})
	requireCode(t, err, domain.ErrCodeInvalidAmount)
	assert.Nil(t, f.orders.Order("temp-overflow"))
}
