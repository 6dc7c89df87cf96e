package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/google/uuid"
)

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[method]++
}

func (c *counter) GetCalls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// MockGatewayAdapter registers one gateway order per correlation id and
// accepts every signature unless VerifySignatureFn says otherwise. Accepted
// signatures mark the gateway order paid, as the real adapter does.
type MockGatewayAdapter struct {
	counter
	mu       sync.Mutex
	orders   map[string]string
	Paid     map[string]string
	Failures map[string]string
	Delay    time.Duration

	RegisterOrderFn   func(ctx context.Context, amount int64, currency, correlationID string) (string, error)
	VerifySignatureFn func(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	RecordFailureFn   func(ctx context.Context, gatewayOrderID, reason string) error
	PaymentFn         func(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error)
}

func NewMockGatewayAdapter() *MockGatewayAdapter {
	return &MockGatewayAdapter{
		orders:   make(map[string]string),
		Paid:     make(map[string]string),
		Failures: make(map[string]string),
	}
}

func (m *MockGatewayAdapter) RegisterOrder(ctx context.Context, amount int64, currency, correlationID string) (string, error) {
	m.inc("RegisterOrder")
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.RegisterOrderFn != nil {
		return m.RegisterOrderFn(ctx, amount, currency, correlationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.orders[correlationID]; ok {
		return id, nil
	}
	id := "order_" + correlationID
	m.orders[correlationID] = id
	return id, nil
}

func (m *MockGatewayAdapter) VerifySignature(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	m.inc("VerifySignature")
	valid := true
	if m.VerifySignatureFn != nil {
		var err error
		if valid, err = m.VerifySignatureFn(ctx, gatewayOrderID, gatewayPaymentID, signature); err != nil {
			return false, err
		}
	}
	if valid {
		m.MarkPaid(gatewayOrderID, gatewayPaymentID)
	}
	return valid, nil
}

// MarkPaid records gatewayOrderID as paid with gatewayPaymentID.
func (m *MockGatewayAdapter) MarkPaid(gatewayOrderID, gatewayPaymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Paid[gatewayOrderID] = gatewayPaymentID
}

func (m *MockGatewayAdapter) RecordFailure(ctx context.Context, gatewayOrderID, reason string) error {
	m.inc("RecordFailure")
	if m.RecordFailureFn != nil {
		return m.RecordFailureFn(ctx, gatewayOrderID, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, paid := m.Paid[gatewayOrderID]; !paid {
		m.Failures[gatewayOrderID] = reason
	}
	return nil
}

func (m *MockGatewayAdapter) Payment(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error) {
	m.inc("Payment")
	if m.PaymentFn != nil {
		return m.PaymentFn(ctx, gatewayOrderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &domain.GatewayPayment{GatewayOrderID: gatewayOrderID, Status: domain.GatewayCreated}
	if paymentID, ok := m.Paid[gatewayOrderID]; ok {
		p.Status = domain.GatewayPaid
		p.GatewayPaymentID = &paymentID
		p.SignatureVerified = true
	} else if reason, ok := m.Failures[gatewayOrderID]; ok {
		p.Status = domain.GatewayFailed
		p.FailureReason = &reason
	}
	return p, nil
}

// MockOrderWriter stores orders in memory, keyed by temp order id on both paths.
type MockOrderWriter struct {
	counter
	mu     sync.Mutex
	Orders map[string]*domain.Order

	WritePrimaryFn  func(ctx context.Context, order *domain.Order) (uuid.UUID, error)
	WriteFallbackFn func(ctx context.Context, order *domain.Order) (uuid.UUID, error)
}

func NewMockOrderWriter() *MockOrderWriter {
	return &MockOrderWriter{Orders: make(map[string]*domain.Order)}
}

func (m *MockOrderWriter) WritePrimary(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	m.inc("WritePrimary")
	if m.WritePrimaryFn != nil {
		return m.WritePrimaryFn(ctx, order)
	}
	return m.store(order)
}

func (m *MockOrderWriter) WriteFallback(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	m.inc("WriteFallback")
	if m.WriteFallbackFn != nil {
		return m.WriteFallbackFn(ctx, order)
	}
	return m.store(order)
}

func (m *MockOrderWriter) store(order *domain.Order) (uuid.UUID, error) {
	if err := order.Validate(); err != nil {
		return uuid.Nil, domain.NewOrderWriteError(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.Orders[order.TempOrderID]; ok {
		return existing.ID, nil
	}
	stored := *order
	stored.ID = uuid.New()
	stored.ItemsComplete = true
	stored.CreatedAt = time.Now().UTC()
	m.Orders[order.TempOrderID] = &stored
	return stored.ID, nil
}

// Order returns the stored order for tempOrderID, or nil.
func (m *MockOrderWriter) Order(tempOrderID string) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Orders[tempOrderID]
}

// MockOutcomeAwaiter answers every pending payment with Outcome, or with the
// result of AwaitFn when set.
type MockOutcomeAwaiter struct {
	counter
	Outcome domain.GatewayOutcome
	AwaitFn func(ctx context.Context, pending *domain.PendingPayment) (domain.GatewayOutcome, error)
}

func (m *MockOutcomeAwaiter) Await(ctx context.Context, pending *domain.PendingPayment) (domain.GatewayOutcome, error) {
	m.inc("Await")
	if m.AwaitFn != nil {
		return m.AwaitFn(ctx, pending)
	}
	return m.Outcome, nil
}

// MockGatewayPaymentRepository keeps gateway payment records in memory.
type MockGatewayPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]domain.GatewayPayment

	CreateFn func(ctx context.Context, p *domain.GatewayPayment) error
}

func NewMockGatewayPaymentRepository() *MockGatewayPaymentRepository {
	return &MockGatewayPaymentRepository{payments: make(map[string]domain.GatewayPayment)}
}

func (m *MockGatewayPaymentRepository) Create(ctx context.Context, p *domain.GatewayPayment) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.CorrelationID == p.CorrelationID {
			return domain.NewDuplicateKeyError(p.CorrelationID)
		}
	}
	m.payments[p.GatewayOrderID] = *p
	return nil
}

func (m *MockGatewayPaymentRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*domain.GatewayPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.CorrelationID == correlationID {
			return &p, nil
		}
	}
	return nil, domain.NewGatewayPaymentNotFoundError(correlationID)
}

func (m *MockGatewayPaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[gatewayOrderID]
	if !ok {
		return nil, domain.NewGatewayPaymentNotFoundError(gatewayOrderID)
	}
	return &p, nil
}

func (m *MockGatewayPaymentRepository) Update(ctx context.Context, p *domain.GatewayPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.GatewayOrderID]; !ok {
		return domain.NewGatewayPaymentNotFoundError(p.GatewayOrderID)
	}
	m.payments[p.GatewayOrderID] = *p
	return nil
}

// Put stores p directly.
func (m *MockGatewayPaymentRepository) Put(p domain.GatewayPayment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.GatewayOrderID] = p
}
