package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mselser95/dex-router/internal/notify"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/signer"
	"github.com/mselser95/dex-router/pkg/types"
)

// MockAdapter is a configurable provider adapter for tests. Behavior is
// set through the function fields; unset fields return zero-value
// defaults. Call counts are safe for concurrent use.
type MockAdapter struct {
	ProviderName string

	QuoteFn  func(ctx context.Context, req provider.QuoteRequest) (*types.Quote, error)
	SubmitFn func(ctx context.Context, req provider.SubmitRequest) (*types.SubmissionHandle, error)
	StatusFn func(ctx context.Context, txRef string) (*types.TxStatus, error)

	mu          sync.Mutex
	quoteCalls  int
	submitCalls int
	statusCalls int
}

// Name returns the configured provider name.
func (m *MockAdapter) Name() string {
	return m.ProviderName
}

// GetQuote invokes QuoteFn, or fails if none is set.
func (m *MockAdapter) GetQuote(ctx context.Context, req provider.QuoteRequest) (*types.Quote, error) {
	m.mu.Lock()
	m.quoteCalls++
	m.mu.Unlock()

	if m.QuoteFn == nil {
		return nil, fmt.Errorf("mock adapter %s: no QuoteFn configured", m.ProviderName)
	}
	return m.QuoteFn(ctx, req)
}

// Submit invokes SubmitFn, or returns a canned handle if none is set.
func (m *MockAdapter) Submit(ctx context.Context, req provider.SubmitRequest) (*types.SubmissionHandle, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()

	if m.SubmitFn == nil {
		return &types.SubmissionHandle{
			Provider:    m.ProviderName,
			TxRef:       "0xmock-" + m.ProviderName,
			Private:     req.Private,
			SubmittedAt: time.Now(),
		}, nil
	}
	return m.SubmitFn(ctx, req)
}

// TxStatus invokes StatusFn, or reports a confirmed transaction if none
// is set.
func (m *MockAdapter) TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()

	if m.StatusFn == nil {
		return &types.TxStatus{State: types.TxConfirmed}, nil
	}
	return m.StatusFn(ctx, txRef)
}

// QuoteCalls returns how many times GetQuote was invoked.
func (m *MockAdapter) QuoteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteCalls
}

// SubmitCalls returns how many times Submit was invoked.
func (m *MockAdapter) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// StatusCalls returns how many times TxStatus was invoked.
func (m *MockAdapter) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// MockStorage records saved orders and execution results in memory.
type MockStorage struct {
	mu      sync.Mutex
	Orders  []*types.Order
	Results []*types.ExecutionResult
	SaveErr error
}

// NewMockStorage creates an empty in-memory storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// SaveOrder appends a copy of the order.
func (m *MockStorage) SaveOrder(_ context.Context, order *types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *order
	m.Orders = append(m.Orders, &cp)
	return nil
}

// SaveExecutionResult appends a copy of the result.
func (m *MockStorage) SaveExecutionResult(_ context.Context, result *types.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *result
	m.Results = append(m.Results, &cp)
	return nil
}

// Close is a no-op.
func (m *MockStorage) Close() error {
	return nil
}

// SavedOrders returns a copy of the recorded orders.
func (m *MockStorage) SavedOrders() []*types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Order, len(m.Orders))
	copy(out, m.Orders)
	return out
}

// MockNotifier records emitted events.
type MockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

// Emit records the event.
func (m *MockNotifier) Emit(_ context.Context, ev notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of the recorded events.
func (m *MockNotifier) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Event, len(m.events))
	copy(out, m.events)
	return out
}

// MockSigner returns a canned signed transaction, or SignErr when set.
type MockSigner struct {
	SignErr error

	mu    sync.Mutex
	calls int
}

// Sign returns a deterministic signed transaction for the payload.
func (m *MockSigner) Sign(_ context.Context, _ string, payload signer.TxPayload) (*signer.SignedTx, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.SignErr != nil {
		return nil, m.SignErr
	}
	return &signer.SignedTx{
		Raw:  hexutil.Bytes{0x02, 0xf8, 0x6b},
		Hash: common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"),
	}, nil
}

// Calls returns how many times Sign was invoked.
func (m *MockSigner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPortfolio serves a fixed portfolio snapshot per user.
type MockPortfolio struct {
	mu        sync.Mutex
	Snapshots map[string]*types.Portfolio
	Err       error
}

// NewMockPortfolio creates a portfolio reader with no snapshots.
func NewMockPortfolio() *MockPortfolio {
	return &MockPortfolio{Snapshots: make(map[string]*types.Portfolio)}
}

// Set stores the snapshot for a user.
func (m *MockPortfolio) Set(userID string, p *types.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[userID] = p
}

// Snapshot returns the stored snapshot, or an empty portfolio when
// none was set.
func (m *MockPortfolio) Snapshot(_ context.Context, userID string) (*types.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if p, ok := m.Snapshots[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return &types.Portfolio{UserID: userID}, nil
}
