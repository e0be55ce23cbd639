package httpserver_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/pkg/healthprobe"
	"github.com/mselser95/dex-router/pkg/httpserver"
	"github.com/mselser95/dex-router/pkg/types"
)

type stubOrderService struct {
	orders map[string]*types.Order

	cancelErr error
}

func (s *stubOrderService) SubmitOrder(_ context.Context, userID string, intent types.Intent) (*types.Order, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, &types.ValidationError{Field: "user_id", Reason: "cannot be empty"}
	}

	order := &types.Order{
		ID:        "order-1",
		UserID:    userID,
		Intent:    intent,
		Status:    types.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrderService) OrderStatus(orderID string) (*types.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return order, nil
}

func (s *stubOrderService) CancelOrder(string) error {
	return s.cancelErr
}

func newTestServer(t *testing.T, orders *stubOrderService) http.Handler {
	t.Helper()

	hc := healthprobe.New()
	hc.SetReady(true)

	registry, err := circuitbreaker.NewRegistry([]string{"zeroex"}, circuitbreaker.Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	srv := httpserver.New(&httpserver.Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: hc,
		Orders:        orders,
		Breakers:      registry,
	})
	return srv.Handler()
}

func newStub() *stubOrderService {
	return &stubOrderService{orders: make(map[string]*types.Order)}
}

func TestSubmitOrder_Accepted(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStub())

	body := `{"user_id":"user-1","pair":"WETH/USDC","amount":1.5,"direction":"SELL","max_slippage":0.5}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var order types.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, types.StatusPending, order.Status)
}

func TestSubmitOrder_BadRequest(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStub())

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed-json", body: `{`},
		{name: "bad-pair", body: `{"user_id":"u","pair":"WETHUSDC","amount":1,"direction":"SELL"}`},
		{name: "bad-direction", body: `{"user_id":"u","pair":"WETH/USDC","amount":1,"direction":"SIDEWAYS"}`},
		{name: "negative-amount", body: `{"user_id":"u","pair":"WETH/USDC","amount":-1,"direction":"SELL"}`},
		{name: "missing-user", body: `{"pair":"WETH/USDC","amount":1,"direction":"SELL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestOrderStatus(t *testing.T) {
	t.Parallel()

	stub := newStub()
	stub.orders["order-7"] = &types.Order{ID: "order-7", Status: types.StatusSubmitted}
	handler := newTestServer(t, stub)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/order-7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var order types.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, types.StatusSubmitted, order.Status)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	stub := newStub()
	stub.orders["order-7"] = &types.Order{ID: "order-7", Status: types.StatusPending}
	handler := newTestServer(t, stub)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/orders/order-7", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stub.cancelErr = fmt.Errorf("order order-7 already terminal, cannot cancel")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/orders/order-7", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/orders/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBreakersEndpoint(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStub())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/breakers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshots []circuitbreaker.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshots))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "zeroex", snapshots[0].Provider)
	assert.Equal(t, circuitbreaker.StateClosed, snapshots[0].State)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStub())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
