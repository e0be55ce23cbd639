package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// OrderHandler handles the order lifecycle endpoints.
type OrderHandler struct {
	orders OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// SubmitOrderRequest is the POST /api/v1/orders body.
type SubmitOrderRequest struct {
	UserID      string  `json:"user_id"`
	Pair        string  `json:"pair"` // "SELL/BUY", e.g. "WETH/USDC"
	Amount      float64 `json:"amount"`
	Direction   string  `json:"direction"`
	MaxSlippage float64 `json:"max_slippage,omitempty"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HandleSubmit handles POST /api/v1/orders.
func (h *OrderHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", string(types.CodeValidation), http.StatusBadRequest)
		return
	}

	pair, err := types.ParsePair(req.Pair)
	if err != nil {
		h.writeError(w, err.Error(), string(types.CodeValidation), http.StatusBadRequest)
		return
	}

	intent := types.Intent{
		Pair:        pair,
		Amount:      req.Amount,
		Direction:   types.Direction(strings.ToUpper(req.Direction)),
		MaxSlippage: req.MaxSlippage,
	}

	order, err := h.orders.SubmitOrder(r.Context(), req.UserID, intent)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, err.Error(), string(types.CodeValidation), http.StatusBadRequest)
			return
		}
		h.logger.Error("order-submit-failed", zap.Error(err))
		h.writeError(w, "internal error", string(types.CodeInternal), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, order)
}

// HandleStatus handles GET /api/v1/orders/{orderID}.
func (h *OrderHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := h.orders.OrderStatus(orderID)
	if err != nil {
		h.writeError(w, "order not found", "", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleCancel handles DELETE /api/v1/orders/{orderID}.
func (h *OrderHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if _, err := h.orders.OrderStatus(orderID); err != nil {
		h.writeError(w, "order not found", "", http.StatusNotFound)
		return
	}

	if err := h.orders.CancelOrder(orderID); err != nil {
		h.writeError(w, err.Error(), "", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response-encode-failed", zap.Error(err))
	}
}

func (h *OrderHandler) writeError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}
