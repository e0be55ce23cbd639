package httpserver

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// BreakerHandler serves circuit breaker state for operators.
type BreakerHandler struct {
	breakers BreakerRegistry
	logger   *zap.Logger
}

// NewBreakerHandler creates a new breaker handler.
func NewBreakerHandler(breakers BreakerRegistry, logger *zap.Logger) *BreakerHandler {
	return &BreakerHandler{
		breakers: breakers,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/breakers.
func (h *BreakerHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	snapshots := h.breakers.Snapshots()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		h.logger.Error("response-encode-failed", zap.Error(err))
	}
}
