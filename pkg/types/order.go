package types

import (
	"time"
)

// OrderStatus is the lifecycle state of an order. Transitions only move
// forward; terminal states are immutable.
type OrderStatus string

const (
	StatusPending     OrderStatus = "PENDING"
	StatusRiskChecked OrderStatus = "RISK_CHECKED"
	StatusRouted      OrderStatus = "ROUTED"
	StatusSubmitted   OrderStatus = "SUBMITTED"
	StatusSettled     OrderStatus = "SETTLED"
	StatusFailed      OrderStatus = "FAILED"
	StatusCancelled   OrderStatus = "CANCELLED"
)

// statusRank orders the non-terminal pipeline states. Terminal states share
// the highest rank so no terminal state can replace another.
var statusRank = map[OrderStatus]int{
	StatusPending:     0,
	StatusRiskChecked: 1,
	StatusRouted:      2,
	StatusSubmitted:   3,
	StatusSettled:     4,
	StatusFailed:      4,
	StatusCancelled:   4,
}

// Terminal reports whether the status is an end state.
func (s OrderStatus) Terminal() bool {
	return s == StatusSettled || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next respects the forward-only
// status sequence.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}

	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}

	return to > from
}

// Order tracks one accepted intent through the execution pipeline.
// The execution coordinator owns an order exclusively for its lifetime.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Intent    Intent      `json:"intent"`
	Status    OrderStatus `json:"status"`
	Route     *Route      `json:"route,omitempty"`
	Attempts  int         `json:"attempts"`
	ErrorCode ErrorCode   `json:"error_code,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SubmissionHandle is the reference a provider returns after accepting a
// submission, used for settlement tracking.
type SubmissionHandle struct {
	Provider    string    `json:"provider"`
	TxRef       string    `json:"tx_ref"`
	Private     bool      `json:"private"` // submitted via the MEV-protected relay
	SubmittedAt time.Time `json:"submitted_at"`
}

// TxState is the on-chain/off-chain status of a submitted transaction.
type TxState string

const (
	TxPending   TxState = "PENDING"
	TxConfirmed TxState = "CONFIRMED"
	TxFailed    TxState = "FAILED"
)

// TxStatus is a settlement observation for a submission handle.
type TxStatus struct {
	State         TxState `json:"state"`
	FinalOut      float64 `json:"final_out"` // buy token units, set when confirmed
	GasUsed       uint64  `json:"gas_used"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// ExecutionResult is the terminal record produced once per order.
type ExecutionResult struct {
	OrderID             string      `json:"order_id"`
	UserID              string      `json:"user_id"`
	Status              OrderStatus `json:"status"`
	Provider            string      `json:"provider,omitempty"`
	FinalOut            float64     `json:"final_out"`
	RealizedSlippagePct float64     `json:"realized_slippage_pct"`
	TxRef               string      `json:"tx_ref,omitempty"`
	ErrorCode           ErrorCode   `json:"error_code,omitempty"`
	Detail              string      `json:"detail,omitempty"`
	CompletedAt         time.Time   `json:"completed_at"`
}

// RiskLimit is the per-user risk configuration. It is owned by the user
// account and only read by the engine.
type RiskLimit struct {
	UserID          string  `json:"user_id"`
	MaxPositionPct  float64 `json:"max_position_pct"`  // fraction of portfolio, e.g. 0.05
	MaxDailyLossUSD float64 `json:"max_daily_loss_usd"`
	DrawdownKillPct float64 `json:"drawdown_kill_pct"` // e.g. 15.0
	MinTradeUSD     float64 `json:"min_trade_usd"`
}
