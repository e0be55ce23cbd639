package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is the machine-readable taxonomy code attached to terminal orders.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeTransientProvider ErrorCode = "TRANSIENT_PROVIDER_ERROR"
	CodePermanentProvider ErrorCode = "PERMANENT_PROVIDER_ERROR"
	CodeNoLiquidity       ErrorCode = "NO_LIQUIDITY_AVAILABLE"
	CodePriceImpact       ErrorCode = "PRICE_IMPACT_EXCEEDED"
	CodeSlippage          ErrorCode = "SLIPPAGE_EXCEEDED"
	CodeRiskLimit         ErrorCode = "RISK_LIMIT_EXCEEDED"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeSettlementTimeout ErrorCode = "SETTLEMENT_TIMEOUT"
	CodeExhaustedRoutes   ErrorCode = "EXHAUSTED_ROUTES"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ValidationError reports a malformed intent. Rejected immediately, never
// retried and never counted against a provider's circuit breaker.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError is a failure returned by (or on behalf of) a provider call.
// Transient errors are retried via fallback routes and count toward the
// provider's circuit breaker; permanent errors skip the provider for the
// current order only.
type ProviderError struct {
	Provider   string
	Transient  bool
	StatusCode int // HTTP status when applicable, 0 otherwise
	Message    string
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s provider error (status %d): %s", e.Provider, kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s provider error: %s", e.Provider, kind, e.Message)
}

// NewTransientProviderError builds a retryable provider failure (timeout, 5xx).
func NewTransientProviderError(provider, message string, status int) *ProviderError {
	return &ProviderError{Provider: provider, Transient: true, StatusCode: status, Message: message}
}

// NewPermanentProviderError builds a non-retryable provider rejection.
func NewPermanentProviderError(provider, message string, status int) *ProviderError {
	return &ProviderError{Provider: provider, Transient: false, StatusCode: status, Message: message}
}

// IsTransientProviderError reports whether err is a retryable provider failure.
func IsTransientProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// IsPermanentProviderError reports whether err is a provider rejection that
// retrying the same request cannot fix.
func IsPermanentProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && !pe.Transient
}

// CircuitOpenError short-circuits calls to a provider whose breaker is open.
// No network call was made.
type CircuitOpenError struct {
	Provider string
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, retry allowed at %s", e.Provider, e.RetryAt.Format(time.RFC3339))
}

// NoLiquidityError means no provider returned a usable quote.
type NoLiquidityError struct {
	Tried []string
}

func (e *NoLiquidityError) Error() string {
	return fmt.Sprintf("no liquidity available (providers tried: %s)", strings.Join(e.Tried, ", "))
}

// PriceImpactError means every candidate quote exceeded the impact ceiling.
// BestImpactPct carries the best available impact so the caller can decide to
// retry with an explicit override.
type PriceImpactError struct {
	BestImpactPct float64
	CeilingPct    float64
}

func (e *PriceImpactError) Error() string {
	return fmt.Sprintf("price impact exceeded: best available %.2f%% > ceiling %.2f%%", e.BestImpactPct, e.CeilingPct)
}

// SlippageError means realized slippage at settlement exceeded the route's
// tolerance.
type SlippageError struct {
	RealizedPct  float64
	TolerancePct float64
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: realized %.2f%% > tolerance %.2f%%", e.RealizedPct, e.TolerancePct)
}

// RiskLimitError reports which risk limit rejected the trade.
type RiskLimitError struct {
	Limit     string // e.g. "max_position_pct"
	Value     float64
	Threshold float64
}

func (e *RiskLimitError) Error() string {
	return fmt.Sprintf("risk limit exceeded: %s (value %.4f, threshold %.4f)", e.Limit, e.Value, e.Threshold)
}

// SettlementTimeoutError means the settlement wait elapsed without a terminal
// observation. The underlying transaction may still complete; callers should
// reconcile later.
type SettlementTimeoutError struct {
	TxRef  string
	Waited time.Duration
}

func (e *SettlementTimeoutError) Error() string {
	return fmt.Sprintf("settlement timeout after %s (tx %s, possibly still pending)", e.Waited, e.TxRef)
}

// ExhaustedRoutesError means the fallback list ran out before a submission
// succeeded.
type ExhaustedRoutesError struct {
	Attempts int
}

func (e *ExhaustedRoutesError) Error() string {
	return fmt.Sprintf("exhausted routes after %d submission attempts", e.Attempts)
}

// CodeOf maps an error to its taxonomy code.
func CodeOf(err error) ErrorCode {
	var (
		ve  *ValidationError
		pe  *ProviderError
		ce  *CircuitOpenError
		nle *NoLiquidityError
		pie *PriceImpactError
		se  *SlippageError
		rle *RiskLimitError
		ste *SettlementTimeoutError
		ere *ExhaustedRoutesError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &pe):
		if pe.Transient {
			return CodeTransientProvider
		}
		return CodePermanentProvider
	case errors.As(err, &ce):
		return CodeCircuitOpen
	case errors.As(err, &nle):
		return CodeNoLiquidity
	case errors.As(err, &pie):
		return CodePriceImpact
	case errors.As(err, &se):
		return CodeSlippage
	case errors.As(err, &rle):
		return CodeRiskLimit
	case errors.As(err, &ste):
		return CodeSettlementTimeout
	case errors.As(err, &ere):
		return CodeExhaustedRoutes
	default:
		return CodeInternal
	}
}
