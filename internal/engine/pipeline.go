package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/notify"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/settlement"
	"github.com/mselser95/dex-router/internal/signer"
	"github.com/mselser95/dex-router/pkg/types"
)

// execute drives one order from Pending to a terminal state.
func (c *Coordinator) execute(state *orderState) {
	ctx := c.baseCtx
	order := state.order

	start := time.Now()
	defer func() {
		PipelineDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if err := c.gate.PreCheckIntent(ctx, order.UserID, order.Intent); err != nil {
		c.fail(state, err, "pre-check rejected")
		return
	}

	if c.cancelledAtCheckpoint(state) {
		return
	}

	quotes, err := c.aggregator.Collect(ctx, order.Intent)
	if err != nil {
		c.fail(state, err, "no quotes available")
		return
	}

	route, err := c.selector.Select(order.Intent, quotes)
	if err != nil {
		c.fail(state, err, "no viable route")
		return
	}

	// Full pre-check now that the route prices the trade in USD.
	if err := c.gate.PreCheck(ctx, order.UserID, route.Quote.NotionalUSD); err != nil {
		c.fail(state, err, "risk check rejected")
		return
	}
	c.transition(state, types.StatusRiskChecked, "", "")

	if c.cancelledAtCheckpoint(state) {
		return
	}

	state.mu.Lock()
	state.order.Route = route
	state.mu.Unlock()
	c.transition(state, types.StatusRouted, "", route.Quote.Provider)

	c.submitWithFallbacks(ctx, state, route)
}

// submitWithFallbacks tries the winning quote and then each fallback in
// order. Every attempt gets its own budget reservation and at most one
// submission per provider; a submission that reaches a provider ends the
// loop one way or another.
func (c *Coordinator) submitWithFallbacks(ctx context.Context, state *orderState, route *types.Route) {
	attempts := append([]*types.Quote{route.Quote}, route.Fallbacks...)
	order := state.order

	tried := 0
	for _, q := range attempts {
		if c.cancelledAtCheckpoint(state) {
			return
		}

		attemptRoute := c.routeFor(q, route)

		if q.Expired(time.Now()) {
			c.logger.Debug("fallback-quote-expired",
				zap.String("order-id", order.ID),
				zap.String("provider", q.Provider))
			continue
		}

		adapter, ok := c.adapters[q.Provider]
		if !ok {
			c.logger.Warn("no-adapter-for-provider", zap.String("provider", q.Provider))
			continue
		}

		breaker := c.breakers.Get(q.Provider)
		if breaker == nil || breaker.Allow() != nil {
			c.logger.Debug("provider-short-circuited-at-submit",
				zap.String("order-id", order.ID),
				zap.String("provider", q.Provider))
			continue
		}

		tried++
		state.mu.Lock()
		state.order.Attempts = tried
		state.mu.Unlock()

		reserved, err := c.gate.FinalCheck(ctx, order.UserID, attemptRoute)
		if err != nil {
			// No call reached the provider; give back the probe slot Allow
			// may have handed out.
			breaker.ProbeDone()
			c.fail(state, err, "final risk check rejected")
			return
		}
		state.mu.Lock()
		state.reservedUSD = reserved
		state.mu.Unlock()

		handle, err := c.submitOnce(ctx, order.UserID, adapter, breaker, attemptRoute)
		if err != nil {
			c.releaseBudget(ctx, state)
			if types.IsTransientProviderError(err) {
				FallbacksTotal.Inc()
				c.logger.Warn("submission-failed-trying-fallback",
					zap.String("order-id", order.ID),
					zap.String("provider", q.Provider),
					zap.Error(err))
				continue
			}
			c.fail(state, err, "submission rejected")
			return
		}

		// Cancellation after this point races settlement; wire up the
		// interrupt before the Submitted status becomes visible.
		settleCtx, cancelSettle := context.WithCancel(ctx)
		state.mu.Lock()
		state.cancelSettle = cancelSettle
		state.mu.Unlock()
		defer cancelSettle()

		c.transition(state, types.StatusSubmitted, "", handle.TxRef)
		c.settle(settleCtx, state, adapter, handle, attemptRoute)
		return
	}

	c.fail(state, &types.ExhaustedRoutesError{Attempts: tried}, "all routes exhausted")
}

// routeFor builds the execution route for a fallback quote, keeping the
// original slippage tolerance but repricing gas and MEV protection.
func (c *Coordinator) routeFor(q *types.Quote, original *types.Route) *types.Route {
	if q == original.Quote {
		return original
	}
	return &types.Route{
		Quote:             q,
		SlippageTolerance: original.SlippageTolerance,
		GasLimit:          types.BufferedGasLimit(q.GasEstimate),
		MEVProtected:      original.MEVProtected,
		CreatedAt:         time.Now(),
	}
}

// submitOnce signs and submits against a single provider, reporting the
// outcome to its breaker.
func (c *Coordinator) submitOnce(
	ctx context.Context,
	userID string,
	adapter provider.Adapter,
	breaker breakerRecorder,
	route *types.Route,
) (*types.SubmissionHandle, error) {
	signed, err := c.signer.Sign(ctx, userID, signer.TxPayload{
		GasLimit: route.GasLimit,
		Value:    "0",
		ChainID:  c.chainID,
	})
	if err != nil {
		// Signing failed locally; the provider was never called.
		breaker.ProbeDone()
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	handle, err := adapter.Submit(submitCtx, provider.SubmitRequest{
		Route:    route,
		SignedTx: signed.Raw,
		GasLimit: route.GasLimit,
		Private:  route.MEVProtected,
	})
	if err != nil {
		switch {
		case types.IsTransientProviderError(err):
			breaker.RecordFailure()
		case types.IsPermanentProviderError(err):
			// An answered rejection is not degradation; it completes a
			// HalfOpen probe successfully.
			breaker.RecordSuccess()
		default:
			breaker.ProbeDone()
		}
		return nil, err
	}

	breaker.RecordSuccess()
	SubmissionsTotal.WithLabelValues(adapter.Name()).Inc()
	return handle, nil
}

type breakerRecorder interface {
	RecordSuccess()
	RecordFailure()
	ProbeDone()
}

// settle waits for the submitted transaction and finalizes the order.
func (c *Coordinator) settle(
	ctx context.Context,
	state *orderState,
	adapter settlement.StatusChecker,
	handle *types.SubmissionHandle,
	route *types.Route,
) {
	status, err := c.tracker.Await(ctx, adapter, handle, route)

	var slipErr *types.SlippageError
	var timeoutErr *types.SettlementTimeoutError

	switch {
	case errors.As(err, &slipErr):
		// Funds moved; the reservation stands as realized loss.
		c.finalize(state, types.StatusFailed, types.CodeSlippage, slipErr.Error(), handle, status, route)

	case errors.As(err, &timeoutErr):
		if c.cancelObserved(state) {
			// Cancellation beat any settlement observation.
			c.finalize(state, types.StatusCancelled, "", "cancelled by user", handle, nil, route)
			return
		}
		// Outcome unknown; keep the reservation until reconciliation.
		c.finalize(state, types.StatusFailed, types.CodeSettlementTimeout, timeoutErr.Error(), handle, nil, route)

	case err != nil:
		if c.cancelObserved(state) {
			// The wait was interrupted by CancelOrder. The transaction may
			// still land; the reservation stands until reconciliation.
			c.finalize(state, types.StatusCancelled, "", "cancelled by user", handle, nil, route)
			return
		}
		c.finalize(state, types.StatusFailed, types.CodeInternal, err.Error(), handle, nil, route)

	case status.State == types.TxFailed:
		// Reverted on-chain: only gas was spent, return the budget.
		c.releaseBudget(ctx, state)
		c.finalize(state, types.StatusFailed, types.CodePermanentProvider, status.FailureReason, handle, status, route)

	default:
		c.finalize(state, types.StatusSettled, "", "", handle, status, route)
	}
}

// cancelObserved reports whether the user requested cancellation.
func (c *Coordinator) cancelObserved(state *orderState) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.cancelRequested
}

// cancelledAtCheckpoint finalizes the order as cancelled when a cancel was
// requested, and reports whether the pipeline should stop.
func (c *Coordinator) cancelledAtCheckpoint(state *orderState) bool {
	state.mu.Lock()
	cancelled := state.cancelRequested
	state.mu.Unlock()

	if c.baseCtx.Err() != nil {
		return true
	}
	if !cancelled {
		return false
	}

	c.transition(state, types.StatusCancelled, "", "cancelled by user")
	c.saveResult(state, types.StatusCancelled, "", "cancelled by user", nil, nil, nil)
	return true
}

// fail moves the order to Failed with the mapped error code.
func (c *Coordinator) fail(state *orderState, err error, detail string) {
	code := types.CodeOf(err)
	c.transition(state, types.StatusFailed, code, err.Error())
	c.saveResult(state, types.StatusFailed, code, detail+": "+err.Error(), nil, nil, nil)

	c.logger.Info("order-failed",
		zap.String("order-id", state.order.ID),
		zap.String("code", string(code)),
		zap.Error(err))
}

// finalize records the terminal state and execution result for a submitted
// order.
func (c *Coordinator) finalize(
	state *orderState,
	status types.OrderStatus,
	code types.ErrorCode,
	detail string,
	handle *types.SubmissionHandle,
	txStatus *types.TxStatus,
	route *types.Route,
) {
	c.transition(state, status, code, detail)
	c.saveResult(state, status, code, detail, handle, txStatus, route)

	switch status {
	case types.StatusSettled:
		OrdersSettledTotal.Inc()
	case types.StatusCancelled:
		// Not a failure; the counters track settled vs failed only.
	default:
		OrdersFailedTotal.WithLabelValues(string(code)).Inc()
	}
}

// transition applies a monotonic status change, persists the snapshot and
// emits the change to the notifier and event stream.
func (c *Coordinator) transition(state *orderState, next types.OrderStatus, code types.ErrorCode, detail string) {
	state.mu.Lock()
	order := state.order
	old := order.Status

	if !old.CanTransition(next) {
		state.mu.Unlock()
		c.logger.Warn("invalid-status-transition",
			zap.String("order-id", order.ID),
			zap.String("from", string(old)),
			zap.String("to", string(next)))
		return
	}

	order.Status = next
	order.ErrorCode = code
	if detail != "" {
		order.Detail = detail
	}
	order.UpdatedAt = time.Now()
	snapshot := *order
	state.mu.Unlock()

	c.persist(&snapshot)

	ev := notify.Event{
		Type:      notify.EventOrderStatusChanged,
		OrderID:   snapshot.ID,
		UserID:    snapshot.UserID,
		OldStatus: old,
		NewStatus: next,
		Detail:    detail,
		At:        snapshot.UpdatedAt,
	}
	c.notifier.Emit(c.baseCtx, ev)

	select {
	case c.events <- ev:
	default:
		EventsDroppedTotal.Inc()
	}
}

// persist writes the order snapshot without blocking the pipeline.
func (c *Coordinator) persist(order *types.Order) {
	snapshot := *order
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.SaveOrder(ctx, &snapshot); err != nil {
			c.logger.Warn("order-persist-failed",
				zap.String("order-id", snapshot.ID),
				zap.Error(err))
		}
	}()
}

// saveResult writes the terminal execution record, fire and forget.
func (c *Coordinator) saveResult(
	state *orderState,
	status types.OrderStatus,
	code types.ErrorCode,
	detail string,
	handle *types.SubmissionHandle,
	txStatus *types.TxStatus,
	route *types.Route,
) {
	state.mu.Lock()
	order := state.order
	result := &types.ExecutionResult{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      status,
		ErrorCode:   code,
		Detail:      detail,
		CompletedAt: time.Now(),
	}
	state.mu.Unlock()

	if handle != nil {
		result.Provider = handle.Provider
		result.TxRef = handle.TxRef
	}
	if txStatus != nil && route != nil {
		result.FinalOut = txStatus.FinalOut
		result.RealizedSlippagePct = settlement.RealizedSlippagePct(route, txStatus)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.SaveExecutionResult(ctx, result); err != nil {
			c.logger.Warn("result-persist-failed",
				zap.String("order-id", result.OrderID),
				zap.Error(err))
		}
	}()
}

// releaseBudget returns the current reservation, if any.
func (c *Coordinator) releaseBudget(ctx context.Context, state *orderState) {
	state.mu.Lock()
	amount := state.reservedUSD
	state.reservedUSD = 0
	userID := state.order.UserID
	state.mu.Unlock()

	if amount <= 0 {
		return
	}
	if err := c.gate.ReleaseBudget(ctx, userID, amount); err != nil {
		c.logger.Warn("budget-release-failed",
			zap.String("user-id", userID),
			zap.Error(err))
	}
}
