package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// StatusChecker is the slice of a provider adapter the tracker needs.
type StatusChecker interface {
	Name() string
	TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error)
}

// StatusFeed delivers pushed settlement observations for a submission. The
// tracker treats a pushed status exactly like a polled one.
type StatusFeed interface {
	Subscribe(txRef string) <-chan *types.TxStatus
	Unsubscribe(txRef string)
}

// Tracker waits for a submitted transaction to settle. Polling backs off
// exponentially from the initial interval up to the cap; a push feed, when
// configured, can resolve the wait early.
type Tracker struct {
	feed            StatusFeed
	initialInterval time.Duration
	maxInterval     time.Duration
	maxWait         time.Duration
	logger          *zap.Logger
}

// Config holds settlement tracker configuration.
type Config struct {
	Feed            StatusFeed // optional; nil disables push delivery
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxWait         time.Duration
	Logger          *zap.Logger
}

// New creates a new settlement tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("initial interval must be positive")
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("max interval cannot be below the initial interval")
	}
	if cfg.MaxWait <= 0 {
		return nil, fmt.Errorf("max wait must be positive")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Tracker{
		feed:            cfg.Feed,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		maxWait:         cfg.MaxWait,
		logger:          cfg.Logger,
	}, nil
}

// Await blocks until the submission reaches a terminal transaction state or
// the maximum wait elapses. A confirmed transaction whose realized slippage
// exceeds the route's tolerance returns the status alongside SlippageError.
// Elapsing the wait returns SettlementTimeoutError; the transaction may
// still land and is left for reconciliation.
func (t *Tracker) Await(ctx context.Context, checker StatusChecker, handle *types.SubmissionHandle, route *types.Route) (*types.TxStatus, error) {
	start := time.Now()
	deadline := start.Add(t.maxWait)
	interval := t.initialInterval

	var pushed <-chan *types.TxStatus
	if t.feed != nil {
		pushed = t.feed.Subscribe(handle.TxRef)
		defer t.feed.Unsubscribe(handle.TxRef)
	}

	defer func() {
		WaitDurationSeconds.WithLabelValues(checker.Name()).Observe(time.Since(start).Seconds())
	}()

	for {
		status, err := checker.TxStatus(ctx, handle.TxRef)
		if err != nil {
			PollErrorsTotal.WithLabelValues(checker.Name()).Inc()
			t.logger.Debug("settlement-poll-failed",
				zap.String("provider", checker.Name()),
				zap.String("tx_ref", handle.TxRef),
				zap.Error(err))
		} else if status.State != types.TxPending {
			return t.finalize(status, route)
		}

		if time.Now().Add(interval).After(deadline) {
			TimeoutsTotal.WithLabelValues(checker.Name()).Inc()
			return nil, &types.SettlementTimeoutError{TxRef: handle.TxRef, Waited: time.Since(start)}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()

		case status := <-pushed:
			timer.Stop()
			if status != nil && status.State != types.TxPending {
				PushedResolutionsTotal.Inc()
				return t.finalize(status, route)
			}

		case <-timer.C:
		}

		interval *= 2
		if interval > t.maxInterval {
			interval = t.maxInterval
		}
	}
}

// finalize applies the route's slippage tolerance to a terminal observation.
func (t *Tracker) finalize(status *types.TxStatus, route *types.Route) (*types.TxStatus, error) {
	if status.State == types.TxFailed {
		return status, nil
	}

	realized := RealizedSlippagePct(route, status)
	if realized > route.SlippageTolerance {
		return status, &types.SlippageError{
			RealizedPct:  realized,
			TolerancePct: route.SlippageTolerance,
		}
	}

	return status, nil
}

// RealizedSlippagePct computes the shortfall of the final output against the
// quoted estimate, as a percentage. Outperforming the quote reads as zero.
func RealizedSlippagePct(route *types.Route, status *types.TxStatus) float64 {
	expected := route.Quote.BuyAmountEst
	if expected <= 0 {
		return 0
	}

	slip := (expected - status.FinalOut) / expected * 100
	if slip < 0 {
		return 0
	}
	return slip
}
