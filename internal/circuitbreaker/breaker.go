package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"
)

// State is the position of a provider's breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds breaker configuration shared by all providers.
type Config struct {
	FailureThreshold int           // consecutive transient failures before opening
	Window           time.Duration // failures older than this do not accumulate
	Cooldown         time.Duration // initial open duration
	MaxCooldown      time.Duration // cap for the doubling cooldown
	Logger           *zap.Logger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Breaker is the per-provider state machine guarding adapter calls.
// All mutations are serialized by the breaker's own mutex, so unrelated
// providers never contend on a shared lock.
type Breaker struct {
	provider string
	cfg      Config
	now      func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	retryAt       time.Time
	cooldown      time.Duration
	probeInFlight bool
}

// Snapshot is a read-only view of a breaker for the HTTP/CLI surface.
type Snapshot struct {
	Provider    string    `json:"provider"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	RetryAt     time.Time `json:"retry_at,omitempty"`
}

func newBreaker(provider string, cfg Config) *Breaker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	BreakerState.WithLabelValues(provider).Set(stateGaugeValue(StateClosed))

	return &Breaker{
		provider: provider,
		cfg:      cfg,
		now:      now,
		state:    StateClosed,
		cooldown: cfg.Cooldown,
	}
}

// Allow reports whether a call to the provider may proceed. In Open state it
// returns CircuitOpenError without any network call; after the cooldown it
// moves to HalfOpen and admits exactly one probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.now().Before(b.retryAt) {
			ShortCircuitsTotal.WithLabelValues(b.provider).Inc()
			return &types.CircuitOpenError{Provider: b.provider, RetryAt: b.retryAt}
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return nil

	case StateHalfOpen:
		if b.probeInFlight {
			ShortCircuitsTotal.WithLabelValues(b.provider).Inc()
			return &types.CircuitOpenError{Provider: b.provider, RetryAt: b.retryAt}
		}
		b.probeInFlight = true
		return nil
	}

	return fmt.Errorf("%s: unknown breaker state %q", b.provider, b.state)
}

// RecordSuccess resets the failure count; a successful HalfOpen probe closes
// the breaker and resets the cooldown to its initial value.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.failures = 0
		b.cooldown = b.cfg.Cooldown
		b.transition(StateClosed)
		b.cfg.Logger.Info("breaker-closed-after-probe", zap.String("provider", b.provider))

	case StateClosed:
		b.failures = 0
	}
}

// ProbeDone releases a HalfOpen probe slot when the guarded call ended
// without evidence about provider health, such as a local bail-out before
// any network call. The breaker stays HalfOpen so the next caller probes.
// Every Allow that admits a call must be balanced by RecordSuccess,
// RecordFailure or ProbeDone, or the slot is lost for good.
func (b *Breaker) ProbeDone() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
}

// RecordFailure counts a transient provider failure. Permanent provider
// rejections and input validation errors must not be recorded; they are not
// evidence of provider health degradation.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	FailuresTotal.WithLabelValues(b.provider).Inc()

	switch b.state {
	case StateClosed:
		// Failures outside the sliding window do not accumulate.
		if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.Window {
			b.failures = 0
		}
		b.failures++
		b.lastFailure = now

		if b.failures >= b.cfg.FailureThreshold {
			b.retryAt = now.Add(b.cooldown)
			b.transition(StateOpen)
			b.cfg.Logger.Warn("breaker-opened",
				zap.String("provider", b.provider),
				zap.Int("failures", b.failures),
				zap.Time("retry_at", b.retryAt))
		}

	case StateHalfOpen:
		// Failed probe: back to Open with a doubled cooldown.
		b.probeInFlight = false
		b.lastFailure = now
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.retryAt = now.Add(b.cooldown)
		b.transition(StateOpen)
		b.cfg.Logger.Warn("breaker-reopened-after-probe",
			zap.String("provider", b.provider),
			zap.Duration("cooldown", b.cooldown))

	case StateOpen:
		b.lastFailure = now
	}
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Provider:    b.provider,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		RetryAt:     b.retryAt,
	}
}

// FailureCount returns the current consecutive failure count. The route
// selector uses it to tie-break between equal quotes.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.failures
}

// transition moves to the next state. Caller must hold the mutex.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}

	b.state = next
	TransitionsTotal.WithLabelValues(b.provider, string(next)).Inc()
	BreakerState.WithLabelValues(b.provider).Set(stateGaugeValue(next))
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}
