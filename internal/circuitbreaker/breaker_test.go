package circuitbreaker

import (
	"testing"
	"time"

	"github.com/mselser95/dex-router/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock lets tests drive the breaker's notion of time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig(t *testing.T, clock *fakeClock) Config {
	t.Helper()

	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
		Logger:           zaptest.NewLogger(t),
		Now:              clock.Now,
	}
}

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	valid := Config{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
		Logger:           logger,
	}

	tests := []struct {
		name      string
		providers []string
		mutate    func(*Config)
		wantErr   string
	}{
		{"valid", []string{"zeroex", "oneinch"}, func(c *Config) {}, ""},
		{"nil-logger", []string{"zeroex"}, func(c *Config) { c.Logger = nil }, "logger"},
		{"zero-threshold", []string{"zeroex"}, func(c *Config) { c.FailureThreshold = 0 }, "threshold"},
		{"zero-window", []string{"zeroex"}, func(c *Config) { c.Window = 0 }, "window"},
		{"zero-cooldown", []string{"zeroex"}, func(c *Config) { c.Cooldown = 0 }, "cooldown"},
		{"max-below-cooldown", []string{"zeroex"}, func(c *Config) { c.MaxCooldown = time.Second }, "max cooldown"},
		{"no-providers", nil, func(c *Config) {}, "provider"},
		{"duplicate-provider", []string{"zeroex", "zeroex"}, func(c *Config) {}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)

			reg, err := NewRegistry(tt.providers, cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, reg.Get("zeroex"))
				assert.Nil(t, reg.Get("unknown"))
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")

	// Four failures: still closed.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
		clock.Advance(time.Second)
	}
	assert.Equal(t, StateClosed, b.Snapshot().State)

	// Fifth consecutive failure within the window opens the breaker.
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.Snapshot().State)

	// Calls now short-circuit without reaching the provider.
	err = b.Allow()
	require.Error(t, err)

	var coe *types.CircuitOpenError
	require.ErrorAs(t, err, &coe)
	assert.Equal(t, "zeroex", coe.Provider)
}

func TestBreakerWindowResetsFailureCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	// A failure after the window restarts the count, so the breaker stays
	// closed at what would otherwise be the fifth failure.
	clock.Advance(61 * time.Second)
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.Snapshot().State)
	assert.Equal(t, 1, b.FailureCount())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.Equal(t, 0, b.FailureCount())

	b.RecordFailure()
	assert.Equal(t, StateClosed, b.Snapshot().State)
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.Snapshot().State)

	// After the cooldown exactly one probe is admitted.
	clock.Advance(31 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.Snapshot().State)

	err = b.Allow()
	var coe *types.CircuitOpenError
	require.ErrorAs(t, err, &coe)

	// Probe success closes the breaker and resets counters.
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.Snapshot().State)
	assert.Equal(t, 0, b.FailureCount())
	require.NoError(t, b.Allow())
}

func TestBreakerProbeDoneReleasesSlot(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// The probe bails out before reaching the provider; the slot must come
	// back, or the provider stays out of rotation forever.
	clock.Advance(31 * time.Second)
	require.NoError(t, b.Allow())
	require.Error(t, b.Allow())

	b.ProbeDone()
	assert.Equal(t, StateHalfOpen, b.Snapshot().State)
	require.NoError(t, b.Allow())

	// Even a full day later the breaker is still probing, not wedged.
	b.ProbeDone()
	clock.Advance(24 * time.Hour)
	require.NoError(t, b.Allow())
}

func TestBreakerProbeFailureDoublesCooldown(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	clock.Advance(31 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.Snapshot().State)

	// Cooldown doubled to 60s: not yet allowed at +31s, allowed at +61s.
	clock.Advance(31 * time.Second)
	require.Error(t, b.Allow())

	clock.Advance(30 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.Snapshot().State)
}

func TestBreakerCooldownCap(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	cfg := testConfig(t, clock)
	cfg.Cooldown = 5 * time.Minute
	cfg.MaxCooldown = 8 * time.Minute

	reg, err := NewRegistry([]string{"zeroex"}, cfg)
	require.NoError(t, err)

	b := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Failed probe would double to 10m; capped at 8m.
	clock.Advance(5*time.Minute + time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()

	clock.Advance(8*time.Minute + time.Second)
	require.NoError(t, b.Allow())
}

func TestRegistrySnapshotsSorted(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex", "oneinch", "paraswap"}, testConfig(t, clock))
	require.NoError(t, err)

	reg.Get("paraswap").RecordFailure()

	snaps := reg.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "oneinch", snaps[0].Provider)
	assert.Equal(t, "paraswap", snaps[1].Provider)
	assert.Equal(t, "zeroex", snaps[2].Provider)
	assert.Equal(t, 1, snaps[1].Failures)
}

func TestBreakerConcurrentAccess(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	reg, err := NewRegistry([]string{"zeroex"}, testConfig(t, clock))
	require.NoError(t, err)

	b := reg.Get("zeroex")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = b.Allow()
				b.RecordFailure()
				b.RecordSuccess()
				_ = b.Snapshot()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
