package circuitbreaker

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry holds one breaker per provider. The map is built once at startup
// and never mutated afterwards, so lookups are lock-free; each breaker
// serializes its own mutations.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry creates a registry with a breaker for every provider name.
func NewRegistry(providers []string, cfg Config) (*Registry, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		return nil, fmt.Errorf("max cooldown must be >= cooldown")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	breakers := make(map[string]*Breaker, len(providers))
	for _, name := range providers {
		if _, dup := breakers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		breakers[name] = newBreaker(name, cfg)
	}

	cfg.Logger.Info("breaker-registry-initialized",
		zap.Int("providers", len(breakers)),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Duration("window", cfg.Window),
		zap.Duration("cooldown", cfg.Cooldown))

	return &Registry{breakers: breakers}, nil
}

// Get returns the breaker for a provider, or nil if the provider is unknown.
func (r *Registry) Get(provider string) *Breaker {
	return r.breakers[provider]
}

// Snapshots returns the state of every breaker, sorted by provider name.
func (r *Registry) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, b.Snapshot())
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Provider < snaps[j].Provider })

	return snaps
}
