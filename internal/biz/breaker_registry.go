package biz

import (
	"sort"
	"sync"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerRegistry manages the set of named circuit breakers. Breakers are
// created lazily on first lookup and shared by name afterwards, so every
// caller protecting the same dependency shares one state machine.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	defaults  BreakerConfig
	overrides map[string]BreakerConfig

	logger log.Logger
	opts   []BreakerOption
}

// RegistryOption customizes a BreakerRegistry at construction.
type RegistryOption func(*BreakerRegistry)

// WithBreakerOptions forwards options (clock, health checker) to every
// breaker the registry creates.
func WithBreakerOptions(opts ...BreakerOption) RegistryOption {
	return func(r *BreakerRegistry) { r.opts = append(r.opts, opts...) }
}

// NewBreakerRegistry creates the registry from configuration. Per-name
// overrides win over the shared defaults; fields left zero in an override
// inherit from the defaults. The returned cleanup closes every breaker,
// stopping their probe goroutines.
func NewBreakerRegistry(rc *conf.Resilience, logger log.Logger, opts ...RegistryOption) (*BreakerRegistry, func()) {
	r := &BreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		defaults:  breakerConfigFromConf(nil, BreakerConfig{}),
		overrides: make(map[string]BreakerConfig),
		logger:    logger,
	}

	if rc != nil {
		r.defaults = breakerConfigFromConf(rc.Breaker, r.defaults)
		for name, bc := range rc.Breakers {
			r.overrides[name] = breakerConfigFromConf(bc, r.defaults)
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, r.Close
}

// breakerConfigFromConf merges one conf block over a base config.
func breakerConfigFromConf(bc *conf.Resilience_Breaker, base BreakerConfig) BreakerConfig {
	cfg := base
	if bc == nil {
		return cfg
	}
	if bc.FailureThreshold > 0 {
		cfg.FailureThreshold = int64(bc.FailureThreshold)
	}
	if bc.SuccessThreshold > 0 {
		cfg.SuccessThreshold = int64(bc.SuccessThreshold)
	}
	if bc.Timeout != nil && bc.Timeout.AsDuration() > 0 {
		cfg.Timeout = bc.Timeout.AsDuration()
	}
	if bc.HealthCheckInterval != nil && bc.HealthCheckInterval.AsDuration() > 0 {
		cfg.HealthCheckInterval = bc.HealthCheckInterval.AsDuration()
	}
	return cfg
}

// GetBreaker returns the breaker registered under name, creating it on
// first use. The configuration is fixed at creation: later calls with the
// same name return the existing breaker untouched.
func (r *BreakerRegistry) GetBreaker(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg := r.defaults
	if override, ok := r.overrides[name]; ok {
		cfg = override
	}

	b := NewCircuitBreaker(name, cfg, r.logger, r.opts...)
	r.breakers[name] = b
	return b
}

// Lookup returns the breaker registered under name without creating one.
func (r *BreakerRegistry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Status returns metrics for every registered breaker, sorted by name for
// stable output.
func (r *BreakerRegistry) Status() []model.BreakerMetrics {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	metrics := make([]model.BreakerMetrics, 0, len(breakers))
	for _, b := range breakers {
		metrics = append(metrics, b.Metrics())
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// ResetAll resets every registered breaker to CLOSED with zeroed counters.
func (r *BreakerRegistry) ResetAll() {
	for _, b := range r.snapshot() {
		b.Reset()
	}
}

// Close stops every breaker's background probe.
func (r *BreakerRegistry) Close() {
	for _, b := range r.snapshot() {
		b.Close()
	}
}

func (r *BreakerRegistry) snapshot() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	return breakers
}
