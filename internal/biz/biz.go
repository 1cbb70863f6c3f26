// Package biz contains the protective core: rate limiter, circuit
// breakers, pool monitor and alert monitor. This layer holds the domain
// rules; counter stores and persistence live in the data layer behind
// interfaces declared here.
package biz

import (
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewRateLimiterUseCase,
	NewBreakerRegistry,
	NewPoolMonitor,
	NewAlertMonitor,
	NewRateLimitStore,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(AlertRepo), new(*data.AlertRepo)),
	wire.Bind(new(AlertNotifier), new(*data.WebhookNotifier)),
)

// NewRateLimitStore selects the counter store: Redis when available so
// instances behind a load balancer share windows, the in-memory store
// otherwise.
func NewRateLimitStore(rc *conf.Resilience, d *data.Data, logger log.Logger) (RateLimitStore, func()) {
	if d.Redis() != nil {
		return data.NewRedisRateLimitStore(d.Redis(), logger), func() {}
	}

	sweepInterval := 5 * time.Minute
	if rc != nil && rc.RateLimit != nil && rc.RateLimit.SweepInterval != nil {
		if iv := rc.RateLimit.SweepInterval.AsDuration(); iv > 0 {
			sweepInterval = iv
		}
	}

	store := data.NewMemoryRateLimitStore(sweepInterval, logger)
	return store, store.Close
}
