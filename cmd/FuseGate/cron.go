package main

import (
	"context"
	"time"

	"FuseGate/internal/biz"
	"FuseGate/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// newMaintenanceCron starts the background maintenance jobs:
//   - every minute: publish status snapshots to Redis so external
//     dashboards can read service state without the HTTP API
//   - every 5 minutes: sweep expired rate limit windows (backstop for
//     the store's own sweeper)
//
// The returned cleanup stops the scheduler.
func newMaintenanceCron(
	limiter *biz.RateLimiterUseCase,
	breakers *biz.BreakerRegistry,
	pool *biz.PoolMonitor,
	alerts *biz.AlertMonitor,
	d *data.Data,
	logger log.Logger,
) (*cron.Cron, func()) {
	helper := log.NewHelper(logger)
	cache := d.Cache()

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		publish := func(section string, value interface{}) {
			key := data.BuildCacheKey(data.CacheKeyStatus, section)
			if err := cache.Set(ctx, key, value, data.TTLStatus); err != nil {
				helper.Debugf("status snapshot publish skipped for %s: %v", section, err)
			}
		}
		publish(data.StatusSectionBreakers, breakers.Status())
		publish(data.StatusSectionPool, pool.Status())
		publish(data.StatusSectionAlerts, alerts.Health())
	})
	if err != nil {
		helper.Errorw("msg", "failed to register status snapshot job", "error", err)
	}

	_, err = c.AddFunc("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if removed, err := limiter.Sweep(ctx); err != nil {
			helper.Warnw("msg", "rate limit sweep failed", "error", err)
		} else if removed > 0 {
			helper.Infof("rate limit sweep removed %d expired windows", removed)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register rate limit sweep job", "error", err)
	}

	c.Start()
	helper.Info("maintenance cron started: status snapshots every minute, limiter sweep every 5 minutes")

	cleanup := func() {
		helper.Info("stopping maintenance cron")
		<-c.Stop().Done()
	}
	return c, cleanup
}
