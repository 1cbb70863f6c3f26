package biz

import (
	"context"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"
	perrors "FuseGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitStore is the counter substrate for fixed-window rate limiting.
// Implementations live in the data layer: an in-memory map store (default)
// and a Redis-backed store for multi-instance deployments.
type RateLimitStore interface {
	// Hit records one request against the window for key and returns the
	// count within the current window and the window's reset time.
	// A new window starts on first hit or after the previous one expired.
	Hit(ctx context.Context, key string, window time.Duration) (count int32, resetTime time.Time, err error)

	// Reset clears the window entry for key.
	Reset(ctx context.Context, key string) error

	// Sweep removes expired entries and returns how many were removed.
	// Stores with server-side expiry (Redis) may report 0.
	Sweep(ctx context.Context) (int, error)
}

// ActionConfig holds one logical action's window configuration.
type ActionConfig struct {
	Window      time.Duration
	MaxRequests int32
}

// RateLimiterUseCase implements fixed-window admission control keyed by
// action and caller identifier (typically "userID-clientIP").
//
// The algorithm counts requests in discrete, non-overlapping windows, so a
// burst of up to 2x the limit is possible across a window boundary. That is
// an accepted trade-off of fixed-window counting; callers that need
// smoothing should shrink the window.
type RateLimiterUseCase struct {
	store    RateLimitStore
	actions  map[string]ActionConfig
	defaults ActionConfig
	logger   *log.Helper
}

// NewRateLimiterUseCase creates the rate limiter from configuration.
// Actions without an entry in the config use the defaults
// (60s window, 100 requests).
func NewRateLimiterUseCase(rc *conf.Resilience, store RateLimitStore, logger log.Logger) *RateLimiterUseCase {
	defaults := ActionConfig{Window: 60 * time.Second, MaxRequests: 100}
	actions := make(map[string]ActionConfig)

	if rc != nil && rc.RateLimit != nil {
		if d := rc.RateLimit.DefaultWindow.AsDuration(); d > 0 {
			defaults.Window = d
		}
		if m := rc.RateLimit.DefaultMaxRequests; m > 0 {
			defaults.MaxRequests = m
		}
		for name, action := range rc.RateLimit.Actions {
			actions[name] = ActionConfig{
				Window:      action.Window.AsDuration(),
				MaxRequests: action.MaxRequests,
			}
		}
	}

	return &RateLimiterUseCase{
		store:    store,
		actions:  actions,
		defaults: defaults,
		logger:   log.NewHelper(logger),
	}
}

// ActionConfigFor returns the window configuration for an action,
// falling back to the defaults for unconfigured actions.
func (uc *RateLimiterUseCase) ActionConfigFor(action string) ActionConfig {
	if cfg, ok := uc.actions[action]; ok {
		return cfg
	}
	return uc.defaults
}

// CheckLimit checks whether one more request for (action, identifier) is
// admissible in the current window.
//
// CheckLimit never fails: callers decide how to respond to Allowed=false.
// On store failure the request is allowed and a warning logged, so a broken
// counter store cannot take down traffic.
func (uc *RateLimiterUseCase) CheckLimit(ctx context.Context, action, identifier string) *model.RateLimitResult {
	cfg := uc.ActionConfigFor(action)
	key := action + ":" + identifier

	count, resetTime, err := uc.store.Hit(ctx, key, cfg.Window)
	if err != nil {
		uc.logger.Warnf("rate limit store failed for %s: %v (request allowed)", key, err)
		return &model.RateLimitResult{
			Allowed:   true,
			Remaining: cfg.MaxRequests - 1,
			ResetTime: time.Now().Add(cfg.Window),
		}
	}

	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	allowed := count <= cfg.MaxRequests
	if !allowed {
		uc.logger.Warnw("msg", "rate limit exceeded",
			"action", action,
			"identifier", identifier,
			"count", count,
			"limit", cfg.MaxRequests)
	}

	return &model.RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: resetTime,
	}
}

// RejectionError converts a disallowed result into a retryable 429 error
// carrying the window reset time.
func (uc *RateLimiterUseCase) RejectionError(action, identifier string, result *model.RateLimitResult) error {
	return perrors.NewRateLimitExceeded(action, identifier, result.ResetTime)
}

// ResetKey clears the window for one (action, identifier) pair.
func (uc *RateLimiterUseCase) ResetKey(ctx context.Context, action, identifier string) error {
	return uc.store.Reset(ctx, action+":"+identifier)
}

// Sweep removes expired window entries from the store. The in-memory store
// also runs this on its own schedule; this entry point exists for the
// maintenance cron job and tests.
func (uc *RateLimiterUseCase) Sweep(ctx context.Context) (int, error) {
	return uc.store.Sweep(ctx)
}

// Stats returns a snapshot describing every configured action plus the
// defaults applied to unconfigured ones.
func (uc *RateLimiterUseCase) Stats() []model.RateLimitStats {
	sizer, _ := uc.store.(interface{ Size() int })

	stats := make([]model.RateLimitStats, 0, len(uc.actions)+1)
	for name, cfg := range uc.actions {
		stats = append(stats, model.RateLimitStats{
			Action:      name,
			Window:      cfg.Window,
			MaxRequests: cfg.MaxRequests,
		})
	}
	defaultStats := model.RateLimitStats{
		Action:      "*",
		Window:      uc.defaults.Window,
		MaxRequests: uc.defaults.MaxRequests,
	}
	if sizer != nil {
		defaultStats.ActiveKeys = sizer.Size()
	}
	stats = append(stats, defaultStats)

	return stats
}
