package middleware

import (
	"context"

	"FuseGate/internal/biz"
	pkglog "FuseGate/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
)

// RateLimit returns a middleware enforcing fixed-window admission control.
// The action comes from the request context set by Logging, the identifier
// is the client IP. Rejections are recorded with the alert monitor.
//
// RateLimit must run after Logging so the request context is populated.
func RateLimit(limiter *biz.RateLimiterUseCase, monitor *biz.AlertMonitor, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			reqCtx := pkglog.GetRequestContext(ctx)
			action := reqCtx.Action
			if action == "" {
				action = "default"
			}
			identifier := reqCtx.ClientIP
			if identifier == "" {
				identifier = "unknown"
			}

			result := limiter.CheckLimit(ctx, action, identifier)
			if !result.Allowed {
				monitor.RecordRateLimitHit()
				logger.RateLimit("request rejected",
					"action", action,
					"identifier", identifier,
					"reset_time", result.ResetTime)
				return nil, limiter.RejectionError(action, identifier, result)
			}

			return handler(ctx, req)
		}
	}
}
