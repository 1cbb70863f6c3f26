package middleware

import (
	"context"
	"time"

	"FuseGate/internal/biz"
	perrors "FuseGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/middleware"
)

// Metrics returns a middleware feeding request outcomes into the alert
// monitor. Rate limit rejections are not double-counted as failures; the
// RateLimit middleware already records them.
func Metrics(monitor *biz.AlertMonitor) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			reply, err := handler(ctx, req)

			if err == nil || !perrors.IsRateLimitExceeded(err) {
				monitor.RecordRequest(err == nil, time.Since(start))
			}

			return reply, err
		}
	}
}
