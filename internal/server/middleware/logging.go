// Package middleware provides HTTP middleware for request logging,
// admission control and metrics recording.
package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "FuseGate/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThresholdMs flags requests slower than this for the slow
// request log line.
const slowRequestThresholdMs = 5000

// Logging returns a middleware that logs every request with method, path,
// status and duration, injects a request context (request ID, client IP,
// action) and flags slow requests.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")

					requestID = httpReq.Header.Get("X-Request-ID")
					if requestID == "" {
						requestID = pkglog.GenerateRequestID()
					}
				}
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, ip, ActionFromPath(path))

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()
			status := extractHTTPStatus(err)

			logger.Request(method, path, status, duration,
				"request_id", requestID,
				"ip", ip,
				"user_agent", userAgent,
			)

			if duration > slowRequestThresholdMs {
				logger.SlowRequest(method, path, duration, slowRequestThresholdMs,
					"request_id", requestID)
			}

			return reply, err
		}
	}
}

// extractClientIP extracts the client IP, preferring proxy headers:
// X-Real-IP > X-Forwarded-For > RemoteAddr.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps a handler error to its HTTP status code.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(kerrors.FromError(err).Code)
}

// ActionFromPath derives the logical rate-limit action from a request
// path: "/v1/ops/status" -> "ops.status". The empty path maps to
// "default".
func ActionFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "default"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "v1" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "default"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}
